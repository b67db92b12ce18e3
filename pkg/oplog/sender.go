package oplog

import (
	"context"
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/types"
)

// Transport delivers one oplog entry to the standby and reports whether
// it was applied. A real implementation calls the standby's gRPC
// endpoint; tests inject a fake.
type Transport interface {
	Send(ctx context.Context, e types.OplogEntry) error
}

const defaultRetainMargin = 1000

// Sender streams queued entries to the standby in order and recycles
// segments once they fall behind LastAckedSeq by more than RetainMargin.
type Sender struct {
	queue     *Queue
	transport Transport
	flag      *FlagState

	mu           sync.Mutex
	lastAckedSeq uint64
	retainMargin uint64
}

// NewSender builds a Sender bound to queue, sending through transport,
// gated by flag (the sender only streams while flag.Get() == FlagYes).
func NewSender(queue *Queue, transport Transport, flag *FlagState) *Sender {
	return &Sender{queue: queue, transport: transport, flag: flag, retainMargin: defaultRetainMargin}
}

// LastAckedSeq reports the highest seq confirmed applied by the standby.
func (s *Sender) LastAckedSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAckedSeq
}

// Run streams entries until ctx is cancelled. It waits for the sync flag
// to reach FlagYes before sending anything, and re-waits whenever the
// flag drops back below FlagYes (e.g. the peer goes unreachable).
func (s *Sender) Run(ctx context.Context) {
	for {
		if s.flag.Get() != FlagYes {
			waitCh := make(chan Flag, 1)
			go func() { waitCh <- s.flag.Wait() }()
			select {
			case <-ctx.Done():
				return
			case v := <-waitCh:
				if v != FlagYes {
					continue
				}
			}
		}
		if err := s.drain(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Sender) drain(ctx context.Context) error {
	segments, err := s.queue.Segments()
	if err != nil {
		return err
	}

	for _, idx := range segments {
		if s.flag.Get() != FlagYes {
			return nil
		}
		entries, err := s.queue.Read(idx)
		if err != nil {
			log.WithComponent("oplog").Error().Err(err).Int("segment", idx).Msg("read segment failed")
			return err
		}
		for _, e := range entries {
			if e.Seq <= s.LastAckedSeq() {
				continue
			}
			if err := s.transport.Send(ctx, e); err != nil {
				log.WithComponent("oplog").Warn().Err(err).Uint64("seq", e.Seq).Msg("send to standby failed")
				return err
			}
			s.mu.Lock()
			s.lastAckedSeq = e.Seq
			s.mu.Unlock()
		}
		s.maybeRecycle(idx, entries)
	}
	return nil
}

func (s *Sender) maybeRecycle(idx int, entries []types.OplogEntry) {
	if len(entries) == 0 {
		return
	}
	highest := entries[len(entries)-1].Seq
	acked := s.LastAckedSeq()
	s.mu.Lock()
	margin := s.retainMargin
	s.mu.Unlock()

	if acked < highest+margin {
		return
	}
	if err := s.queue.Recycle(idx); err != nil {
		log.WithComponent("oplog").Warn().Err(err).Int("segment", idx).Msg("recycle segment failed")
	}
}

// Idle is a small helper for callers that want a periodic nudge rather
// than relying solely on the flag-change wakeup, matching the original's
// single-thread oplog sender being driven by the same timer tick that
// drives master/slave heartbeats.
func Idle(ctx context.Context, interval time.Duration, tick func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			tick()
		}
	}
}
