package oplog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// SyncMode selects how aggressively Append durability is enforced.
type SyncMode int

const (
	// SyncFsync fsyncs every append before it is acknowledged. Default.
	SyncFsync SyncMode = iota
	// SyncRelaxed batches appends behind the OS page cache; an append
	// can be lost on a crash between writes. Configurable weaker mode.
	SyncRelaxed
)

const defaultSegmentMaxBytes = 64 << 20

// Queue is the active coordinator's durable, rotating append log.
type Queue struct {
	mu sync.Mutex

	dir             string
	segmentMaxBytes int64
	syncMode        SyncMode

	nextSeq     uint64
	activeIndex int
	activeFile  *os.File
	activeSize  int64
}

// Open recovers (or creates) the oplog queue rooted at dir, replaying
// every existing segment to recompute nextSeq.
func Open(dir string, segmentMaxBytes int64, mode SyncMode) (*Queue, error) {
	if segmentMaxBytes <= 0 {
		segmentMaxBytes = defaultSegmentMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "oplog.Open", err)
	}

	q := &Queue{dir: dir, segmentMaxBytes: segmentMaxBytes, syncMode: mode}

	indices, err := segmentIndices(dir)
	if err != nil {
		return nil, err
	}

	var lastSeq uint64
	for _, idx := range indices {
		entries, err := readSegment(segmentPath(dir, idx))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Seq > lastSeq {
				lastSeq = e.Seq
			}
		}
	}
	q.nextSeq = lastSeq
	if len(indices) > 0 {
		q.activeIndex = indices[len(indices)-1]
	}
	if err := q.openActive(); err != nil {
		return nil, err
	}
	return q, nil
}

func segmentPath(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("oplog-%010d.seg", idx))
}

func segmentIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "oplog.segmentIndices", err)
	}
	var indices []int
	for _, e := range entries {
		var idx int
		if _, err := fmt.Sscanf(e.Name(), "oplog-%010d.seg", &idx); err == nil {
			indices = append(indices, idx)
		}
	}
	sort.Ints(indices)
	return indices, nil
}

func (q *Queue) openActive() error {
	f, err := os.OpenFile(segmentPath(q.dir, q.activeIndex), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "oplog.openActive", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return tfserr.Wrap(tfserr.KindIoError, "oplog.openActive", err)
	}
	q.activeFile = f
	q.activeSize = info.Size()
	return nil
}

// Append assigns the next sequence number to e, writes its framed
// record, and fsyncs before returning unless running in SyncRelaxed
// mode. It rotates to a new segment first if the active one is full.
func (q *Queue) Append(e types.OplogEntry) (types.OplogEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeSize >= q.segmentMaxBytes {
		if err := q.rotateLocked(); err != nil {
			return types.OplogEntry{}, err
		}
	}

	q.nextSeq++
	e.Seq = q.nextSeq

	frame, err := encodeEntry(e)
	if err != nil {
		return types.OplogEntry{}, err
	}
	n, err := q.activeFile.Write(frame)
	if err != nil {
		return types.OplogEntry{}, tfserr.Wrap(tfserr.KindIoError, "oplog.Append", err)
	}
	q.activeSize += int64(n)

	if q.syncMode == SyncFsync {
		if err := q.activeFile.Sync(); err != nil {
			return types.OplogEntry{}, tfserr.Wrap(tfserr.KindIoError, "oplog.Append", err)
		}
	}
	return e, nil
}

func (q *Queue) rotateLocked() error {
	if err := q.activeFile.Close(); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "oplog.rotateLocked", err)
	}
	q.activeIndex++
	q.activeSize = 0
	return q.openActive()
}

// Segments returns every segment's index in ascending order.
func (q *Queue) Segments() ([]int, error) {
	return segmentIndices(q.dir)
}

// Read streams every entry of segment idx.
func (q *Queue) Read(idx int) ([]types.OplogEntry, error) {
	return readSegment(segmentPath(q.dir, idx))
}

// Recycle removes segment idx, used once the sender confirms every
// entry in it is behind the standby's acked watermark plus retain
// margin.
func (q *Queue) Recycle(idx int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if idx == q.activeIndex {
		return tfserr.New(tfserr.KindInvalidArgument, "oplog.Recycle", "refusing to recycle the active segment")
	}
	if err := os.Remove(segmentPath(q.dir, idx)); err != nil && !os.IsNotExist(err) {
		return tfserr.Wrap(tfserr.KindIoError, "oplog.Recycle", err)
	}
	log.WithComponent("oplog").Debug().Int("segment", idx).Msg("segment recycled")
	return nil
}

// NextSeq reports the sequence number Append would assign next.
func (q *Queue) NextSeq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextSeq + 1
}

// Close closes the active segment file.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeFile.Close()
}
