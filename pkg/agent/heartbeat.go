package agent

import (
	"context"
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/metrics"
	"github.com/xushiwei/tfs/pkg/rpc"
)

// heartbeatSender is the slice of CoordinatorClient the Heartbeater
// needs, narrowed so tests can supply a fake without dialing a real
// connection.
type heartbeatSender interface {
	Heartbeat(ctx context.Context, in *rpc.SetDataserverMessage) (*rpc.RespHeartMessage, error)
}

// Heartbeater periodically reports this node's liveness and, every
// reportEvery-th beat, its full block list to the coordinator - the
// switch_generation logic from the spec: a StatusHeartNeedSendBlockInfo
// reply forces the next beat's list regardless of where the counter
// stands.
type Heartbeater struct {
	store    *block.Store
	client   heartbeatSender
	serverID string
	rack     string
	capacity int64
	interval time.Duration

	reportEvery int

	mu          sync.Mutex
	count       int
	forceReport bool
}

// NewHeartbeater builds a Heartbeater. capacity is the node's total
// byte capacity, reported unchanged on every beat.
func NewHeartbeater(store *block.Store, client heartbeatSender, serverID, rack string, capacity int64, interval time.Duration, reportEvery int) *Heartbeater {
	if reportEvery < 1 {
		reportEvery = 1
	}
	return &Heartbeater{
		store:       store,
		client:      client,
		serverID:    serverID,
		rack:        rack,
		capacity:    capacity,
		interval:    interval,
		reportEvery: reportEvery,
	}
}

// Run beats every interval until ctx is canceled.
func (h *Heartbeater) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.beatOnce(ctx)
		}
	}
}

func (h *Heartbeater) shouldReportBlocks() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	report := h.forceReport || h.count%h.reportEvery == 0
	h.forceReport = false
	return report
}

func (h *Heartbeater) forceNextReport() {
	h.mu.Lock()
	h.forceReport = true
	h.mu.Unlock()
}

func (h *Heartbeater) beatOnce(ctx context.Context) {
	logger := log.WithServer(h.serverID)

	ids := h.store.BlockIDs()
	useCapacity := int64(0)
	for _, id := range ids {
		info, err := h.store.Info(id)
		if err != nil {
			continue
		}
		useCapacity += info.LiveSize + info.DeletedSize
	}

	msg := &rpc.SetDataserverMessage{
		ServerID:      h.serverID,
		TotalCapacity: h.capacity,
		UseCapacity:   useCapacity,
		Load:          int32(len(ids)),
		Rack:          h.rack,
	}
	if h.shouldReportBlocks() {
		msg.HasBlockList = true
		msg.Blocks = ids
	}

	resp, err := h.client.Heartbeat(ctx, msg)
	if err != nil {
		logger.Warn().Err(err).Msg("heartbeat failed")
		return
	}

	metrics.HeartbeatQueueDepth.Set(float64(len(ids)))

	switch resp.Status {
	case rpc.StatusHeartNeedSendBlockInfo:
		h.forceNextReport()
	case rpc.StatusHeartExpBlockID:
		// The registry no longer assigns these blocks to this node; they
		// are orphan replicas left over from a reassigned primary. TODO:
		// wire a Store.DeleteBlock to reclaim their disk space once a
		// block can be removed wholesale rather than file by file.
		logger.Warn().Uints32("expired", resp.Expires).Msg("holding expired block replicas pending reclaim")
	case rpc.StatusError, rpc.StatusGeneralError:
		logger.Error().Msg("coordinator rejected heartbeat")
	}
}
