package heartbeat

import (
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/registry"
)

// ResponseCode mirrors the reply codes a heartbeat RPC can carry back to
// a storage node.
type ResponseCode int

const (
	CodeOK ResponseCode = iota
	CodeExpBlockID
	CodeNeedSendBlockInfo
	CodeStatusError
)

// Heartbeat is one SetDataserverMessage-equivalent report from a storage
// node.
type Heartbeat struct {
	ServerID      string
	Dead          bool
	TotalCapacity int64
	UseCapacity   int64
	Load          int32
	Rack          string
	HasBlockList  bool
	Blocks        []uint32
}

// Response is the coordinator's reply to a Heartbeat.
type Response struct {
	Code    ResponseCode
	Expires []uint32
}

// Manager admits and processes storage-node heartbeats for one
// coordinator instance.
type Manager struct {
	reg *registry.Registry

	sem chan struct{} // bounds ordinary-heartbeat admission

	mu             sync.Mutex
	lastReportAt   map[string]time.Time
	reportInterval time.Duration
}

// New builds a Manager. maxQueueSize bounds ordinary heartbeat
// admission; reportInterval is how long the coordinator will tolerate a
// storage node going without a full block-list report before demanding
// one.
func New(reg *registry.Registry, maxQueueSize int, reportInterval time.Duration) *Manager {
	if maxQueueSize < 1 {
		maxQueueSize = 1
	}
	return &Manager{
		reg:            reg,
		sem:            make(chan struct{}, maxQueueSize),
		lastReportAt:   make(map[string]time.Time),
		reportInterval: reportInterval,
	}
}

// Submit admits and processes hb, applying the busy back-pressure rule
// to ordinary heartbeats only.
func (m *Manager) Submit(hb Heartbeat) Response {
	bypassesBound := hb.Dead || hb.HasBlockList
	if !bypassesBound {
		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		default:
			return Response{Code: CodeStatusError}
		}
	}
	return m.process(hb)
}

func (m *Manager) process(hb Heartbeat) Response {
	logger := log.WithServer(hb.ServerID)

	if hb.Dead {
		if err := m.reg.MarkServerDead(hb.ServerID); err != nil {
			logger.Error().Err(err).Msg("mark server dead failed")
		}
		// The original's keepalive handler logs an error here but still
		// replies HEART_MESSAGE_OK; accept-and-forget is carried as-is.
		return Response{Code: CodeOK}
	}

	m.reg.UpsertServer(hb.ServerID, hb.TotalCapacity, hb.UseCapacity, hb.Load, hb.Rack)

	if !hb.HasBlockList {
		if m.needsBlockReport(hb.ServerID) {
			return Response{Code: CodeNeedSendBlockInfo}
		}
		return Response{Code: CodeOK}
	}

	m.mu.Lock()
	m.lastReportAt[hb.ServerID] = time.Now()
	m.mu.Unlock()

	expired, err := m.reg.ReconcileReport(hb.ServerID, hb.Blocks)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile block report failed")
		return Response{Code: CodeStatusError}
	}
	if len(expired) > 0 {
		return Response{Code: CodeExpBlockID, Expires: expired}
	}
	return Response{Code: CodeOK}
}

func (m *Manager) needsBlockReport(serverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.lastReportAt[serverID]
	if !ok {
		return true
	}
	return time.Since(last) > m.reportInterval
}
