package coordinator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xushiwei/tfs/pkg/config"
	"github.com/xushiwei/tfs/pkg/events"
	"github.com/xushiwei/tfs/pkg/ha"
	"github.com/xushiwei/tfs/pkg/heartbeat"
	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/metrics"
	"github.com/xushiwei/tfs/pkg/oplog"
	"github.com/xushiwei/tfs/pkg/plan"
	"github.com/xushiwei/tfs/pkg/regstore"
	"github.com/xushiwei/tfs/pkg/registry"
	"github.com/xushiwei/tfs/pkg/rpc"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

const (
	rpcTimeout               = 5 * time.Second
	defaultCompactReadBudget = 8 << 20
)

// Coordinator bundles the registry and its background drivers (plan
// engine, heartbeat admission, oplog replication, HA arbitration) behind
// one rpc.CoordinatorServer.
type Coordinator struct {
	cfg config.Coordinator

	reg    *registry.Registry
	hbMgr  *heartbeat.Manager
	plans  *plan.Engine
	oplogQ *oplog.Queue
	sender *oplog.Sender
	flag   *oplog.FlagState
	haCtrl *ha.Controller
	events *events.Broker

	dnPool *dataNodePool

	electSeq    uint64 // atomic
	receivedSeq uint64 // atomic, standby-side highest SyncOplog seq seen

	dispatchMu      sync.Mutex
	dispatchedPlans map[string]bool

	closePeer func() error

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// oplogTransport adapts the peer's CoordinatorClient to oplog.Transport.
type oplogTransport struct {
	client *rpc.CoordinatorClient
}

func (t *oplogTransport) Send(ctx context.Context, e types.OplogEntry) error {
	ack, err := t.client.SyncOplog(ctx, &rpc.OpLogSyncMessage{
		Seq:       e.Seq,
		OpKind:    int32(e.OpKind),
		BlockID:   e.BlockID,
		FileID:    e.FileID,
		Size:      e.Size,
		Timestamp: e.Timestamp,
		Crc:       e.Crc,
	})
	if err != nil {
		return err
	}
	if ack.LastAppliedSeq < e.Seq {
		return tfserr.New(tfserr.KindNetwork, "oplog.Send", "standby did not ack the sent sequence")
	}
	return nil
}

// New wires a Coordinator from cfg: opens the bolt-backed registry store,
// dials the peer (or falls back to noopPeer/standalone mode when
// cfg.PeerAddr is empty), and starts every background loop.
func New(cfg config.Coordinator) (*Coordinator, error) {
	store, err := regstore.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindIoError, "coordinator.New", err)
	}

	reg := registry.New(store, cfg.ReplicationFactor, cfg.ObjectDeadMaxTime, cfg.ObjectClearMaxTime)
	if err := reg.Load(); err != nil {
		return nil, err
	}

	oplogQ, err := oplog.Open(cfg.OplogDir, 0, oplog.SyncFsync)
	if err != nil {
		return nil, err
	}

	flag := oplog.NewFlagState()

	var peer ha.Peer
	var closePeer func() error
	if cfg.PeerAddr != "" {
		client, closer, err := dialPeer(cfg.PeerAddr)
		if err != nil {
			return nil, tfserr.Wrap(tfserr.KindNetwork, "coordinator.New", err)
		}
		peer = &peerAdapter{client: client}
		closePeer = closer

		sender := oplog.NewSender(oplogQ, &oplogTransport{client: client}, flag)
		go sender.Run(context.Background())
	}
	if peer == nil {
		peer = noopPeer{}
	}

	vip := &vipResolver{device: cfg.VipDevice, address: cfg.VipAddress}

	c := &Coordinator{
		cfg:             cfg,
		reg:             reg,
		hbMgr:           heartbeat.New(reg, cfg.HeartbeatQueueSize, cfg.HeartbeatInterval*time.Duration(cfg.ReportBlockEvery)),
		plans:           plan.New(reg, cfg.MaxPlansPerServer),
		oplogQ:          oplogQ,
		flag:            flag,
		events:          events.NewBroker(),
		dnPool:          newDataNodePool(),
		dispatchedPlans: make(map[string]bool),
		closePeer:       closePeer,
		stopCh:          make(chan struct{}),
	}
	c.haCtrl = ha.New(vip, peer, flag, c.cancelInFlightPlans)
	if cfg.MasterHeartInterval > 0 {
		c.haCtrl.SetMasterHeartInterval(cfg.MasterHeartInterval)
	}
	if cfg.SafeModeTime > 0 {
		c.haCtrl.SetSafeModeTime(cfg.SafeModeTime)
	}
	c.haCtrl.MarkInitialized()

	c.events.Start()
	c.run()
	return c, nil
}

// Role reports this instance's current HA role, used by the daemon's
// health endpoint to tell an active coordinator from a standby.
func (c *Coordinator) Role() types.NsRole {
	return c.haCtrl.Role()
}

func (c *Coordinator) cancelInFlightPlans() {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	c.dispatchedPlans = make(map[string]bool)
}

// run starts the three periodic background loops.
func (c *Coordinator) run() {
	c.wg.Add(3)
	go c.planLoop()
	go c.haLoop()
	go c.gcLoop()
}

// Close stops every background loop and releases held connections.
func (c *Coordinator) Close() error {
	close(c.stopCh)
	c.wg.Wait()
	c.events.Stop()
	if c.closePeer != nil {
		_ = c.closePeer()
	}
	return c.oplogQ.Close()
}

func (c *Coordinator) planLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.PlanInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.planTick()
		}
	}
}

func (c *Coordinator) haLoop() {
	defer c.wg.Done()
	interval := c.haCtrl.MasterHeartInterval()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.haTick()
		}
	}
}

func (c *Coordinator) gcLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.PlanInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			c.gcTick()
		}
	}
}

func (c *Coordinator) haTick() {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	now := time.Now()
	c.haCtrl.CheckRole(ctx, now)
	switch c.haCtrl.Role() {
	case types.RoleMaster:
		c.haCtrl.MasterHeart(ctx, now)
	case types.RoleSlave:
		c.haCtrl.SlaveHeart(ctx, now)
	}

	if c.haCtrl.Role() == types.RoleMaster {
		metrics.HARole.Set(1)
	} else {
		metrics.HARole.Set(0)
	}
}

func (c *Coordinator) gcTick() {
	if c.haCtrl.Role() != types.RoleMaster || c.haCtrl.InSafeMode(time.Now()) {
		return
	}
	removedServers, removedBlocks := c.reg.Sweep(time.Now(), c.plans.HasPlan)
	for _, id := range removedServers {
		log.WithComponent("coordinator").Info().Str("server_id", id).Msg("server swept")
	}
	for _, id := range removedBlocks {
		log.WithComponent("coordinator").Info().Uint32("block_id", id).Msg("block swept")
	}
}

// planTick scans for compaction pressure, runs one plan_interval pass,
// and dispatches every plan the engine has not yet handed to a node.
func (c *Coordinator) planTick() {
	if c.haCtrl.Role() != types.RoleMaster || c.haCtrl.InSafeMode(time.Now()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	candidates := c.compactionCandidates(ctx)
	c.plans.Tick(time.Now(), candidates)
	c.dispatchPending(ctx)
}

// compactionCandidates polls each known block's primary for a fresh
// BlockInfoMessage and flags those whose deleted/total ratio exceeds
// compact_ratio. See doc.go for why this isn't carried on the heartbeat.
func (c *Coordinator) compactionCandidates(ctx context.Context) []uint32 {
	var out []uint32
	for _, id := range c.reg.BlockIDs() {
		primary, ok := c.reg.Primary(id)
		if !ok {
			continue
		}
		client, err := c.dnPool.get(primary)
		if err != nil {
			continue
		}
		info, err := client.GetBlockInfo(ctx, &rpc.GetBlockInfoMessage{BlockID: id})
		if err != nil {
			continue
		}
		total := info.LiveSize + info.DeletedSize
		if total <= 0 {
			continue
		}
		if float64(info.DeletedSize)/float64(total) > c.cfg.CompactRatio {
			out = append(out, id)
		}
	}
	return out
}

func (c *Coordinator) dispatchPending(ctx context.Context) {
	active := c.plans.Plans()

	c.dispatchMu.Lock()
	current := make(map[string]bool, len(active))
	var toDispatch []types.Plan
	for _, p := range active {
		current[p.ID] = true
		if !c.dispatchedPlans[p.ID] {
			c.dispatchedPlans[p.ID] = true
			toDispatch = append(toDispatch, p)
		}
	}
	for id := range c.dispatchedPlans {
		if !current[id] {
			delete(c.dispatchedPlans, id)
		}
	}
	c.dispatchMu.Unlock()

	for _, p := range toDispatch {
		go c.dispatchPlan(p)
	}
}

func (c *Coordinator) dispatchPlan(p types.Plan) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.PlanTimeout)
	defer cancel()

	logger := log.WithPlan(p.ID)
	client, err := c.dnPool.get(p.Source)
	if err != nil {
		logger.Warn().Err(err).Str("source", p.Source).Msg("dial plan source failed")
		_ = c.plans.Fail(p.BlockID)
		return
	}

	switch p.Kind {
	case types.PlanReplicate:
		if _, err := client.ReplicateBlock(ctx, &rpc.ReplicateBlockMessage{BlockID: p.BlockID, Targets: p.Targets}); err != nil {
			logger.Warn().Err(err).Msg("replicate dispatch failed")
			_ = c.plans.Fail(p.BlockID)
			return
		}
		versions := make(map[string]uint32, len(p.Targets))
		for _, target := range p.Targets {
			tc, err := c.dnPool.get(target)
			if err != nil {
				_ = c.plans.Fail(p.BlockID)
				return
			}
			info, err := tc.GetBlockInfo(ctx, &rpc.GetBlockInfoMessage{BlockID: p.BlockID})
			if err != nil {
				_ = c.plans.Fail(p.BlockID)
				return
			}
			versions[target] = info.Version
		}
		if err := c.plans.Complete(p.BlockID, versions); err != nil {
			logger.Warn().Err(err).Msg("replicate completion rejected")
		}
		c.events.Publish(&events.Event{Type: events.EventBlockReplicated, Message: "block replicated"})

	case types.PlanCompact:
		if _, err := client.CompactBlock(ctx, &rpc.CompactBlockMessage{BlockID: p.BlockID, ReadBudget: defaultCompactReadBudget}); err != nil {
			logger.Warn().Err(err).Msg("compact dispatch failed")
			_ = c.plans.Fail(p.BlockID)
			return
		}
		if err := c.plans.Complete(p.BlockID, nil); err != nil {
			logger.Warn().Err(err).Msg("compact completion rejected")
		}
		c.events.Publish(&events.Event{Type: events.EventBlockCompacted, Message: "block compacted"})

	case types.PlanMove, types.PlanDelete:
		_ = c.plans.Fail(p.BlockID)
	}
}

// --- rpc.CoordinatorServer ---

func (c *Coordinator) Heartbeat(ctx context.Context, in *rpc.SetDataserverMessage) (*rpc.RespHeartMessage, error) {
	resp := c.hbMgr.Submit(heartbeat.Heartbeat{
		ServerID:      in.ServerID,
		Dead:          in.Dead,
		TotalCapacity: in.TotalCapacity,
		UseCapacity:   in.UseCapacity,
		Load:          in.Load,
		Rack:          in.Rack,
		HasBlockList:  in.HasBlockList,
		Blocks:        in.Blocks,
	})
	if resp.Code == heartbeat.CodeStatusError {
		metrics.HeartbeatBusyRejectsTotal.Inc()
	}

	out := &rpc.RespHeartMessage{Expires: resp.Expires}
	switch resp.Code {
	case heartbeat.CodeOK:
		out.Status = rpc.StatusHeartOK
	case heartbeat.CodeExpBlockID:
		out.Status = rpc.StatusHeartExpBlockID
	case heartbeat.CodeNeedSendBlockInfo:
		out.Status = rpc.StatusHeartNeedSendBlockInfo
	case heartbeat.CodeStatusError:
		out.Status = rpc.StatusError
	}
	return out, nil
}

func (c *Coordinator) ReportPlanComplete(ctx context.Context, in *rpc.PlanCompleteMessage) (*rpc.RespHeartMessage, error) {
	var err error
	if in.Success {
		err = c.plans.Complete(in.BlockID, in.Versions)
	} else {
		err = c.plans.Fail(in.BlockID)
	}
	if err != nil {
		return &rpc.RespHeartMessage{Status: rpc.StatusError}, nil
	}
	return &rpc.RespHeartMessage{Status: rpc.StatusHeartOK}, nil
}

func (c *Coordinator) GetBlockInfo(ctx context.Context, in *rpc.GetBlockInfoMessage) (*rpc.SetBlockInfoMessage, error) {
	bc, ok := c.reg.Block(in.BlockID)
	if !ok {
		return nil, tfserr.New(tfserr.KindNotFound, "coordinator.GetBlockInfo", "unknown block")
	}
	return &rpc.SetBlockInfoMessage{BlockID: in.BlockID, Replicas: orderedReplicas(c.reg, bc)}, nil
}

func (c *Coordinator) BatchGetBlockInfo(ctx context.Context, in *rpc.BatchGetBlockInfoMessage) (*rpc.BatchSetBlockInfoMessage, error) {
	out := &rpc.BatchSetBlockInfoMessage{Blocks: make(map[uint32][]string, len(in.BlockIDs))}
	for _, id := range in.BlockIDs {
		bc, ok := c.reg.Block(id)
		if !ok {
			continue
		}
		out.Blocks[id] = orderedReplicas(c.reg, bc)
	}
	return out, nil
}

func orderedReplicas(reg *registry.Registry, bc types.BlockCollect) []string {
	primary, ok := reg.Primary(bc.LogicBlockID)
	if !ok {
		return bc.Replicas
	}
	out := make([]string, 0, len(bc.Replicas))
	out = append(out, primary)
	for _, id := range bc.Replicas {
		if id != primary {
			out = append(out, id)
		}
	}
	return out
}

func (c *Coordinator) AllocateBlock(ctx context.Context, in *rpc.AllocateBlockMessage) (*rpc.SetBlockInfoMessage, error) {
	blockID, replicas, err := c.reg.AllocateBlock()
	if err != nil {
		return nil, err
	}
	return &rpc.SetBlockInfoMessage{BlockID: blockID, Replicas: replicas}, nil
}

func (c *Coordinator) ListBlocks(ctx context.Context, in *rpc.ClientCmdMessage) (*rpc.ListBlocksMessage, error) {
	return &rpc.ListBlocksMessage{BlockIDs: c.reg.BlockIDs()}, nil
}

func (c *Coordinator) GetClusterInfo(ctx context.Context, in *rpc.ClientCmdMessage) (*rpc.ClusterInfoMessage, error) {
	st := c.reg.Stats()
	return &rpc.ClusterInfoMessage{
		UseCapacity:    st.UseCapacity,
		TotalCapacity:  st.TotalCapacity,
		BlockCount:     st.BlockCount,
		AverageLoad:    st.AverageLoad,
		AliveServers:   st.AliveServers,
		ElectSeqNumber: atomic.LoadUint64(&c.electSeq),
	}, nil
}

func (c *Coordinator) PeerHeart(ctx context.Context, in *rpc.MasterAndSlaveHeartMessage) (*rpc.MasterAndSlaveHeartResponse, error) {
	return &rpc.MasterAndSlaveHeartResponse{
		Role:   int32(c.haCtrl.Role()),
		Status: int32(c.haCtrl.Status()),
	}, nil
}

func (c *Coordinator) ForceDemote(ctx context.Context, in *rpc.ForceModifyOtherSideRoleMessage) (*rpc.RespHeartMessage, error) {
	atomic.AddUint64(&c.electSeq, 1)
	c.haCtrl.ForceDemote(time.Now())
	return &rpc.RespHeartMessage{Status: rpc.StatusHeartOK}, nil
}

func (c *Coordinator) SyncOplog(ctx context.Context, in *rpc.OpLogSyncMessage) (*rpc.OpLogSyncAck, error) {
	c.recordReceivedSeq(in.Seq)
	return &rpc.OpLogSyncAck{LastAppliedSeq: in.Seq}, nil
}

func (c *Coordinator) recordReceivedSeq(seq uint64) {
	for {
		cur := atomic.LoadUint64(&c.receivedSeq)
		if seq <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&c.receivedSeq, cur, seq) {
			return
		}
	}
}
