package registry

import (
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/regstore"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// Registry holds the coordinator's block and server maps under a single
// read-write lock.
type Registry struct {
	mu sync.RWMutex

	blocks  map[uint32]*types.BlockCollect
	servers map[string]*types.ServerCollect

	store regstore.Store

	replicationFactor  int
	objectDeadMaxTime  time.Duration
	objectClearMaxTime time.Duration

	placement *placementTracker
}

// New constructs an empty Registry. store may be nil to run in-memory
// only (tests, or a coordinator with persistence disabled).
func New(store regstore.Store, replicationFactor int, objectDeadMaxTime, objectClearMaxTime time.Duration) *Registry {
	return &Registry{
		blocks:             make(map[uint32]*types.BlockCollect),
		servers:            make(map[string]*types.ServerCollect),
		store:              store,
		replicationFactor:  replicationFactor,
		objectDeadMaxTime:  objectDeadMaxTime,
		objectClearMaxTime: objectClearMaxTime,
		placement:          newPlacementTracker(),
	}
}

// Load repopulates the in-memory maps from the backing store, if one is
// configured.
func (r *Registry) Load() error {
	if r.store == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	blocks, err := r.store.ListBlockCollects()
	if err != nil {
		return err
	}
	for _, bc := range blocks {
		r.blocks[bc.LogicBlockID] = bc
	}

	servers, err := r.store.ListServerCollects()
	if err != nil {
		return err
	}
	for _, sc := range servers {
		if sc.Hold == nil {
			sc.Hold = make(map[uint32]struct{})
		}
		if sc.HoldMaster == nil {
			sc.HoldMaster = make(map[uint32]struct{})
		}
		r.servers[sc.ID] = sc
	}
	return nil
}

func (r *Registry) persistBlock(bc *types.BlockCollect) {
	if r.store == nil {
		return
	}
	if err := r.store.PutBlockCollect(bc); err != nil {
		log.WithComponent("registry").Warn().Err(err).Uint32("block_id", bc.LogicBlockID).Msg("persist block collect failed")
	}
}

func (r *Registry) persistServer(sc *types.ServerCollect) {
	if r.store == nil {
		return
	}
	if err := r.store.PutServerCollect(sc); err != nil {
		log.WithComponent("registry").Warn().Err(err).Str("server_id", sc.ID).Msg("persist server collect failed")
	}
}

// UpsertServer records a liveness report, creating the ServerCollect on
// first heartbeat.
func (r *Registry) UpsertServer(id string, totalCapacity, useCapacity int64, load int32, rack string) *types.ServerCollect {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.servers[id]
	if !ok {
		sc = &types.ServerCollect{
			ID:         id,
			Rack:       rack,
			Hold:       make(map[uint32]struct{}),
			HoldMaster: make(map[uint32]struct{}),
		}
		r.servers[id] = sc
	}
	sc.Status = types.ServerAlive
	sc.TotalCapacity = totalCapacity
	sc.UseCapacity = useCapacity
	sc.CurrentLoad = load
	sc.LastHeartbeatTime = time.Now()
	sc.DeadTime = time.Time{}

	r.placement.observe(float64(load))
	r.persistServer(sc)
	return sc
}

// MarkServerDead marks id dead synchronously and releases its hold set,
// matching the clean-exit rule for DATASERVER_STATUS_DEAD: affected
// blocks lose this replica immediately rather than waiting for a sweep.
func (r *Registry) MarkServerDead(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.servers[id]
	if !ok {
		return tfserr.New(tfserr.KindNotFound, "registry.MarkServerDead", "unknown server")
	}
	if sc.Status == types.ServerDead {
		return nil
	}
	sc.Status = types.ServerDead
	sc.DeadTime = time.Now()

	for blockID := range sc.Hold {
		if bc, ok := r.blocks[blockID]; ok {
			bc.Replicas = removeID(bc.Replicas, id)
			bc.LastUpdateTime = time.Now()
			r.persistBlock(bc)
		}
	}
	sc.Hold = make(map[uint32]struct{})
	sc.HoldMaster = make(map[uint32]struct{})
	r.persistServer(sc)
	return nil
}

// ReconcileReport diffs a storage node's reported block list against the
// registry. Blocks unknown to the registry are adopted (first report
// creates the BlockCollect); blocks the registry does not assign to this
// server are returned as expired so the caller can tell the node to
// delete them.
func (r *Registry) ReconcileReport(serverID string, reported []uint32) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc, ok := r.servers[serverID]
	if !ok {
		return nil, tfserr.New(tfserr.KindNotFound, "registry.ReconcileReport", "unknown server")
	}

	now := time.Now()
	newHold := make(map[uint32]struct{}, len(reported))
	var expired []uint32

	for _, blockID := range reported {
		bc, ok := r.blocks[blockID]
		if !ok {
			bc = &types.BlockCollect{
				LogicBlockID:   blockID,
				Replicas:       []string{serverID},
				CreationTime:   now,
				LastUpdateTime: now,
			}
			r.blocks[blockID] = bc
			newHold[blockID] = struct{}{}
			r.persistBlock(bc)
			continue
		}
		if bc.HasReplica(serverID) {
			newHold[blockID] = struct{}{}
			bc.LastUpdateTime = now
		} else {
			expired = append(expired, blockID)
		}
	}

	sc.Hold = newHold
	sc.BlockCount = int32(len(newHold))
	r.persistServer(sc)
	return expired, nil
}

// Primary returns the lowest-id alive replica for blockID.
func (r *Registry) Primary(blockID uint32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bc, ok := r.blocks[blockID]
	if !ok {
		return "", false
	}
	var primary string
	for _, id := range bc.Replicas {
		sc := r.servers[id]
		if sc == nil || sc.Status != types.ServerAlive {
			continue
		}
		if primary == "" || id < primary {
			primary = id
		}
	}
	return primary, primary != ""
}

// Block returns a copy of the BlockCollect for blockID.
func (r *Registry) Block(blockID uint32) (types.BlockCollect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bc, ok := r.blocks[blockID]
	if !ok {
		return types.BlockCollect{}, false
	}
	return *bc, true
}

// Server returns a copy of the ServerCollect for id.
func (r *Registry) Server(id string) (types.ServerCollect, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.servers[id]
	if !ok {
		return types.ServerCollect{}, false
	}
	return *sc, true
}

// UnderReplicated returns every block whose count of alive replicas is
// below the configured replication factor.
func (r *Registry) UnderReplicated() []types.BlockCollect {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.BlockCollect
	for _, bc := range r.blocks {
		alive := 0
		for _, id := range bc.Replicas {
			if sc := r.servers[id]; sc != nil && sc.Status == types.ServerAlive {
				alive++
			}
		}
		if alive < r.replicationFactor {
			out = append(out, *bc)
		}
	}
	return out
}

// CommitReplica adds targetID to blockID's replica set once a replicate
// plan has been validated as complete.
func (r *Registry) CommitReplica(blockID uint32, targetID string, version uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.blocks[blockID]
	if !ok {
		return tfserr.New(tfserr.KindNotFound, "registry.CommitReplica", "unknown block")
	}
	if version < bc.Version {
		return tfserr.New(tfserr.KindStaleVersion, "registry.CommitReplica", "target reports an older version")
	}
	if !bc.HasReplica(targetID) {
		bc.Replicas = append(bc.Replicas, targetID)
	}
	bc.Version = version
	bc.LastUpdateTime = time.Now()
	r.persistBlock(bc)

	if sc, ok := r.servers[targetID]; ok {
		sc.Hold[blockID] = struct{}{}
		r.persistServer(sc)
	}
	return nil
}

// PlacementTargets ranks alive, non-replica servers for blockID and
// returns the top count candidate ids.
func (r *Registry) PlacementTargets(blockID uint32, count int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bc := r.blocks[blockID]
	existing := make(map[string]bool)
	existingRacks := make(map[string]bool)
	if bc != nil {
		for _, id := range bc.Replicas {
			existing[id] = true
			if sc := r.servers[id]; sc != nil {
				existingRacks[sc.Rack] = true
			}
		}
	}

	var candidates []*types.ServerCollect
	for id, sc := range r.servers {
		if sc.Status != types.ServerAlive || existing[id] {
			continue
		}
		candidates = append(candidates, sc)
	}

	ranked := r.placement.rank(candidates, existingRacks, r.averageBlockCountLocked())
	if len(ranked) > count {
		ranked = ranked[:count]
	}
	ids := make([]string, len(ranked))
	for i, sc := range ranked {
		ids[i] = sc.ID
	}
	return ids
}

// AllocateBlock creates a new empty BlockCollect placed on the
// replication-factor best-ranked alive servers, the registry side of a
// client's "force new block" write hint: a block id and replica set
// handed out before any storage node has ever reported holding it.
func (r *Registry) AllocateBlock() (uint32, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID uint32
	for id := range r.blocks {
		if id > maxID {
			maxID = id
		}
	}
	blockID := maxID + 1

	var candidates []*types.ServerCollect
	for _, sc := range r.servers {
		if sc.Status == types.ServerAlive {
			candidates = append(candidates, sc)
		}
	}
	ranked := r.placement.rank(candidates, map[string]bool{}, r.averageBlockCountLocked())
	if len(ranked) > r.replicationFactor {
		ranked = ranked[:r.replicationFactor]
	}
	if len(ranked) == 0 {
		return 0, nil, tfserr.New(tfserr.KindCapacityExhausted, "registry.AllocateBlock", "no alive servers to place a new block")
	}

	now := time.Now()
	replicas := make([]string, len(ranked))
	primary := ranked[0].ID
	for _, sc := range ranked {
		if sc.ID < primary {
			primary = sc.ID
		}
	}
	for i, sc := range ranked {
		replicas[i] = sc.ID
		sc.Hold[blockID] = struct{}{}
		sc.BlockCount = int32(len(sc.Hold))
		if sc.ID == primary {
			sc.HoldMaster[blockID] = struct{}{}
		}
		r.persistServer(sc)
	}
	// Put the primary first, the order a SetBlockInfoMessage reply uses.
	for i, id := range replicas {
		if id == primary {
			replicas[0], replicas[i] = replicas[i], replicas[0]
			break
		}
	}

	bc := &types.BlockCollect{
		LogicBlockID:   blockID,
		Replicas:       replicas,
		CreationTime:   now,
		LastUpdateTime: now,
	}
	r.blocks[blockID] = bc
	r.persistBlock(bc)

	return blockID, replicas, nil
}

// Stats summarizes the registry state the cluster-info query reports.
type Stats struct {
	TotalCapacity int64
	UseCapacity   int64
	BlockCount    int32
	AliveServers  int32
	AverageLoad   float64
}

// Stats computes the NsGlobalStatisticsInfo-equivalent cluster snapshot.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st Stats
	st.BlockCount = int32(len(r.blocks))

	var totalLoad int64
	for _, sc := range r.servers {
		if sc.Status != types.ServerAlive {
			continue
		}
		st.AliveServers++
		st.TotalCapacity += sc.TotalCapacity
		st.UseCapacity += sc.UseCapacity
		totalLoad += int64(sc.CurrentLoad)
	}
	if st.AliveServers > 0 {
		st.AverageLoad = float64(totalLoad) / float64(st.AliveServers)
	}
	return st
}

// BlockIDs returns every block id the registry currently tracks, used by
// the compaction scan which needs the full set rather than just the
// under-replicated subset.
func (r *Registry) BlockIDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uint32, 0, len(r.blocks))
	for id := range r.blocks {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) averageBlockCountLocked() float64 {
	var total, n float64
	for _, sc := range r.servers {
		if sc.Status != types.ServerAlive {
			continue
		}
		total += float64(sc.BlockCount)
		n++
	}
	if n == 0 {
		return 0
	}
	return total / n
}

// Sweep removes dead servers past their grace interval and replica-less
// blocks past theirs, mirroring the GCObject dead_time_ model. hasPlan
// is consulted so a block with a plan in flight is never removed.
func (r *Registry) Sweep(now time.Time, hasPlan func(blockID uint32) bool) (removedServers []string, removedBlocks []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, sc := range r.servers {
		if sc.Status != types.ServerDead || sc.DeadTime.IsZero() {
			continue
		}
		if now.Before(sc.DeadTime.Add(r.objectDeadMaxTime)) {
			continue
		}
		delete(r.servers, id)
		removedServers = append(removedServers, id)
		if r.store != nil {
			if err := r.store.DeleteServerCollect(id); err != nil {
				log.WithComponent("registry").Warn().Err(err).Str("server_id", id).Msg("delete server collect failed")
			}
		}
	}

	for id, bc := range r.blocks {
		if len(bc.Replicas) != 0 {
			continue
		}
		if hasPlan != nil && hasPlan(id) {
			continue
		}
		if now.Before(bc.LastUpdateTime.Add(r.objectClearMaxTime)) {
			continue
		}
		delete(r.blocks, id)
		removedBlocks = append(removedBlocks, id)
		if r.store != nil {
			if err := r.store.DeleteBlockCollect(id); err != nil {
				log.WithComponent("registry").Warn().Err(err).Uint32("block_id", id).Msg("delete block collect failed")
			}
		}
	}
	return removedServers, removedBlocks
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
