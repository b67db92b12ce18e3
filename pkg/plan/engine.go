package plan

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/registry"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

const (
	defaultPlanTimeout   = 2 * time.Minute
	defaultMaxRetries    = 3
	defaultTargetsPerRun = 1
)

// Engine scans the registry for replication and compaction pressure and
// turns it into a bounded set of in-flight plans.
type Engine struct {
	reg *registry.Registry

	mu          sync.Mutex
	byBlock     map[uint32]*types.Plan
	bySource    map[string]int
	deadlines   *btree.BTreeG[*types.Plan]
	maxPerSrc   int
	planTimeout time.Duration
}

func deadlineLess(a, b *types.Plan) bool {
	if a.Deadline.Equal(b.Deadline) {
		return a.ID < b.ID
	}
	return a.Deadline.Before(b.Deadline)
}

// New builds an Engine. maxPlansPerServer bounds how many plans may be
// active with the same source at once.
func New(reg *registry.Registry, maxPlansPerServer int) *Engine {
	if maxPlansPerServer < 1 {
		maxPlansPerServer = 1
	}
	return &Engine{
		reg:         reg,
		byBlock:     make(map[uint32]*types.Plan),
		bySource:    make(map[string]int),
		deadlines:   btree.NewG(32, deadlineLess),
		maxPerSrc:   maxPlansPerServer,
		planTimeout: defaultPlanTimeout,
	}
}

// HasPlan reports whether blockID currently has an active plan, letting
// callers outside the engine (registry sweep, oplog gating) avoid racing
// with in-flight work.
func (e *Engine) HasPlan(blockID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byBlock[blockID]
	return ok
}

// Plans returns a snapshot of every active plan.
func (e *Engine) Plans() []types.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Plan, 0, len(e.byBlock))
	for _, p := range e.byBlock {
		out = append(out, *p)
	}
	return out
}

// Tick runs one plan_interval pass: expire timed-out plans, then scan for
// new replication and compaction work. compactionCandidates is supplied
// externally (the coordinator polls each block's primary for its block
// info to build it) since
// BlockCollect does not carry the deleted/total size ratio needed to
// detect compaction pressure itself.
func (e *Engine) Tick(now time.Time, compactionCandidates []uint32) {
	e.expireTimedOut(now)
	e.scanReplication(now)
	e.scanCompaction(now, compactionCandidates)
}

func (e *Engine) expireTimedOut(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var expired []*types.Plan
	e.deadlines.Ascend(func(p *types.Plan) bool {
		if p.Deadline.After(now) {
			return false
		}
		expired = append(expired, p)
		return true
	})

	for _, p := range expired {
		logger := log.WithPlan(p.ID)
		if p.RetryCount+1 < defaultMaxRetries {
			logger.Warn().Uint32("block_id", p.BlockID).Msg("plan timed out, retrying")
			e.rescheduleLocked(p, now)
			continue
		}
		logger.Error().Uint32("block_id", p.BlockID).Msg("plan timed out, giving up")
		e.removePlanLocked(p)
	}
}

// rescheduleLocked bumps a timed-out plan's retry count and deadline in
// place. The btree is keyed by Deadline, so the old entry must be removed
// before the field is mutated and the new one inserted — mutating
// Deadline first would leave a stale entry the tree can never find again.
func (e *Engine) rescheduleLocked(p *types.Plan, now time.Time) {
	e.deadlines.Delete(p)
	p.RetryCount++
	p.State = types.PlanPending
	p.Deadline = now.Add(e.planTimeout)
	e.deadlines.ReplaceOrInsert(p)
}

func (e *Engine) removePlanLocked(p *types.Plan) {
	e.deadlines.Delete(p)
	delete(e.byBlock, p.BlockID)
	e.bySource[p.Source]--
	if e.bySource[p.Source] <= 0 {
		delete(e.bySource, p.Source)
	}
}

func (e *Engine) scanReplication(now time.Time) {
	for _, bc := range e.reg.UnderReplicated() {
		e.mu.Lock()
		_, active := e.byBlock[bc.LogicBlockID]
		e.mu.Unlock()
		if active {
			continue
		}

		primary, ok := e.reg.Primary(bc.LogicBlockID)
		if !ok {
			continue
		}

		e.mu.Lock()
		room := e.bySource[primary] < e.maxPerSrc
		e.mu.Unlock()
		if !room {
			continue
		}

		targets := e.reg.PlacementTargets(bc.LogicBlockID, defaultTargetsPerRun)
		if len(targets) == 0 {
			continue
		}

		e.addPlan(&types.Plan{
			ID:        uuid.NewString(),
			Kind:      types.PlanReplicate,
			BlockID:   bc.LogicBlockID,
			Source:    primary,
			Targets:   targets,
			StartedAt: now,
			Deadline:  now.Add(e.planTimeout),
			State:     types.PlanPending,
		})
	}
}

func (e *Engine) scanCompaction(now time.Time, candidates []uint32) {
	for _, blockID := range candidates {
		e.mu.Lock()
		_, active := e.byBlock[blockID]
		e.mu.Unlock()
		if active {
			continue
		}

		primary, ok := e.reg.Primary(blockID)
		if !ok {
			continue
		}

		e.mu.Lock()
		room := e.bySource[primary] < e.maxPerSrc
		e.mu.Unlock()
		if !room {
			continue
		}

		e.addPlan(&types.Plan{
			ID:        uuid.NewString(),
			Kind:      types.PlanCompact,
			BlockID:   blockID,
			Source:    primary,
			StartedAt: now,
			Deadline:  now.Add(e.planTimeout),
			State:     types.PlanPending,
		})
	}
}

func (e *Engine) addPlan(p *types.Plan) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.byBlock[p.BlockID]; exists {
		return
	}
	e.byBlock[p.BlockID] = p
	e.bySource[p.Source]++
	e.deadlines.ReplaceOrInsert(p)
	log.WithPlan(p.ID).Info().Uint32("block_id", p.BlockID).Str("kind", string(p.Kind)).Str("source", p.Source).Msg("plan issued")
}

// Complete validates and clears a reported-finished plan. reportedVersions
// maps each target server id to the block version it now holds; for a
// replicate plan each target is committed through Registry.CommitReplica,
// which rejects a version older than the registry's current version of
// the block, and Complete then returns that error with the plan still
// active.
func (e *Engine) Complete(blockID uint32, reportedVersions map[string]uint32) error {
	e.mu.Lock()
	p, ok := e.byBlock[blockID]
	if !ok {
		e.mu.Unlock()
		return tfserr.New(tfserr.KindNotFound, "plan.Complete", "no active plan for block")
	}
	e.mu.Unlock()

	switch p.Kind {
	case types.PlanReplicate:
		for _, target := range p.Targets {
			version, ok := reportedVersions[target]
			if !ok {
				return tfserr.New(tfserr.KindInvalidArgument, "plan.Complete", "missing version report for target")
			}
			if err := e.reg.CommitReplica(blockID, target, version); err != nil {
				return err
			}
		}
	case types.PlanCompact, types.PlanMove, types.PlanDelete:
		// Compaction, move and delete plans mutate storage-node state only;
		// the registry's view of the block's replica set is unaffected.
	}

	e.mu.Lock()
	p.State = types.PlanFinished
	e.removePlanLocked(p)
	e.mu.Unlock()

	log.WithPlan(p.ID).Info().Uint32("block_id", blockID).Msg("plan completed")
	return nil
}

// Fail marks an active plan as failed and frees its slot without
// touching the registry, used when a storage node reports it could not
// carry out the assigned work.
func (e *Engine) Fail(blockID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.byBlock[blockID]
	if !ok {
		return tfserr.New(tfserr.KindNotFound, "plan.Fail", "no active plan for block")
	}
	p.State = types.PlanFailed
	e.removePlanLocked(p)
	return nil
}
