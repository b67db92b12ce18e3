package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/registry"
	"github.com/xushiwei/tfs/pkg/types"
)

func TestScanReplicationIssuesOnePlanPerBlock(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	reg.UpsertServer("a", 1000, 0, 0, "rack1")
	reg.UpsertServer("b", 1000, 0, 0, "rack2")
	_, err := reg.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)

	e := New(reg, 4)
	e.Tick(time.Now(), nil)

	plans := e.Plans()
	require.Len(t, plans, 1)
	require.Equal(t, types.PlanReplicate, plans[0].Kind)
	require.Equal(t, uint32(1), plans[0].BlockID)
	require.Equal(t, "a", plans[0].Source)
	require.Equal(t, []string{"b"}, plans[0].Targets)

	// A second tick must not issue a duplicate plan for the same block.
	e.Tick(time.Now(), nil)
	require.Len(t, e.Plans(), 1)
}

func TestCompleteCommitsReplicaAndFreesSlot(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	reg.UpsertServer("a", 1000, 0, 0, "rack1")
	reg.UpsertServer("b", 1000, 0, 0, "rack2")
	_, err := reg.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)

	e := New(reg, 4)
	e.Tick(time.Now(), nil)
	require.True(t, e.HasPlan(1))

	require.NoError(t, e.Complete(1, map[string]uint32{"b": 0}))
	require.False(t, e.HasPlan(1))

	bc, ok := reg.Block(1)
	require.True(t, ok)
	require.Contains(t, bc.Replicas, "b")

	require.Empty(t, reg.UnderReplicated())
}

func TestExpiredPlanRetriesThenGivesUp(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	reg.UpsertServer("a", 1000, 0, 0, "rack1")
	reg.UpsertServer("b", 1000, 0, 0, "rack2")
	_, err := reg.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)

	e := New(reg, 4)
	e.planTimeout = time.Millisecond
	e.Tick(time.Now(), nil)
	require.True(t, e.HasPlan(1))

	originalID := e.Plans()[0].ID
	for i := 0; i < defaultMaxRetries-1; i++ {
		time.Sleep(2 * time.Millisecond)
		e.expireTimedOut(time.Now())
		require.True(t, e.HasPlan(1), "retry %d should keep the plan alive", i)
		require.Equal(t, originalID, e.Plans()[0].ID)
	}

	time.Sleep(2 * time.Millisecond)
	e.expireTimedOut(time.Now())
	require.False(t, e.HasPlan(1))
}

func TestMaxPlansPerServerBoundsSourceConcurrency(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	reg.UpsertServer("a", 1000, 0, 0, "rack1")
	reg.UpsertServer("b", 1000, 0, 0, "rack2")
	_, err := reg.ReconcileReport("a", []uint32{1, 2})
	require.NoError(t, err)

	e := New(reg, 1)
	e.Tick(time.Now(), nil)

	plans := e.Plans()
	require.Len(t, plans, 1, "only one plan should be admitted with max_plans_per_server=1")
}

func TestScanCompactionSkipsBlockWithActivePlan(t *testing.T) {
	reg := registry.New(nil, 1, time.Hour, time.Hour)
	reg.UpsertServer("a", 1000, 0, 0, "rack1")
	_, err := reg.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)

	e := New(reg, 4)
	e.Tick(time.Now(), []uint32{1})
	require.Len(t, e.Plans(), 1)
	require.Equal(t, types.PlanCompact, e.Plans()[0].Kind)

	e.Tick(time.Now(), []uint32{1})
	require.Len(t, e.Plans(), 1, "a block already running a plan must not get a second one")
}
