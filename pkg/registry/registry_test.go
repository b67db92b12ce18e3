package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconcileReportCreatesAndExpires(t *testing.T) {
	r := New(nil, 2, time.Minute, time.Minute)
	r.UpsertServer("10.0.0.1:7800", 1000, 100, 0, "")

	expired, err := r.ReconcileReport("10.0.0.1:7800", []uint32{1, 2})
	require.NoError(t, err)
	require.Empty(t, expired)

	bc, ok := r.Block(1)
	require.True(t, ok)
	require.Equal(t, []string{"10.0.0.1:7800"}, bc.Replicas)

	// Inject a fake report for a block the registry does not assign to
	// this node (assigned to someone else by a prior reconcile).
	r.UpsertServer("10.0.0.2:7800", 1000, 100, 0, "")
	_, err = r.ReconcileReport("10.0.0.2:7800", []uint32{1})
	require.NoError(t, err)

	expired, err = r.ReconcileReport("10.0.0.2:7800", []uint32{1, 3})
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, expired) // block 1 is assigned to 10.0.0.1 only

	expired, err = r.ReconcileReport("10.0.0.1:7800", []uint32{1, 3})
	require.NoError(t, err)
	require.Contains(t, expired, uint32(3))
}

func TestMarkServerDeadReleasesHoldSet(t *testing.T) {
	r := New(nil, 2, time.Minute, time.Minute)
	r.UpsertServer("a", 1000, 0, 0, "")
	r.UpsertServer("b", 1000, 0, 0, "")
	_, err := r.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)
	require.NoError(t, r.CommitReplica(1, "b", 1))

	require.NoError(t, r.MarkServerDead("a"))

	bc, ok := r.Block(1)
	require.True(t, ok)
	require.NotContains(t, bc.Replicas, "a")
	require.Contains(t, bc.Replicas, "b")

	under := r.UnderReplicated()
	require.Len(t, under, 1)
}

func TestPrimaryIsLowestAliveID(t *testing.T) {
	r := New(nil, 2, time.Minute, time.Minute)
	r.UpsertServer("b", 1000, 0, 0, "")
	r.UpsertServer("a", 1000, 0, 0, "")
	_, err := r.ReconcileReport("b", []uint32{1})
	require.NoError(t, err)
	require.NoError(t, r.CommitReplica(1, "a", 0))

	primary, ok := r.Primary(1)
	require.True(t, ok)
	require.Equal(t, "a", primary)

	require.NoError(t, r.MarkServerDead("a"))
	primary, ok = r.Primary(1)
	require.True(t, ok)
	require.Equal(t, "b", primary)
}

func TestPlacementTargetsExcludesExistingReplicas(t *testing.T) {
	r := New(nil, 3, time.Minute, time.Minute)
	r.UpsertServer("a", 1000, 900, 5, "rack1") // nearly full
	r.UpsertServer("b", 1000, 100, 1, "rack2") // plenty of room
	r.UpsertServer("c", 1000, 100, 1, "rack1")
	_, err := r.ReconcileReport("a", []uint32{1})
	require.NoError(t, err)

	targets := r.PlacementTargets(1, 2)
	require.Len(t, targets, 2)
	require.NotContains(t, targets, "a")
	require.Equal(t, "b", targets[0]) // ties c on capacity, wins on rack diversity (rack2 vs a's rack1)
}

func TestSweepRespectsGracePeriodAndPendingPlans(t *testing.T) {
	r := New(nil, 2, time.Hour, time.Hour)
	r.UpsertServer("a", 1000, 0, 0, "")
	require.NoError(t, r.MarkServerDead("a"))

	removedServers, _ := r.Sweep(time.Now(), nil)
	require.Empty(t, removedServers) // still within grace period

	removedServers, _ = r.Sweep(time.Now().Add(2*time.Hour), nil)
	require.Equal(t, []string{"a"}, removedServers)
}

func TestAllocateBlockPicksDistinctIDsAndRanksByCapacity(t *testing.T) {
	r := New(nil, 2, time.Minute, time.Minute)
	r.UpsertServer("a", 1000, 900, 5, "rack1") // nearly full
	r.UpsertServer("b", 1000, 100, 1, "rack2") // plenty of room
	r.UpsertServer("c", 1000, 100, 1, "rack1")

	id1, replicas1, err := r.AllocateBlock()
	require.NoError(t, err)
	require.Len(t, replicas1, 2)
	require.NotContains(t, replicas1, "a") // nearly-full server ranks last

	id2, _, err := r.AllocateBlock()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	bc, ok := r.Block(id1)
	require.True(t, ok)
	require.Equal(t, replicas1, bc.Replicas)
}

func TestAllocateBlockErrorsWithNoAliveServers(t *testing.T) {
	r := New(nil, 2, time.Minute, time.Minute)
	_, _, err := r.AllocateBlock()
	require.Error(t, err)
}
