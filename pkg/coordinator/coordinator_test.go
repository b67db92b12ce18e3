package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/config"
	"github.com/xushiwei/tfs/pkg/rpc"
	"github.com/xushiwei/tfs/pkg/types"
)

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	cfg := config.DefaultCoordinator()
	cfg.DataDir = t.TempDir()
	cfg.OplogDir = t.TempDir()
	cfg.PlanInterval = 10 * time.Millisecond
	cfg.MasterHeartInterval = 10 * time.Millisecond
	cfg.SafeModeTime = 0

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestStandaloneCoordinatorPromotesToMaster(t *testing.T) {
	c := testCoordinator(t)
	require.Eventually(t, func() bool {
		return c.Role() == types.RoleMaster
	}, time.Second, time.Millisecond)
}

func TestHeartbeatAdmitsUnknownServerAndBlock(t *testing.T) {
	c := testCoordinator(t)

	resp, err := c.Heartbeat(context.Background(), &rpc.SetDataserverMessage{
		ServerID:      "10.0.0.1:7800",
		TotalCapacity: 1 << 30,
		UseCapacity:   1 << 20,
		HasBlockList:  true,
		Blocks:        []uint32{1},
	})
	require.NoError(t, err)
	require.Equal(t, rpc.StatusHeartOK, resp.Status)

	info, err := c.GetBlockInfo(context.Background(), &rpc.GetBlockInfoMessage{BlockID: 1})
	require.NoError(t, err)
	require.Equal(t, uint32(1), info.BlockID)
	require.Equal(t, []string{"10.0.0.1:7800"}, info.Replicas)
}

func TestGetBlockInfoUnknownBlockErrors(t *testing.T) {
	c := testCoordinator(t)
	_, err := c.GetBlockInfo(context.Background(), &rpc.GetBlockInfoMessage{BlockID: 99})
	require.Error(t, err)
}

func TestGetClusterInfoReflectsHeartbeats(t *testing.T) {
	c := testCoordinator(t)
	_, err := c.Heartbeat(context.Background(), &rpc.SetDataserverMessage{
		ServerID:      "10.0.0.1:7800",
		TotalCapacity: 1 << 30,
		UseCapacity:   1 << 20,
	})
	require.NoError(t, err)

	info, err := c.GetClusterInfo(context.Background(), &rpc.ClientCmdMessage{})
	require.NoError(t, err)
	require.Equal(t, int32(1), info.AliveServers)
	require.EqualValues(t, 1<<30, info.TotalCapacity)
}

func TestPeerHeartEchoesOwnRoleAndStatus(t *testing.T) {
	c := testCoordinator(t)
	resp, err := c.PeerHeart(context.Background(), &rpc.MasterAndSlaveHeartMessage{
		Role:   int32(types.RoleSlave),
		Status: int32(types.StatusUninitialized),
	})
	require.NoError(t, err)
	require.Equal(t, int32(c.Role()), resp.Role)
}

func TestForceDemoteBumpsElectSeqAndDemotes(t *testing.T) {
	c := testCoordinator(t)
	require.Eventually(t, func() bool { return c.Role() == types.RoleMaster }, time.Second, time.Millisecond)

	before, err := c.GetClusterInfo(context.Background(), &rpc.ClientCmdMessage{})
	require.NoError(t, err)

	_, err = c.ForceDemote(context.Background(), &rpc.ForceModifyOtherSideRoleMessage{TargetRole: int32(types.RoleSlave)})
	require.NoError(t, err)
	require.Equal(t, types.RoleSlave, c.Role())

	after, err := c.GetClusterInfo(context.Background(), &rpc.ClientCmdMessage{})
	require.NoError(t, err)
	require.Greater(t, after.ElectSeqNumber, before.ElectSeqNumber)
}

func TestAllocateBlockPlacesOnAliveServer(t *testing.T) {
	c := testCoordinator(t)
	_, err := c.Heartbeat(context.Background(), &rpc.SetDataserverMessage{
		ServerID:      "10.0.0.1:7800",
		TotalCapacity: 1 << 30,
	})
	require.NoError(t, err)

	resp, err := c.AllocateBlock(context.Background(), &rpc.AllocateBlockMessage{})
	require.NoError(t, err)
	require.NotZero(t, resp.BlockID)
	require.Equal(t, []string{"10.0.0.1:7800"}, resp.Replicas)

	info, err := c.GetBlockInfo(context.Background(), &rpc.GetBlockInfoMessage{BlockID: resp.BlockID})
	require.NoError(t, err)
	require.Equal(t, resp.Replicas, info.Replicas)
}

func TestAllocateBlockFailsWithNoAliveServers(t *testing.T) {
	c := testCoordinator(t)
	_, err := c.AllocateBlock(context.Background(), &rpc.AllocateBlockMessage{})
	require.Error(t, err)
}

func TestSyncOplogAcksReceivedSeq(t *testing.T) {
	c := testCoordinator(t)
	ack, err := c.SyncOplog(context.Background(), &rpc.OpLogSyncMessage{Seq: 5, BlockID: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(5), ack.LastAppliedSeq)

	ack, err = c.SyncOplog(context.Background(), &rpc.OpLogSyncMessage{Seq: 3, BlockID: 1})
	require.NoError(t, err)
	require.Equal(t, uint64(3), ack.LastAppliedSeq)
	require.Equal(t, uint64(5), c.receivedSeq)
}
