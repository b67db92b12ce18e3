package ha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/oplog"
	"github.com/xushiwei/tfs/pkg/types"
)

var errPeerUnreachable = errors.New("peer unreachable")

type fakeVip struct{ local bool }

func (f *fakeVip) IsLocal() bool { return f.local }

type fakePeer struct {
	role    types.NsRole
	status  types.NsStatus
	err     error
	demotes int
}

func (p *fakePeer) Heart(_ context.Context, _ types.NsRole, _ types.NsStatus) (types.NsRole, types.NsStatus, error) {
	return p.role, p.status, p.err
}

func (p *fakePeer) ForceDemote(_ context.Context) error {
	p.demotes++
	p.role = types.RoleSlave
	return nil
}

func TestMasterDemotesUnconditionallyOnVipLoss(t *testing.T) {
	vip := &fakeVip{local: false}
	peer := &fakePeer{role: types.RoleSlave, status: types.StatusInitialized}
	var demoted bool
	c := New(vip, peer, oplog.NewFlagState(), func() { demoted = true })

	// Force into master first.
	c.mu.Lock()
	c.role = types.RoleMaster
	c.mu.Unlock()

	c.CheckRole(context.Background(), time.Now())

	require.Equal(t, types.RoleSlave, c.Role())
	require.True(t, demoted, "onDemote must fire when a master loses the VIP")
}

func TestSlavePromotesOnlyAfterPeerDisagrees(t *testing.T) {
	vip := &fakeVip{local: true}
	peer := &fakePeer{role: types.RoleSlave, status: types.StatusInitialized}
	c := New(vip, peer, oplog.NewFlagState(), nil)

	c.CheckRole(context.Background(), time.Now())
	require.Equal(t, types.RoleMaster, c.Role())
}

func TestSlaveForceDemotesPeerInsteadOfPromoting(t *testing.T) {
	vip := &fakeVip{local: true}
	peer := &fakePeer{role: types.RoleMaster, status: types.StatusInitialized}
	c := New(vip, peer, oplog.NewFlagState(), nil)

	c.CheckRole(context.Background(), time.Now())

	require.Equal(t, types.RoleSlave, c.Role(), "must not self-promote while peer still claims master")
	require.Equal(t, 1, peer.demotes)
}

func TestSafeModeWindowClosesAfterConfiguredDuration(t *testing.T) {
	vip := &fakeVip{local: true}
	peer := &fakePeer{role: types.RoleSlave, status: types.StatusInitialized}
	c := New(vip, peer, oplog.NewFlagState(), nil)
	c.safeModeTime = 10 * time.Millisecond

	now := time.Now()
	c.CheckRole(context.Background(), now)
	require.True(t, c.InSafeMode(now))
	require.False(t, c.InSafeMode(now.Add(20*time.Millisecond)))
}

func TestSlavePromotesAfterPeerStaysUnreachable(t *testing.T) {
	vip := &fakeVip{local: true}
	peer := &fakePeer{err: errPeerUnreachable}
	c := New(vip, peer, oplog.NewFlagState(), nil)

	now := time.Now()
	for i := 0; i < defaultMaxConsecutiveFails; i++ {
		c.CheckRole(context.Background(), now)
	}

	require.Equal(t, types.RoleMaster, c.Role(), "must promote once the peer is presumed dead rather than recursing forever")
	require.Equal(t, types.StatusOtherSideDead, c.Status())
}

func TestMasterHeartAdvancesFlagToYesOncePeerInitializedOutsideSafeMode(t *testing.T) {
	vip := &fakeVip{local: true}
	peer := &fakePeer{role: types.RoleSlave, status: types.StatusInitialized}
	flag := oplog.NewFlagState()
	c := New(vip, peer, flag, nil)
	c.safeModeTime = time.Millisecond

	now := time.Now()
	c.CheckRole(context.Background(), now)
	require.Equal(t, types.RoleMaster, c.Role())

	time.Sleep(5 * time.Millisecond)
	c.MasterHeart(context.Background(), time.Now())
	require.Equal(t, oplog.FlagYes, flag.Get())
}
