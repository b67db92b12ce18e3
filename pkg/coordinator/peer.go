package coordinator

import (
	"context"
	"net"

	"github.com/xushiwei/tfs/pkg/rpc"
	"github.com/xushiwei/tfs/pkg/types"
)

// peerAdapter implements ha.Peer over a dialed connection to the peer
// coordinator's CoordinatorService.
type peerAdapter struct {
	client *rpc.CoordinatorClient
}

func (p *peerAdapter) Heart(ctx context.Context, selfRole types.NsRole, selfStatus types.NsStatus) (types.NsRole, types.NsStatus, error) {
	resp, err := p.client.PeerHeart(ctx, &rpc.MasterAndSlaveHeartMessage{
		Role:   int32(selfRole),
		Status: int32(selfStatus),
	})
	if err != nil {
		return types.RoleNone, types.StatusNone, err
	}
	return types.NsRole(resp.Role), types.NsStatus(resp.Status), nil
}

func (p *peerAdapter) ForceDemote(ctx context.Context) error {
	_, err := p.client.ForceDemote(ctx, &rpc.ForceModifyOtherSideRoleMessage{TargetRole: int32(types.RoleSlave)})
	return err
}

// noopPeer stands in for a peer when no peer_addr is configured, the
// standalone single-coordinator deployment. It reports itself as an
// already-initialized slave so CheckRole promotes to master on the
// first pass without ever blocking on a real network round trip.
type noopPeer struct{}

func (noopPeer) Heart(ctx context.Context, selfRole types.NsRole, selfStatus types.NsStatus) (types.NsRole, types.NsStatus, error) {
	return types.RoleSlave, types.StatusInitialized, nil
}

func (noopPeer) ForceDemote(ctx context.Context) error { return nil }

// vipResolver reports whether the configured VIP address is bound to the
// named local interface, the same signal keepalived's notify script
// would deliver in production. An empty address means standalone mode:
// the VIP is always considered local.
type vipResolver struct {
	device  string
	address string
}

func (v *vipResolver) IsLocal() bool {
	if v.address == "" {
		return true
	}
	iface, err := net.InterfaceByName(v.device)
	if err != nil {
		return false
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.String() == v.address {
			return true
		}
	}
	return false
}

// dialPeer connects to the peer coordinator at addr using the shared json
// codec.
func dialPeer(addr string) (*rpc.CoordinatorClient, func() error, error) {
	cc, err := dial(addr)
	if err != nil {
		return nil, nil, err
	}
	return rpc.NewCoordinatorClient(cc), cc.Close, nil
}
