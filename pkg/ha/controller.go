package ha

import (
	"context"
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/oplog"
	"github.com/xushiwei/tfs/pkg/types"
)

// VipResolver reports whether the floating VIP currently resolves to
// this instance. The coordinator daemon wires in a check of whether the
// VIP address is bound to a local interface; tests inject a fake.
type VipResolver interface {
	IsLocal() bool
}

// Peer is the subset of the peer coordinator a Controller needs to
// drive the master/slave handshake.
type Peer interface {
	// Heart exchanges one MasterAndSlaveHeartMessage-equivalent round
	// trip and returns the peer's currently observed role and status.
	Heart(ctx context.Context, selfRole types.NsRole, selfStatus types.NsStatus) (types.NsRole, types.NsStatus, error)
	// ForceDemote sends HEART_FORCE_MODIFY_OTHERSIDE_ROLE_FLAGS_YES.
	ForceDemote(ctx context.Context) error
}

const (
	defaultMasterHeartInterval = 2 * time.Second
	defaultSafeModeTime        = 300 * time.Second
	defaultMaxConsecutiveFails = 3
	defaultForceDemoteRetries  = 3
)

// Controller runs the master/slave state machine for one coordinator
// instance. All multi-field transitions take mu, mirroring the single
// exclusive mutex the original uses to guard NsRuntimeGlobalInformation.
type Controller struct {
	mu sync.Mutex

	role   types.NsRole
	status types.NsStatus

	otherRole   types.NsRole
	otherStatus types.NsStatus

	switchTime time.Time

	vip  VipResolver
	peer Peer
	flag *oplog.FlagState

	consecutiveFails int

	masterHeartInterval time.Duration
	safeModeTime        time.Duration

	onDemote func() // cancels in-flight plans
}

// New builds a Controller starting as an uninitialized slave, the same
// conservative starting state the original assigns before the first VIP
// check runs.
func New(vip VipResolver, peer Peer, flag *oplog.FlagState, onDemote func()) *Controller {
	return &Controller{
		role:                types.RoleSlave,
		status:              types.StatusUninitialized,
		vip:                 vip,
		peer:                peer,
		flag:                flag,
		onDemote:            onDemote,
		masterHeartInterval: defaultMasterHeartInterval,
		safeModeTime:        defaultSafeModeTime,
	}
}

// SetMasterHeartInterval overrides the default master-heart cadence,
// letting the coordinator daemon apply its configured interval.
func (c *Controller) SetMasterHeartInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.masterHeartInterval = d
}

// SetSafeModeTime overrides the default safe-mode window.
func (c *Controller) SetSafeModeTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.safeModeTime = d
}

// Role reports the current role.
func (c *Controller) Role() types.NsRole {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Status reports the current handshake status.
func (c *Controller) Status() types.NsStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// MarkInitialized records that this instance has finished loading its
// registry state and is ready to serve as master, the precondition
// MasterHeart waits on before advancing the peer's sync flag to yes.
func (c *Controller) MarkInitialized() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = types.StatusInitialized
}

// ForceDemote accepts a peer's HEART_FORCE_MODIFY_OTHERSIDE_ROLE_FLAGS_YES
// and transitions to slave unconditionally, the receiving side of
// promoteIfPeerAgrees' force-demote retry loop.
func (c *Controller) ForceDemote(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(types.RoleSlave, now)
}

// InSafeMode reports whether the safe-mode window from the last role
// transition is still open; callers gate plan emission and
// registry-driven deletion on this.
func (c *Controller) InSafeMode(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.switchTime)
}

func (c *Controller) transitionLocked(newRole types.NsRole, now time.Time) {
	if newRole == c.role {
		return
	}
	log.WithComponent("ha").Info().Str("from", roleString(c.role)).Str("to", roleString(newRole)).Msg("role transition")
	c.role = newRole
	c.switchTime = now.Add(c.safeModeTime)
	if newRole == types.RoleSlave {
		c.status = types.StatusUninitialized
		c.flag.ToNo()
		if c.onDemote != nil {
			c.onDemote()
		}
	}
}

func roleString(r types.NsRole) string {
	if r == types.RoleMaster {
		return "master"
	}
	return "slave"
}

// CheckRole runs one VIP-arbitration pass, the "check-role" timer task.
func (c *Controller) CheckRole(ctx context.Context, now time.Time) {
	local := c.vip.IsLocal()

	c.mu.Lock()
	role := c.role
	c.mu.Unlock()

	switch {
	case !local && role == types.RoleMaster:
		c.mu.Lock()
		c.transitionLocked(types.RoleSlave, now)
		c.mu.Unlock()

	case local && role == types.RoleSlave:
		c.promoteIfPeerAgrees(ctx, now)
	}
}

// promoteIfPeerAgrees implements the deliberately asymmetric promotion
// rule: a VIP-holding slave polls the peer first, and only promotes if
// the peer does not still claim master. If the peer claims master while
// VIP is local here, the peer is force-demoted instead.
func (c *Controller) promoteIfPeerAgrees(ctx context.Context, now time.Time) {
	peerRole, peerStatus, err := c.peer.Heart(ctx, c.Role(), c.currentStatus())
	if err != nil {
		c.recordFailure(now)
		return
	}
	c.resetFailures()

	c.mu.Lock()
	c.otherRole, c.otherStatus = peerRole, peerStatus
	c.mu.Unlock()

	if peerRole == types.RoleMaster {
		for i := 0; i < defaultForceDemoteRetries; i++ {
			if err := c.peer.ForceDemote(ctx); err == nil {
				break
			}
		}
		return
	}

	c.mu.Lock()
	c.transitionLocked(types.RoleMaster, now)
	c.mu.Unlock()
}

func (c *Controller) currentStatus() types.NsStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) recordFailure(now time.Time) {
	c.mu.Lock()
	c.consecutiveFails++
	dead := c.consecutiveFails >= defaultMaxConsecutiveFails
	if dead {
		c.status = types.StatusOtherSideDead
	}
	c.mu.Unlock()

	if !dead {
		return
	}
	// Peer presumed dead. Promote directly if this instance already holds
	// the VIP and is still slave, rather than re-running full arbitration:
	// that would just call peer.Heart again, fail again on the same
	// unreachable peer, and recurse through recordFailure without bound.
	if c.Role() == types.RoleSlave && c.vip.IsLocal() {
		c.mu.Lock()
		c.transitionLocked(types.RoleMaster, now)
		c.mu.Unlock()
	}
}

func (c *Controller) resetFailures() {
	c.mu.Lock()
	c.consecutiveFails = 0
	c.mu.Unlock()
}

// MasterHeart runs the master periodic task: exchange heartbeats with
// the peer and, once it reports initialized, advance the sync flag to
// yes so the oplog sender starts streaming.
func (c *Controller) MasterHeart(ctx context.Context, now time.Time) {
	if c.Role() != types.RoleMaster {
		return
	}
	peerRole, peerStatus, err := c.peer.Heart(ctx, types.RoleMaster, c.currentStatus())
	if err != nil {
		c.recordFailure(now)
		return
	}
	c.resetFailures()

	c.mu.Lock()
	c.otherRole, c.otherStatus = peerRole, peerStatus
	safeModeOpen := now.Before(c.switchTime)
	c.mu.Unlock()

	if peerStatus == types.StatusInitialized && !safeModeOpen {
		c.flag.ToYes()
	} else if peerStatus != types.StatusInitialized {
		c.flag.ToReady()
	}
}

// SlaveHeart runs the slave periodic task: analogous to MasterHeart, but
// on repeated peer failure it re-checks the VIP rather than advancing
// the sync flag.
func (c *Controller) SlaveHeart(ctx context.Context, now time.Time) {
	if c.Role() != types.RoleSlave {
		return
	}
	_, peerStatus, err := c.peer.Heart(ctx, types.RoleSlave, c.currentStatus())
	if err != nil {
		c.recordFailure(now)
		return
	}
	c.resetFailures()

	c.mu.Lock()
	c.otherStatus = peerStatus
	c.mu.Unlock()
}

// MasterHeartInterval reports the configured master-heart cadence.
func (c *Controller) MasterHeartInterval() time.Duration {
	return c.masterHeartInterval
}
