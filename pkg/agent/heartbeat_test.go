package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/rpc"
)

type fakeSender struct {
	mu    sync.Mutex
	resps []*rpc.RespHeartMessage
	got   []*rpc.SetDataserverMessage
}

func (f *fakeSender) Heartbeat(ctx context.Context, in *rpc.SetDataserverMessage) (*rpc.RespHeartMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	if len(f.resps) == 0 {
		return &rpc.RespHeartMessage{Status: rpc.StatusHeartOK}, nil
	}
	r := f.resps[0]
	f.resps = f.resps[1:]
	return r, nil
}

func (f *fakeSender) calls() []*rpc.SetDataserverMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*rpc.SetDataserverMessage, len(f.got))
	copy(out, f.got)
	return out
}

func newTestStore(t *testing.T) *block.Store {
	t.Helper()
	s, err := block.Open(t.TempDir(), 1<<20, 17)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHeartbeaterReportsFullBlockListEveryNthBeat(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create(1))

	sender := &fakeSender{}
	h := NewHeartbeater(store, sender, "server-a", "rack-1", 1<<30, time.Millisecond, 3)

	for i := 0; i < 3; i++ {
		h.beatOnce(context.Background())
	}

	calls := sender.calls()
	require.Len(t, calls, 3)
	require.False(t, calls[0].HasBlockList)
	require.False(t, calls[1].HasBlockList)
	require.True(t, calls[2].HasBlockList)
	require.Equal(t, []uint32{1}, calls[2].Blocks)
}

func TestHeartbeaterForcesBlockListAfterNeedSendResponse(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Create(1))

	sender := &fakeSender{resps: []*rpc.RespHeartMessage{
		{Status: rpc.StatusHeartNeedSendBlockInfo},
	}}
	h := NewHeartbeater(store, sender, "server-a", "rack-1", 1<<30, time.Millisecond, 10)

	h.beatOnce(context.Background()) // triggers NEED_SEND_BLOCK_INFO
	h.beatOnce(context.Background()) // should carry the full list early

	calls := sender.calls()
	require.Len(t, calls, 2)
	require.False(t, calls[0].HasBlockList)
	require.True(t, calls[1].HasBlockList)
}
