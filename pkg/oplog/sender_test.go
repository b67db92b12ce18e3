package oplog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/types"
)

type fakeTransport struct {
	mu  sync.Mutex
	got []types.OplogEntry
}

func (f *fakeTransport) Send(_ context.Context, e types.OplogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return nil
}

func (f *fakeTransport) entries() []types.OplogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.OplogEntry, len(f.got))
	copy(out, f.got)
	return out
}

func TestSenderWaitsForFlagYesThenStreamsInOrder(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, 0, SyncFsync)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 3; i++ {
		_, err := q.Append(types.OplogEntry{OpKind: types.OperInsert, BlockID: uint32(i), Timestamp: time.Now()})
		require.NoError(t, err)
	}

	flag := NewFlagState()
	transport := &fakeTransport{}
	sender := NewSender(q, transport, flag)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sender.Run(ctx)

	time.Sleep(10 * time.Millisecond)
	require.Empty(t, transport.entries(), "sender must not stream before the flag reaches yes")

	flag.ToYes()
	require.Eventually(t, func() bool {
		return len(transport.entries()) == 3
	}, time.Second, 5*time.Millisecond)

	got := transport.entries()
	for i, e := range got {
		require.Equal(t, uint64(i+1), e.Seq)
	}
	require.Equal(t, uint64(3), sender.LastAckedSeq())
}

func TestFlagStateWaitReturnsOnNextTransition(t *testing.T) {
	flag := NewFlagState()
	done := make(chan Flag, 1)
	go func() { done <- flag.Wait() }()

	time.Sleep(5 * time.Millisecond)
	flag.ToReady()

	select {
	case v := <-done:
		require.Equal(t, FlagReady, v)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Set")
	}
}
