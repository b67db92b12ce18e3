package heartbeat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xushiwei/tfs/pkg/registry"
)

func TestBusyRejectsOnlyOrdinaryHeartbeats(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	m := New(reg, 1, time.Minute)

	// Fill the one admission slot with a blocking goroutine.
	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		m.sem <- struct{}{}
		close(blocked)
		<-release
		<-m.sem
	}()
	<-blocked

	resp := m.Submit(Heartbeat{ServerID: "a"})
	require.Equal(t, CodeStatusError, resp.Code)

	resp = m.Submit(Heartbeat{ServerID: "a", Dead: true})
	require.Equal(t, CodeOK, resp.Code)

	resp = m.Submit(Heartbeat{ServerID: "a", HasBlockList: true, Blocks: []uint32{1}})
	require.Equal(t, CodeOK, resp.Code)

	close(release)
}

func TestBlockListReportsAcceptedAndNeedSendBlockInfo(t *testing.T) {
	reg := registry.New(nil, 2, time.Hour, time.Hour)
	m := New(reg, 4, time.Millisecond)

	resp := m.Submit(Heartbeat{ServerID: "a", HasBlockList: true, Blocks: []uint32{1, 2}})
	require.Equal(t, CodeOK, resp.Code)

	resp = m.Submit(Heartbeat{ServerID: "a", HasBlockList: true, Blocks: []uint32{2}})
	require.Equal(t, CodeOK, resp.Code)

	resp = m.Submit(Heartbeat{ServerID: "b"})
	require.Equal(t, CodeNeedSendBlockInfo, resp.Code) // b has never sent a block list

	resp = m.Submit(Heartbeat{ServerID: "b", HasBlockList: true, Blocks: nil})
	require.Equal(t, CodeOK, resp.Code)

	time.Sleep(2 * time.Millisecond)
	resp = m.Submit(Heartbeat{ServerID: "b"})
	require.Equal(t, CodeNeedSendBlockInfo, resp.Code)
}
