package client_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xushiwei/tfs/pkg/agent"
	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/client"
	"github.com/xushiwei/tfs/pkg/config"
	"github.com/xushiwei/tfs/pkg/coordinator"
	"github.com/xushiwei/tfs/pkg/rpc"
)

// serveOn starts desc on a fresh listener and returns its address,
// stopping the server on test cleanup.
func serveOn(t *testing.T, desc *grpc.ServiceDesc, impl interface{}) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	srv.RegisterService(desc, impl)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestClientPutGetRoundTrip(t *testing.T) {
	store, err := block.Open(t.TempDir(), 1<<20, 17)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// The agent needs its own listen address up front since that's the
	// server id the coordinator's registry will hand back as a replica.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dataNodeAddr := lis.Addr().String()

	ag := agent.New(store, dataNodeAddr)
	srv := grpc.NewServer()
	srv.RegisterService(&rpc.DataNodeServiceDesc, ag)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	cfg := config.DefaultCoordinator()
	cfg.DataDir = t.TempDir()
	cfg.OplogDir = t.TempDir()
	cfg.MasterHeartInterval = 10 * time.Millisecond
	cfg.PlanInterval = 10 * time.Millisecond
	cfg.SafeModeTime = 0
	coord, err := coordinator.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { coord.Close() })

	coordAddr := serveOn(t, &rpc.CoordinatorServiceDesc, coord)

	coordConn, err := grpc.NewClient(coordAddr, grpc.WithTransportCredentials(insecure.NewCredentials()), rpc.DialOption())
	require.NoError(t, err)
	t.Cleanup(func() { coordConn.Close() })
	rawCoord := rpc.NewCoordinatorClient(coordConn)

	_, err = rawCoord.Heartbeat(context.Background(), &rpc.SetDataserverMessage{
		ServerID:      dataNodeAddr,
		TotalCapacity: 1 << 30,
		HasBlockList:  true,
	})
	require.NoError(t, err)

	c, err := client.NewClient(coordAddr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	payload := []byte("hello tfs")
	name, err := c.Put(context.Background(), payload, false)
	require.NoError(t, err)
	require.NotEmpty(t, name)

	got, err := c.Get(context.Background(), name, false)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	info, err := c.Stat(context.Background(), name)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), info.Size)

	require.NoError(t, c.Remove(context.Background(), name))
	_, err = c.Get(context.Background(), name, false)
	require.Error(t, err)

	require.NoError(t, c.Undelete(context.Background(), name))
	got, err = c.Get(context.Background(), name, false)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	ids, err := c.ListBlocks(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ids)
}
