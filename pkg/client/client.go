package client

import (
	"context"
	"hash/crc32"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/rpc"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

const (
	defaultRPCTimeout = 10 * time.Second
	defaultRetryCount = 3
	defaultRetryWait  = 100 * time.Millisecond
	writeChunkSize    = 1 << 20
)

// Client wraps the coordinator and storage-node gRPC surfaces behind the
// two-hop path every TFS caller follows: resolve a file's block through
// the coordinator once, then talk directly to the resolved storage node
// for every byte of that file.
type Client struct {
	coordConn *grpc.ClientConn
	coord     *rpc.CoordinatorClient

	mu        sync.Mutex
	dataConns map[string]*grpc.ClientConn
	dataNodes map[string]*rpc.DataNodeClient

	retryCount int
}

// NewClient dials coordinatorAddr and returns a ready Client, retrying
// transient RPCs up to the spec's default client_retry_count.
func NewClient(coordinatorAddr string) (*Client, error) {
	return NewClientWithRetry(coordinatorAddr, defaultRetryCount)
}

// NewClientWithRetry is NewClient with an explicit retry budget.
func NewClientWithRetry(coordinatorAddr string, retryCount int) (*Client, error) {
	conn, err := dial(coordinatorAddr)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindNetwork, "client.NewClient", err)
	}
	return &Client{
		coordConn:  conn,
		coord:      rpc.NewCoordinatorClient(conn),
		dataConns:  make(map[string]*grpc.ClientConn),
		dataNodes:  make(map[string]*rpc.DataNodeClient),
		retryCount: retryCount,
	}, nil
}

func dial(addr string) (*grpc.ClientConn, error) {
	return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()), rpc.DialOption())
}

// Close releases the coordinator connection and every storage-node
// connection opened along the way.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cc := range c.dataConns {
		_ = cc.Close()
	}
	return c.coordConn.Close()
}

func (c *Client) dataNode(addr string) (*rpc.DataNodeClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if dn, ok := c.dataNodes[addr]; ok {
		return dn, nil
	}
	cc, err := dial(addr)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindNetwork, "client.dataNode", err)
	}
	dn := rpc.NewDataNodeClient(cc)
	c.dataConns[addr] = cc
	c.dataNodes[addr] = dn
	return dn, nil
}

// withRetry runs fn until it succeeds, a non-retryable error surfaces, or
// the retry budget is spent, backing off between attempts. Busy,
// NotLeader, and Network are the only kinds the coordinator expects a
// caller to retry (spec §7 propagation policy).
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	wait := defaultRetryWait
	var err error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return err
}

func isRetryable(err error) bool {
	msg := err.Error()
	for _, kind := range []tfserr.Kind{tfserr.KindBusy, tfserr.KindNotLeader, tfserr.KindNetwork} {
		if strings.Contains(msg, string(kind)) {
			return true
		}
	}
	return false
}

// Put writes data as a new small file in a block freshly allocated by the
// coordinator on every call, and returns the file's opaque
// name. isLarge marks the file as a large-file index blob rather than a
// raw small file (spec §3's Leading byte distinction); TFS's small-file
// focus means most callers pass false.
func (c *Client) Put(ctx context.Context, data []byte, isLarge bool) (string, error) {
	var alloc *rpc.SetBlockInfoMessage
	err := c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		alloc, err = c.coord.AllocateBlock(ctx, &rpc.AllocateBlockMessage{IsLarge: isLarge})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(alloc.Replicas) == 0 {
		return "", tfserr.New(tfserr.KindCapacityExhausted, "client.Put", "coordinator returned no replicas for the new block")
	}

	primary, err := c.dataNode(alloc.Replicas[0])
	if err != nil {
		return "", err
	}

	var created *rpc.FileInfoResponse
	err = c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		created, err = primary.CreateFilename(ctx, &rpc.CreateFilenameMessage{BlockID: int32(alloc.BlockID), IsLarge: isLarge})
		return err
	})
	if err != nil {
		return "", err
	}

	for offset := 0; offset < len(data); offset += writeChunkSize {
		end := offset + writeChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]
		o := offset
		if err := c.withRetry(ctx, func() error {
			ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
			defer cancel()
			_, err := primary.WriteData(ctx, &rpc.WriteDataMessage{Filename: created.Filename, Offset: int32(o), Data: chunk})
			return err
		}); err != nil {
			return "", err
		}
	}

	crc := crc32.ChecksumIEEE(data)
	if err := c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		_, err := primary.CloseFile(ctx, &rpc.CloseFileMessage{Filename: created.Filename, Crc: crc})
		return err
	}); err != nil {
		return "", err
	}
	return created.Filename, nil
}

// resolvePrimary decodes filename and asks the coordinator for its
// ordered replica set, returning a dialed DataNodeClient for the primary.
func (c *Client) resolvePrimary(ctx context.Context, filename string) (*rpc.DataNodeClient, types.Filename, error) {
	fn, err := types.DecodeFilename(filename)
	if err != nil {
		return nil, types.Filename{}, tfserr.Wrap(tfserr.KindInvalidArgument, "client.resolvePrimary", err)
	}

	var info *rpc.SetBlockInfoMessage
	err = c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		info, err = c.coord.GetBlockInfo(ctx, &rpc.GetBlockInfoMessage{BlockID: fn.BlockID})
		return err
	})
	if err != nil {
		return nil, types.Filename{}, err
	}
	if len(info.Replicas) == 0 {
		return nil, types.Filename{}, tfserr.New(tfserr.KindNotFound, "client.resolvePrimary", "block has no replicas")
	}

	dn, err := c.dataNode(info.Replicas[0])
	return dn, fn, err
}

// Get reads an entire file's bytes. force allows reading a concealed
// file (the "hide" state), matching ReadDataMessage.Force.
func (c *Client) Get(ctx context.Context, filename string, force bool) ([]byte, error) {
	dn, _, err := c.resolvePrimary(ctx, filename)
	if err != nil {
		return nil, err
	}
	var resp *rpc.ReadDataResponse
	err = c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		resp, err = dn.ReadData(ctx, &rpc.ReadDataMessage{Filename: filename, Offset: 0, Len: 0, Force: force})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Stat reports a file's header fields.
func (c *Client) Stat(ctx context.Context, filename string) (*rpc.FileInfoResponse, error) {
	dn, _, err := c.resolvePrimary(ctx, filename)
	if err != nil {
		return nil, err
	}
	var resp *rpc.FileInfoResponse
	err = c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		resp, err = dn.GetFileInfo(ctx, &rpc.FileInfoMessage{Filename: filename})
		return err
	})
	return resp, err
}

func (c *Client) unlink(ctx context.Context, filename string, action block.UnlinkAction) error {
	dn, _, err := c.resolvePrimary(ctx, filename)
	if err != nil {
		return err
	}
	return c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		_, err := dn.UnlinkFile(ctx, &rpc.UnlinkFileMessage{Filename: filename, Action: int32(action)})
		return err
	})
}

// Remove marks filename deleted.
func (c *Client) Remove(ctx context.Context, filename string) error {
	return c.unlink(ctx, filename, block.ActionDelete)
}

// Undelete clears a prior Remove.
func (c *Client) Undelete(ctx context.Context, filename string) error {
	return c.unlink(ctx, filename, block.ActionUndelete)
}

// Hide conceals filename: Get only returns its bytes with force=true.
func (c *Client) Hide(ctx context.Context, filename string) error {
	return c.unlink(ctx, filename, block.ActionConceal)
}

// Unhide clears a prior Hide.
func (c *Client) Unhide(ctx context.Context, filename string) error {
	return c.unlink(ctx, filename, block.ActionUnconceal)
}

// StatBlock reports a hosted block's header fields directly from its
// primary, bypassing the coordinator's registry view.
func (c *Client) StatBlock(ctx context.Context, blockID uint32) (*rpc.BlockInfoMessage, error) {
	var info *rpc.SetBlockInfoMessage
	err := c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		info, err = c.coord.GetBlockInfo(ctx, &rpc.GetBlockInfoMessage{BlockID: blockID})
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(info.Replicas) == 0 {
		return nil, tfserr.New(tfserr.KindNotFound, "client.StatBlock", "block has no replicas")
	}
	dn, err := c.dataNode(info.Replicas[0])
	if err != nil {
		return nil, err
	}
	var out *rpc.BlockInfoMessage
	err = c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		out, err = dn.GetBlockInfo(ctx, &rpc.GetBlockInfoMessage{BlockID: blockID})
		return err
	})
	return out, err
}

// ListBlocks returns every block id the coordinator currently tracks.
func (c *Client) ListBlocks(ctx context.Context) ([]uint32, error) {
	var resp *rpc.ListBlocksMessage
	err := c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		resp, err = c.coord.ListBlocks(ctx, &rpc.ClientCmdMessage{Cmd: "listblock"})
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.BlockIDs, nil
}

// ClusterInfo reports the coordinator's cluster-wide rollup.
func (c *Client) ClusterInfo(ctx context.Context) (*rpc.ClusterInfoMessage, error) {
	var resp *rpc.ClusterInfoMessage
	err := c.withRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		defer cancel()
		var err error
		resp, err = c.coord.GetClusterInfo(ctx, &rpc.ClientCmdMessage{Cmd: "cluster_info"})
		return err
	})
	return resp, err
}
