package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// CoordinatorClient is a thin wrapper over a grpc.ClientConn dialed with
// the json codec, used by storage nodes, tfstool, and the peer
// coordinator.
type CoordinatorClient struct {
	cc *grpc.ClientConn
}

// NewCoordinatorClient wraps an already-dialed connection.
func NewCoordinatorClient(cc *grpc.ClientConn) *CoordinatorClient {
	return &CoordinatorClient{cc: cc}
}

func (c *CoordinatorClient) Heartbeat(ctx context.Context, in *SetDataserverMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/Heartbeat", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) ReportPlanComplete(ctx context.Context, in *PlanCompleteMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/ReportPlanComplete", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) GetBlockInfo(ctx context.Context, in *GetBlockInfoMessage) (*SetBlockInfoMessage, error) {
	out := new(SetBlockInfoMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/GetBlockInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) BatchGetBlockInfo(ctx context.Context, in *BatchGetBlockInfoMessage) (*BatchSetBlockInfoMessage, error) {
	out := new(BatchSetBlockInfoMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/BatchGetBlockInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) AllocateBlock(ctx context.Context, in *AllocateBlockMessage) (*SetBlockInfoMessage, error) {
	out := new(SetBlockInfoMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/AllocateBlock", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) ListBlocks(ctx context.Context, in *ClientCmdMessage) (*ListBlocksMessage, error) {
	out := new(ListBlocksMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/ListBlocks", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) GetClusterInfo(ctx context.Context, in *ClientCmdMessage) (*ClusterInfoMessage, error) {
	out := new(ClusterInfoMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/GetClusterInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) PeerHeart(ctx context.Context, in *MasterAndSlaveHeartMessage) (*MasterAndSlaveHeartResponse, error) {
	out := new(MasterAndSlaveHeartResponse)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/PeerHeart", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) ForceDemote(ctx context.Context, in *ForceModifyOtherSideRoleMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/ForceDemote", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *CoordinatorClient) SyncOplog(ctx context.Context, in *OpLogSyncMessage) (*OpLogSyncAck, error) {
	out := new(OpLogSyncAck)
	if err := c.cc.Invoke(ctx, "/tfs.CoordinatorService/SyncOplog", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DataNodeClient is a thin wrapper over a grpc.ClientConn to one storage
// node, used by pkg/client (and so tfstool), by the coordinator to
// dispatch plans, and by a storage node pushing a block to replication
// targets.
type DataNodeClient struct {
	cc *grpc.ClientConn
}

// NewDataNodeClient wraps an already-dialed connection.
func NewDataNodeClient(cc *grpc.ClientConn) *DataNodeClient {
	return &DataNodeClient{cc: cc}
}

func (c *DataNodeClient) CreateFilename(ctx context.Context, in *CreateFilenameMessage) (*FileInfoResponse, error) {
	out := new(FileInfoResponse)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/CreateFilename", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) WriteData(ctx context.Context, in *WriteDataMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/WriteData", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) CloseFile(ctx context.Context, in *CloseFileMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/CloseFile", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) ReadData(ctx context.Context, in *ReadDataMessage) (*ReadDataResponse, error) {
	out := new(ReadDataResponse)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/ReadData", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) GetFileInfo(ctx context.Context, in *FileInfoMessage) (*FileInfoResponse, error) {
	out := new(FileInfoResponse)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/GetFileInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) UnlinkFile(ctx context.Context, in *UnlinkFileMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/UnlinkFile", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) ReplicateBlock(ctx context.Context, in *ReplicateBlockMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/ReplicateBlock", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) CompactBlock(ctx context.Context, in *CompactBlockMessage) (*RespHeartMessage, error) {
	out := new(RespHeartMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/CompactBlock", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DataNodeClient) GetBlockInfo(ctx context.Context, in *GetBlockInfoMessage) (*BlockInfoMessage, error) {
	out := new(BlockInfoMessage)
	if err := c.cc.Invoke(ctx, "/tfs.DataNodeService/GetBlockInfo", in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DialOption selects the json codec for a client connection.
func DialOption() grpc.DialOption {
	return grpc.ForceCodec(jsonCodec{})
}
