package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// CoordinatorServer is implemented by the coordinator daemon: every RPC
// a storage node, a client, or the peer coordinator can send it.
type CoordinatorServer interface {
	Heartbeat(context.Context, *SetDataserverMessage) (*RespHeartMessage, error)
	ReportPlanComplete(context.Context, *PlanCompleteMessage) (*RespHeartMessage, error)
	GetBlockInfo(context.Context, *GetBlockInfoMessage) (*SetBlockInfoMessage, error)
	BatchGetBlockInfo(context.Context, *BatchGetBlockInfoMessage) (*BatchSetBlockInfoMessage, error)
	AllocateBlock(context.Context, *AllocateBlockMessage) (*SetBlockInfoMessage, error)
	ListBlocks(context.Context, *ClientCmdMessage) (*ListBlocksMessage, error)
	GetClusterInfo(context.Context, *ClientCmdMessage) (*ClusterInfoMessage, error)
	PeerHeart(context.Context, *MasterAndSlaveHeartMessage) (*MasterAndSlaveHeartResponse, error)
	ForceDemote(context.Context, *ForceModifyOtherSideRoleMessage) (*RespHeartMessage, error)
	SyncOplog(context.Context, *OpLogSyncMessage) (*OpLogSyncAck, error)
}

// DataNodeServer is implemented by the storage-node agent: every RPC a
// client or the coordinator can send it.
type DataNodeServer interface {
	CreateFilename(context.Context, *CreateFilenameMessage) (*FileInfoResponse, error)
	WriteData(context.Context, *WriteDataMessage) (*RespHeartMessage, error)
	CloseFile(context.Context, *CloseFileMessage) (*RespHeartMessage, error)
	ReadData(context.Context, *ReadDataMessage) (*ReadDataResponse, error)
	GetFileInfo(context.Context, *FileInfoMessage) (*FileInfoResponse, error)
	UnlinkFile(context.Context, *UnlinkFileMessage) (*RespHeartMessage, error)
	ReplicateBlock(context.Context, *ReplicateBlockMessage) (*RespHeartMessage, error)
	CompactBlock(context.Context, *CompactBlockMessage) (*RespHeartMessage, error)
	GetBlockInfo(context.Context, *GetBlockInfoMessage) (*BlockInfoMessage, error)
}

func unary(dec func(interface{}) error, ctx context.Context, srv interface{}, info *grpc.UnaryServerInfo, interceptor grpc.UnaryServerInterceptor, in interface{}, call func(context.Context, interface{}) (interface{}, error)) (interface{}, error) {
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return call(ctx, req)
	})
}

// CoordinatorServiceDesc is the hand-rolled grpc.ServiceDesc for
// CoordinatorService, the storage-node/client/peer-coordinator facing
// RPC surface of C3-C7.
var CoordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: "tfs.CoordinatorService",
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Heartbeat",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(SetDataserverMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/Heartbeat"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).Heartbeat(ctx, req.(*SetDataserverMessage))
				})
			},
		},
		{
			MethodName: "ReportPlanComplete",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(PlanCompleteMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/ReportPlanComplete"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).ReportPlanComplete(ctx, req.(*PlanCompleteMessage))
				})
			},
		},
		{
			MethodName: "GetBlockInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetBlockInfoMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/GetBlockInfo"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).GetBlockInfo(ctx, req.(*GetBlockInfoMessage))
				})
			},
		},
		{
			MethodName: "BatchGetBlockInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(BatchGetBlockInfoMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/BatchGetBlockInfo"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).BatchGetBlockInfo(ctx, req.(*BatchGetBlockInfoMessage))
				})
			},
		},
		{
			MethodName: "AllocateBlock",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(AllocateBlockMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/AllocateBlock"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).AllocateBlock(ctx, req.(*AllocateBlockMessage))
				})
			},
		},
		{
			MethodName: "ListBlocks",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ClientCmdMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/ListBlocks"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).ListBlocks(ctx, req.(*ClientCmdMessage))
				})
			},
		},
		{
			MethodName: "GetClusterInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ClientCmdMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/GetClusterInfo"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).GetClusterInfo(ctx, req.(*ClientCmdMessage))
				})
			},
		},
		{
			MethodName: "PeerHeart",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(MasterAndSlaveHeartMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/PeerHeart"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).PeerHeart(ctx, req.(*MasterAndSlaveHeartMessage))
				})
			},
		},
		{
			MethodName: "ForceDemote",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ForceModifyOtherSideRoleMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/ForceDemote"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).ForceDemote(ctx, req.(*ForceModifyOtherSideRoleMessage))
				})
			},
		},
		{
			MethodName: "SyncOplog",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(OpLogSyncMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.CoordinatorService/SyncOplog"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(CoordinatorServer).SyncOplog(ctx, req.(*OpLogSyncMessage))
				})
			},
		},
	},
	Metadata: "tfs.proto",
}

// DataNodeServiceDesc is the hand-rolled grpc.ServiceDesc for
// DataNodeService, the client/coordinator facing RPC surface of C1/C2.
var DataNodeServiceDesc = grpc.ServiceDesc{
	ServiceName: "tfs.DataNodeService",
	HandlerType: (*DataNodeServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateFilename",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(CreateFilenameMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/CreateFilename"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).CreateFilename(ctx, req.(*CreateFilenameMessage))
				})
			},
		},
		{
			MethodName: "WriteData",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(WriteDataMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/WriteData"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).WriteData(ctx, req.(*WriteDataMessage))
				})
			},
		},
		{
			MethodName: "CloseFile",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(CloseFileMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/CloseFile"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).CloseFile(ctx, req.(*CloseFileMessage))
				})
			},
		},
		{
			MethodName: "ReadData",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ReadDataMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/ReadData"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).ReadData(ctx, req.(*ReadDataMessage))
				})
			},
		},
		{
			MethodName: "GetFileInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(FileInfoMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/GetFileInfo"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).GetFileInfo(ctx, req.(*FileInfoMessage))
				})
			},
		},
		{
			MethodName: "UnlinkFile",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(UnlinkFileMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/UnlinkFile"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).UnlinkFile(ctx, req.(*UnlinkFileMessage))
				})
			},
		},
		{
			MethodName: "ReplicateBlock",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(ReplicateBlockMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/ReplicateBlock"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).ReplicateBlock(ctx, req.(*ReplicateBlockMessage))
				})
			},
		},
		{
			MethodName: "CompactBlock",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(CompactBlockMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/CompactBlock"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).CompactBlock(ctx, req.(*CompactBlockMessage))
				})
			},
		},
		{
			MethodName: "GetBlockInfo",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetBlockInfoMessage)
				return unary(dec, ctx, srv, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/tfs.DataNodeService/GetBlockInfo"}, interceptor, in, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(DataNodeServer).GetBlockInfo(ctx, req.(*GetBlockInfoMessage))
				})
			},
		},
	},
	Metadata: "tfs.proto",
}

// RegisterCoordinatorServer registers srv on s using CoordinatorServiceDesc.
func RegisterCoordinatorServer(s *grpc.Server, srv CoordinatorServer) {
	s.RegisterService(&CoordinatorServiceDesc, srv)
}

// RegisterDataNodeServer registers srv on s using DataNodeServiceDesc.
func RegisterDataNodeServer(s *grpc.Server, srv DataNodeServer) {
	s.RegisterService(&DataNodeServiceDesc, srv)
}
