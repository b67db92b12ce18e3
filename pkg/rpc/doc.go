/*
Package rpc defines the wire contract between storage nodes, the
coordinator pair, and clients (spec §6): plain Go message structs,
carried over gRPC using a registered JSON codec instead of protobuf —
the specification covers the semantic requests and responses, not wire
framing, so there is no .proto schema to compile.

CoordinatorServiceDesc and DataNodeServiceDesc are hand-rolled
grpc.ServiceDesc values built the way protoc-gen-go-grpc would generate
them, registered against the CoordinatorServer and DataNodeServer
interfaces that pkg/coordinator and pkg/agent implement.
CoordinatorClient and DataNodeClient are the matching thin client
wrappers over a dialed *grpc.ClientConn.
*/
package rpc
