/*
Package agent implements the storage-node daemon (tfsds): the
rpc.DataNodeServer that serves client reads/writes/unlinks and
coordinator-issued replicate/compact commands against a pkg/block.Store,
plus the heartbeat loop that reports liveness and block lists back to
the coordinator.

# Heartbeat loop

Every config.Storage.HeartbeatEvery the agent sends a
SetDataserverMessage carrying its capacity and load. Every
ReportBlockEvery-th heartbeat it attaches the full block list. If a
response comes back StatusHeartNeedSendBlockInfo, the next heartbeat is
forced to carry the full list regardless of where the counter stood,
mirroring the coordinator's own need-send-block-info bookkeeping in
pkg/heartbeat.

# Write path

CreateFilename allocates a new file_id from the named block's sequence
counter and returns the client-opaque encoded name. WriteData and
CloseFile are separate RPCs so a client can stream a write in chunks
before the storage node verifies the final CRC. Neither this package nor
pkg/client forwards a write to the secondaries of the replica set
returned by the coordinator: client.Put sends every chunk and the close
to the primary only.
*/
package agent
