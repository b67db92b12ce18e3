package rpc

import "time"

// StatusCode mirrors the return-status space from spec §6: a small,
// closed set of codes shared across every message pair rather than a
// per-method error type.
type StatusCode int32

const (
	StatusSuccess StatusCode = 0
	StatusError   StatusCode = iota + 100
	StatusInvalidFD
	StatusGeneralError
	StatusHeartOK
	StatusHeartExpBlockID
	StatusHeartNeedSendBlockInfo
)

// SetDataserverMessage is a storage node's periodic liveness report to
// the coordinator.
type SetDataserverMessage struct {
	ServerID      string
	Dead          bool
	TotalCapacity int64
	UseCapacity   int64
	Load          int32
	Rack          string
	HasBlockList  bool
	Blocks        []uint32
}

// RespHeartMessage is the coordinator's reply to a SetDataserverMessage.
type RespHeartMessage struct {
	Status  StatusCode
	Expires []uint32
}

// BlockInfoMessage reports a block's header fields in reply to a storage
// node's GetBlockInfo; the coordinator reads it to find compaction
// candidates and to check a replicate plan's target versions.
type BlockInfoMessage struct {
	BlockID     uint32
	Version     uint32
	FileCount   int32
	LiveSize    int64
	DeletedSize int64
}

// ReplicateBlockMessage commands a storage node to push blockID to
// targets.
type ReplicateBlockMessage struct {
	BlockID uint32
	Targets []string
}

// CompactBlockMessage commands a storage node to compact blockID.
type CompactBlockMessage struct {
	BlockID    uint32
	ReadBudget int64
}

// PlanCompleteMessage reports a plan's outcome back to the coordinator's
// plan engine.
type PlanCompleteMessage struct {
	BlockID  uint32
	Success  bool
	Versions map[string]uint32 // target server id -> reported version, replicate only
}

// OpLogSyncMessage is one framed oplog entry streamed from the active
// coordinator to the standby.
type OpLogSyncMessage struct {
	Seq       uint64
	OpKind    int32
	BlockID   uint32
	FileID    uint64
	Size      int32
	Timestamp time.Time
	Crc       uint32
}

// OpLogSyncAck is the standby's acknowledgment of one received entry:
// LastAppliedSeq echoes that entry's seq. The standby keeps the highest
// seq in memory and does not apply the entry to its registry.
type OpLogSyncAck struct {
	LastAppliedSeq uint64
}

// MasterAndSlaveHeartMessage is one coordinator-to-coordinator peer
// heartbeat exchanged by the HA controller.
type MasterAndSlaveHeartMessage struct {
	Role   int32
	Status int32
}

// MasterAndSlaveHeartResponse is the peer's reply, carrying its own
// observed role and status.
type MasterAndSlaveHeartResponse struct {
	Role   int32
	Status int32
}

// ForceModifyOtherSideRoleMessage is sent by a VIP-holding slave to a
// peer that still claims master, forcing it to demote.
type ForceModifyOtherSideRoleMessage struct {
	TargetRole int32
}

// GetBlockInfoMessage is a client's query for a block's current replica
// set, used before talking directly to a storage node for I/O.
type GetBlockInfoMessage struct {
	BlockID uint32
}

// SetBlockInfoMessage is the coordinator's reply: the ordered replica
// set, primary first.
type SetBlockInfoMessage struct {
	BlockID  uint32
	Replicas []string
}

// AllocateBlockMessage requests a fresh block id and replica set, the
// "force new block" write hint a client sends before its first
// CreateFilename on a file with no existing block to target.
type AllocateBlockMessage struct {
	IsLarge bool
}

// BatchGetBlockInfoMessage resolves many blocks in one round trip.
type BatchGetBlockInfoMessage struct {
	BlockIDs []uint32
}

// BatchSetBlockInfoMessage is the reply to BatchGetBlockInfoMessage.
type BatchSetBlockInfoMessage struct {
	Blocks map[uint32][]string
}

// ListBlocksMessage answers a client's request to enumerate every block
// id the coordinator currently tracks, the tfstool "listblock" command.
type ListBlocksMessage struct {
	BlockIDs []uint32
}

// ClientCmdMessage carries an administrative client command (e.g.
// "listblock" or "cluster_info") to the coordinator.
type ClientCmdMessage struct {
	Cmd     string
	BlockID uint32
}

// ClusterInfoMessage answers GetClusterInfo with the
// NsGlobalStatisticsInfo rollup from the original: a cluster-wide
// capacity/load/block-count snapshot recomputed from the registry.
type ClusterInfoMessage struct {
	UseCapacity    int64
	TotalCapacity  int64
	BlockCount     int32
	AverageLoad    float64
	AliveServers   int32
	ElectSeqNumber uint64
}

// CreateFilenameMessage asks a storage node to allocate a new file_id
// inside blockID and return the encoded filename.
type CreateFilenameMessage struct {
	BlockID int32
	IsLarge bool
}

// WriteDataMessage is one chunk of a client write.
type WriteDataMessage struct {
	Filename string
	Offset   int32
	Data     []byte
}

// CloseFileMessage finalizes a write, supplying the client-computed CRC
// for the storage node to verify.
type CloseFileMessage struct {
	Filename string
	Crc      uint32
}

// ReadDataMessage requests len bytes of filename starting at offset.
type ReadDataMessage struct {
	Filename string
	Offset   int32
	Len      int32
	Force    bool // allow reading FI_CONCEAL records
}

// ReadDataResponse carries the bytes a ReadDataMessage resolved to.
type ReadDataResponse struct {
	Data []byte
}

// FileInfoMessage requests a file's header fields (stat).
type FileInfoMessage struct {
	Filename string
}

// FileInfoResponse is the reply to FileInfoMessage, and also to
// CreateFilenameMessage - where Filename is the newly allocated name and
// every other field is zero until the first CloseFile commits it.
type FileInfoResponse struct {
	Filename   string
	Size       int32
	Status     int32
	Crc        uint32
	CreateTime time.Time
	ModifyTime time.Time
}

// UnlinkFileMessage requests a status-flag transition on filename.
type UnlinkFileMessage struct {
	Filename string
	Action   int32 // delete, undelete, conceal, unconceal
}
