package agent

import (
	"context"
	"hash/crc32"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xushiwei/tfs/pkg/block"
	"github.com/xushiwei/tfs/pkg/log"
	"github.com/xushiwei/tfs/pkg/metrics"
	"github.com/xushiwei/tfs/pkg/rpc"
	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// pendingWrite accumulates the chunks of one in-flight write between
// CreateFilename (or the first WriteData) and the CloseFile that
// commits it to the block store in a single record.
type pendingWrite struct {
	mu      sync.Mutex
	blockID uint32
	fileID  uint64
	buf     []byte
}

func (p *pendingWrite) writeAt(offset int, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	end := offset + len(data)
	if end > len(p.buf) {
		grown := make([]byte, end)
		copy(grown, p.buf)
		p.buf = grown
	}
	copy(p.buf[offset:end], data)
}

// Agent is the storage-node daemon's rpc.DataNodeServer implementation:
// every RPC a client or the coordinator sends this node delegates to a
// pkg/block.Store.
type Agent struct {
	store    *block.Store
	serverID string

	pendingMu sync.Mutex
	pending   map[string]*pendingWrite
}

// New builds an Agent serving store under serverID.
func New(store *block.Store, serverID string) *Agent {
	return &Agent{
		store:    store,
		serverID: serverID,
		pending:  make(map[string]*pendingWrite),
	}
}

func suffixHash(blockID uint32, fileID uint64) uint32 {
	var b [12]byte
	b[0], b[1], b[2], b[3] = byte(blockID>>24), byte(blockID>>16), byte(blockID>>8), byte(blockID)
	for i := 0; i < 8; i++ {
		b[4+i] = byte(fileID >> (56 - 8*i))
	}
	return uint32(xxhash.Sum64(b[:]))
}

// CreateFilename allocates a fresh file id from blockID's sequence
// counter and hands back its encoded name. Nothing is written to disk
// until the matching WriteData/CloseFile pair commits it.
func (a *Agent) CreateFilename(ctx context.Context, in *rpc.CreateFilenameMessage) (*rpc.FileInfoResponse, error) {
	blockID := uint32(in.BlockID)
	fileID, err := a.store.AllocateFileID(blockID)
	if tfserr.KindOf(err) == tfserr.KindNotFound {
		// First write the coordinator has routed at this block: the
		// placement was decided before any node had it on disk, so create
		// it locally now instead of requiring a separate priming RPC.
		if cerr := a.store.Create(blockID); cerr != nil && tfserr.KindOf(cerr) != tfserr.KindAlreadyExists {
			return nil, cerr
		}
		fileID, err = a.store.AllocateFileID(blockID)
	}
	if err != nil {
		return nil, err
	}
	leading := types.FilenameSmall
	if in.IsLarge {
		leading = types.FilenameLarge
	}
	fn := types.Filename{Leading: leading, BlockID: blockID, FileID: fileID, SuffixHash: suffixHash(blockID, fileID)}
	encoded := fn.Encode()

	a.pendingMu.Lock()
	a.pending[encoded] = &pendingWrite{blockID: blockID, fileID: fileID}
	a.pendingMu.Unlock()

	return &rpc.FileInfoResponse{Filename: encoded}, nil
}

// pendingFor returns the accumulation buffer for an already-decoded
// filename, lazily creating one. Lazy creation lets ReplicateBlock push
// an existing (blockID, fileID) pair through the same WriteData/
// CloseFile pair a client write uses, without a CreateFilename round
// trip that would allocate a new id.
func (a *Agent) pendingFor(fn types.Filename, encoded string) *pendingWrite {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	pw, ok := a.pending[encoded]
	if !ok {
		pw = &pendingWrite{blockID: fn.BlockID, fileID: fn.FileID}
		a.pending[encoded] = pw
	}
	return pw
}

// WriteData stages one chunk of a write in memory at the given offset.
func (a *Agent) WriteData(ctx context.Context, in *rpc.WriteDataMessage) (*rpc.RespHeartMessage, error) {
	fn, err := types.DecodeFilename(in.Filename)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindInvalidArgument, "agent.WriteData", err)
	}
	pw := a.pendingFor(fn, in.Filename)
	pw.writeAt(int(in.Offset), in.Data)
	return &rpc.RespHeartMessage{Status: rpc.StatusSuccess}, nil
}

// CloseFile verifies the client-reported CRC against the staged bytes
// and, on match, commits them to the block store as one record. A CRC
// mismatch discards the staged bytes without ever touching disk - the
// rollback the write path needs on a failed close.
func (a *Agent) CloseFile(ctx context.Context, in *rpc.CloseFileMessage) (*rpc.RespHeartMessage, error) {
	fn, err := types.DecodeFilename(in.Filename)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindInvalidArgument, "agent.CloseFile", err)
	}

	a.pendingMu.Lock()
	pw, ok := a.pending[in.Filename]
	delete(a.pending, in.Filename)
	a.pendingMu.Unlock()
	if !ok {
		return nil, tfserr.New(tfserr.KindNotFound, "agent.CloseFile", "no staged write for filename")
	}

	pw.mu.Lock()
	buf := pw.buf
	pw.mu.Unlock()

	if crc32.ChecksumIEEE(buf) != in.Crc {
		return nil, tfserr.New(tfserr.KindCrcError, "agent.CloseFile", "crc mismatch on close, write rolled back")
	}

	if _, err := a.store.Write(fn.BlockID, fn.FileID, buf); err != nil {
		if tfserr.KindOf(err) != tfserr.KindNotFound {
			return nil, err
		}
		// A replication target closing its first file for a block the
		// source never asked it to prime explicitly.
		if cerr := a.store.Create(fn.BlockID); cerr != nil && tfserr.KindOf(cerr) != tfserr.KindAlreadyExists {
			return nil, cerr
		}
		if _, err = a.store.Write(fn.BlockID, fn.FileID, buf); err != nil {
			return nil, err
		}
	}
	return &rpc.RespHeartMessage{Status: rpc.StatusSuccess}, nil
}

// ReadData resolves len bytes of an already-closed file.
func (a *Agent) ReadData(ctx context.Context, in *rpc.ReadDataMessage) (*rpc.ReadDataResponse, error) {
	fn, err := types.DecodeFilename(in.Filename)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindInvalidArgument, "agent.ReadData", err)
	}
	data, err := a.store.Read(fn.BlockID, fn.FileID, int(in.Offset), int(in.Len), in.Force)
	if err != nil {
		return nil, err
	}
	return &rpc.ReadDataResponse{Data: data}, nil
}

// GetFileInfo stats an already-closed file.
func (a *Agent) GetFileInfo(ctx context.Context, in *rpc.FileInfoMessage) (*rpc.FileInfoResponse, error) {
	fn, err := types.DecodeFilename(in.Filename)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindInvalidArgument, "agent.GetFileInfo", err)
	}
	fh, err := a.store.Stat(fn.BlockID, fn.FileID)
	if err != nil {
		return nil, err
	}
	return &rpc.FileInfoResponse{
		Filename:   in.Filename,
		Size:       fh.Size,
		Status:     int32(fh.Status),
		Crc:        fh.Crc,
		CreateTime: fh.CreateTime,
		ModifyTime: fh.ModifyTime,
	}, nil
}

// UnlinkFile applies a delete/undelete/conceal/unconceal transition.
func (a *Agent) UnlinkFile(ctx context.Context, in *rpc.UnlinkFileMessage) (*rpc.RespHeartMessage, error) {
	fn, err := types.DecodeFilename(in.Filename)
	if err != nil {
		return nil, tfserr.Wrap(tfserr.KindInvalidArgument, "agent.UnlinkFile", err)
	}
	if err := a.store.Unlink(fn.BlockID, fn.FileID, block.UnlinkAction(in.Action)); err != nil {
		return nil, err
	}
	return &rpc.RespHeartMessage{Status: rpc.StatusSuccess}, nil
}

// GetBlockInfo reports this node's view of a hosted block's counters.
func (a *Agent) GetBlockInfo(ctx context.Context, in *rpc.GetBlockInfoMessage) (*rpc.BlockInfoMessage, error) {
	info, err := a.store.Info(in.BlockID)
	if err != nil {
		return nil, err
	}
	metrics.BlockFileSize.WithLabelValues(blockIDLabel(in.BlockID)).Set(float64(info.LiveSize + info.DeletedSize))
	metrics.BlockLiveSize.WithLabelValues(blockIDLabel(in.BlockID)).Set(float64(info.LiveSize))
	metrics.BlockDeletedSize.WithLabelValues(blockIDLabel(in.BlockID)).Set(float64(info.DeletedSize))
	return &rpc.BlockInfoMessage{
		BlockID:     in.BlockID,
		Version:     info.Version,
		FileCount:   info.FileCount,
		LiveSize:    info.LiveSize,
		DeletedSize: info.DeletedSize,
	}, nil
}

// CompactBlock rewrites blockID keeping only live records.
func (a *Agent) CompactBlock(ctx context.Context, in *rpc.CompactBlockMessage) (*rpc.RespHeartMessage, error) {
	logger := log.WithServer(a.serverID)
	start := time.Now()
	err := a.store.Compact(in.BlockID, in.ReadBudget)
	metrics.CompactionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().Err(err).Uint32("block_id", in.BlockID).Msg("compaction failed")
		return nil, err
	}
	logger.Info().Uint32("block_id", in.BlockID).Msg("compaction complete")
	return &rpc.RespHeartMessage{Status: rpc.StatusSuccess}, nil
}

// ReplicateBlock pushes every live record of blockID to each target,
// dialing its DataNodeService directly and replaying the same
// WriteData/CloseFile pair a client write uses - with the source and
// file id fixed, rather than allocated fresh, so the target stores the
// record under the identical name. A target with no local block for
// blockID yet creates one on the first CloseFile, same as a client's
// first write to a freshly allocated block.
func (a *Agent) ReplicateBlock(ctx context.Context, in *rpc.ReplicateBlockMessage) (*rpc.RespHeartMessage, error) {
	logger := log.WithServer(a.serverID)

	metas, err := a.store.List(in.BlockID)
	if err != nil {
		return nil, err
	}

	for _, target := range in.Targets {
		conn, err := grpc.NewClient(target,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			rpc.DialOption(),
		)
		if err != nil {
			logger.Error().Err(err).Str("target", target).Uint32("block_id", in.BlockID).Msg("dial replication target failed")
			return nil, tfserr.Wrap(tfserr.KindNetwork, "agent.ReplicateBlock", err)
		}
		client := rpc.NewDataNodeClient(conn)

		for _, m := range metas {
			fh, err := a.store.Stat(in.BlockID, m.FileID)
			if err != nil {
				conn.Close()
				return nil, err
			}
			if fh.Status.Has(types.FIDeleted) {
				continue
			}
			data, err := a.store.Read(in.BlockID, m.FileID, 0, 0, true)
			if err != nil {
				conn.Close()
				return nil, err
			}
			fn := types.Filename{Leading: types.FilenameSmall, BlockID: in.BlockID, FileID: m.FileID, SuffixHash: suffixHash(in.BlockID, m.FileID)}
			encoded := fn.Encode()
			if _, err := client.WriteData(ctx, &rpc.WriteDataMessage{Filename: encoded, Offset: 0, Data: data}); err != nil {
				conn.Close()
				return nil, err
			}
			if _, err := client.CloseFile(ctx, &rpc.CloseFileMessage{Filename: encoded, Crc: crc32.ChecksumIEEE(data)}); err != nil {
				conn.Close()
				return nil, err
			}
		}
		conn.Close()
	}

	logger.Info().Uint32("block_id", in.BlockID).Strs("targets", in.Targets).Msg("replication pushed to all targets")
	return &rpc.RespHeartMessage{Status: rpc.StatusSuccess}, nil
}

func blockIDLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
