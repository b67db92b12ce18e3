package block

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// UnlinkAction selects the status transition unlink performs.
type UnlinkAction int

const (
	ActionDelete UnlinkAction = iota
	ActionUndelete
	ActionConceal
	ActionUnconceal
)

func (a UnlinkAction) flag() types.FileinfoFlag {
	switch a {
	case ActionDelete:
		return types.FIDeleted
	case ActionConceal:
		return types.FIConceal
	default:
		return 0
	}
}

// Block is one logical block: a chain of physical block files sharing a
// logic_block_id, plus the hashed file index describing where each
// file's bytes live.
type Block struct {
	mu sync.RWMutex

	logicBlockID uint32
	chain        []*physicalBlock // main first, extensions in chain order
	idx          *fileIndex
	idxPath      string

	dirtyFlag  types.DirtyFlag
	nextFileID uint64
	compacting bool
}

func (b *Block) main() *physicalBlock {
	return b.chain[0]
}

func (b *Block) tail() *physicalBlock {
	return b.chain[len(b.chain)-1]
}

// Version returns the block's current version counter, read under lock.
func (b *Block) Version() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.main().info.Version
}

// AllocateFileID reserves the next file id from the block's sequence
// counter without writing a record, letting a caller hand the id back
// to a client before any bytes have arrived.
func (b *Block) AllocateFileID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextFileID++
	return b.nextFileID
}

// Write appends data as a record. If fileID is 0 a new id is allocated
// from the block's sequence counter. Returns the (possibly new) fileID.
func (b *Block) Write(fileID uint64, data []byte) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirtyFlag == types.DataCompact {
		return 0, tfserr.New(tfserr.KindBusy, "block.Write", "logical block is compacting")
	}

	if fileID == 0 {
		b.nextFileID++
		fileID = b.nextFileID
	} else if b.nextFileID < fileID {
		b.nextFileID = fileID
	}

	pb := b.tail()
	if pb.remainingCapacity() < int64(fileHeaderSize+len(data)) {
		if err := b.extend(); err != nil {
			return 0, err
		}
		pb = b.tail()
	}

	now := time.Now()
	fh := types.FileHeader{
		FileID:     fileID,
		Size:       int32(len(data)),
		Status:     0,
		Crc:        crc32Of(data),
		CreateTime: now,
		ModifyTime: now,
	}

	offset, err := pb.appendRecord(fh, data)
	if err != nil {
		return 0, err
	}

	b.idx.Put(types.MetaInfo{
		FileID:        fileID,
		InBlockOffset: int32(offset),
		Size:          int32(len(data)),
	})

	main := b.main()
	main.info.FileCount++
	main.info.LiveSize += int64(len(data))
	main.info.Version++
	b.dirtyFlag = types.DataDirty
	if err := main.writeHeader(); err != nil {
		return 0, err
	}
	return fileID, nil
}

// extend appends a fresh extension physical block to the chain and
// re-links BlockPrefix pointers, used when the tail block runs out of
// contiguous room.
func (b *Block) extend() error {
	tail := b.tail()
	newID := tail.prefix.LogicBlockID*1000 + uint32(len(b.chain))
	path := filepath.Join(filepath.Dir(tail.path), "..", "extend", fmt.Sprintf("%d.%d", b.logicBlockID, len(b.chain)))

	ext, err := createPhysicalBlock(path, types.BlockPrefix{
		LogicBlockID:      b.logicBlockID,
		PrevPhysicBlockID: newID - 1,
	}, tail.capacity)
	if err != nil {
		return err
	}

	tail.prefix.NextPhysicBlockID = newID
	if err := tail.writeHeader(); err != nil {
		ext.close()
		return err
	}
	b.chain = append(b.chain, ext)
	return nil
}

// Read locates fileID via the index and returns a slice of its payload.
// force allows reading FIConceal records; FIDeleted and FIInvalid are
// always rejected.
func (b *Block) Read(fileID uint64, offset, length int, force bool) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, ok := b.idx.Get(fileID)
	if !ok {
		return nil, tfserr.New(tfserr.KindNotFound, "block.Read", "file not found")
	}

	pb, err := b.physicalForOffset(meta.InBlockOffset)
	if err != nil {
		return nil, err
	}
	fh, data, err := pb.readRecord(int64(meta.InBlockOffset))
	if err != nil {
		return nil, err
	}
	if fh.Status.Has(types.FIDeleted) || fh.Status.Has(types.FIInvalid) {
		return nil, tfserr.New(tfserr.KindNotFound, "block.Read", "file deleted or invalid")
	}
	if fh.Status.Has(types.FIConceal) && !force {
		return nil, tfserr.New(tfserr.KindUnauthorized, "block.Read", "file concealed")
	}
	if crc32Of(data) != fh.Crc {
		return nil, tfserr.New(tfserr.KindCrcError, "block.Read", "crc mismatch")
	}

	if offset < 0 || offset > len(data) {
		return nil, fmt.Errorf("block.Read: offset %d out of range", offset)
	}
	end := offset + length
	if length <= 0 || end > len(data) {
		end = len(data)
	}
	return data[offset:end], nil
}

// physicalForOffset resolves the chain member whose file holds the byte
// at the given in-block offset. Offsets are chain-relative: each physical
// block contributes its capacity to the running range.
func (b *Block) physicalForOffset(inBlockOffset int32) (*physicalBlock, error) {
	remaining := int64(inBlockOffset)
	for _, pb := range b.chain {
		if remaining < pb.capacity {
			return pb, nil
		}
		remaining -= pb.capacity
	}
	return nil, fmt.Errorf("block.physicalForOffset: offset %d out of chain range", inBlockOffset)
}

// Unlink applies a status transition to fileID. Idempotent for the same
// action.
func (b *Block) Unlink(fileID uint64, action UnlinkAction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	meta, ok := b.idx.Get(fileID)
	if !ok {
		return tfserr.New(tfserr.KindNotFound, "block.Unlink", "file not found")
	}
	pb, err := b.physicalForOffset(meta.InBlockOffset)
	if err != nil {
		return err
	}
	fh, _, err := pb.readRecord(int64(meta.InBlockOffset))
	if err != nil {
		return err
	}

	wasDeleted := fh.Status.Has(types.FIDeleted)
	var newStatus types.FileinfoFlag
	switch action {
	case ActionDelete:
		newStatus = fh.Status | types.FIDeleted
	case ActionUndelete:
		newStatus = fh.Status &^ types.FIDeleted
	case ActionConceal:
		newStatus = fh.Status | types.FIConceal
	case ActionUnconceal:
		newStatus = fh.Status &^ types.FIConceal
	}
	if newStatus == fh.Status {
		return nil // idempotent no-op
	}

	if err := pb.patchStatus(int64(meta.InBlockOffset), newStatus, time.Now()); err != nil {
		return err
	}

	main := b.main()
	if action == ActionDelete && !wasDeleted {
		main.info.LiveSize -= int64(fh.Size)
		main.info.DeletedSize += int64(fh.Size)
		main.info.DeletedCount++
	} else if action == ActionUndelete && wasDeleted {
		main.info.LiveSize += int64(fh.Size)
		main.info.DeletedSize -= int64(fh.Size)
		main.info.DeletedCount--
	}
	main.info.Version++
	b.dirtyFlag = types.DataDirty
	return main.writeHeader()
}

// Stat returns the header fields for fileID.
func (b *Block) Stat(fileID uint64) (types.FileHeader, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	meta, ok := b.idx.Get(fileID)
	if !ok {
		return types.FileHeader{}, tfserr.New(tfserr.KindNotFound, "block.Stat", "file not found")
	}
	pb, err := b.physicalForOffset(meta.InBlockOffset)
	if err != nil {
		return types.FileHeader{}, err
	}
	fh, _, err := pb.readRecord(int64(meta.InBlockOffset))
	return fh, err
}

// List returns every index entry for this logical block.
func (b *Block) List() []types.MetaInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.idx.List()
}

// Info returns a snapshot of the block's BlockCollect-relevant counters.
func (b *Block) Info() types.BlockInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.main().info
}

func (b *Block) saveIndex() error {
	return b.idx.save(b.idxPath)
}

func (b *Block) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, pb := range b.chain {
		if err := pb.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.saveIndex(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
