package block

import (
	"os"
	"sort"

	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

// defaultCompactReadSize matches MAX_COMPACT_READ_SIZE from the original
// dataserver: the I/O batch size compaction syncs at, not a hard limit on
// any single record.
const defaultCompactReadSize = 8 << 20

// Compact rebuilds this logical block into a single fresh main physical
// block holding only live records, then atomically installs it in place
// of the old chain. readBudget <= 0 uses defaultCompactReadSize.
func (b *Block) Compact(readBudget int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dirtyFlag == types.DataCompact {
		return tfserr.New(tfserr.KindBusy, "block.Compact", "already compacting")
	}
	if readBudget <= 0 {
		readBudget = defaultCompactReadSize
	}
	b.dirtyFlag = types.DataCompact

	main := b.main()
	tmpPath := main.path + ".compact.tmp"
	tmpIdxPath := b.idxPath + ".compact.tmp"
	os.Remove(tmpPath)
	os.Remove(tmpIdxPath)

	newMain, err := createPhysicalBlock(tmpPath, types.BlockPrefix{LogicBlockID: b.logicBlockID}, main.capacity)
	if err != nil {
		b.dirtyFlag = types.DataDirty
		return err
	}
	newIdx := newFileIndex(len(b.idx.buckets))

	live := b.idx.List()
	sort.Slice(live, func(i, j int) bool { return live[i].InBlockOffset < live[j].InBlockOffset })

	var liveSize int64
	var sinceSync int64
	for _, meta := range live {
		pb, err := b.physicalForOffset(meta.InBlockOffset)
		if err != nil {
			newMain.close()
			os.Remove(tmpPath)
			b.dirtyFlag = types.DataDirty
			return err
		}
		fh, data, err := pb.readRecord(int64(meta.InBlockOffset))
		if err != nil {
			newMain.close()
			os.Remove(tmpPath)
			b.dirtyFlag = types.DataDirty
			return err
		}
		if fh.Status.Has(types.FIDeleted) {
			continue
		}

		offset, err := newMain.appendRecord(fh, data)
		if err != nil {
			newMain.close()
			os.Remove(tmpPath)
			b.dirtyFlag = types.DataDirty
			return err
		}
		newIdx.Put(types.MetaInfo{FileID: fh.FileID, InBlockOffset: int32(offset), Size: fh.Size})
		liveSize += int64(fh.Size)

		sinceSync += int64(fileHeaderSize + len(data))
		if sinceSync >= readBudget {
			newMain.file.Sync()
			sinceSync = 0
		}
	}

	newMain.info.FileCount = int32(len(newIdx.byID))
	newMain.info.LiveSize = liveSize
	newMain.info.DeletedSize = 0
	newMain.info.DeletedCount = 0
	newMain.info.Version = main.info.Version + 1
	if err := newMain.writeHeader(); err != nil {
		newMain.close()
		os.Remove(tmpPath)
		b.dirtyFlag = types.DataDirty
		return err
	}
	if err := newIdx.save(tmpIdxPath); err != nil {
		newMain.close()
		os.Remove(tmpPath)
		b.dirtyFlag = types.DataDirty
		return err
	}
	newMain.close()

	// Release extension blocks; their live content now lives in newMain.
	for _, ext := range b.chain[1:] {
		ext.close()
		os.Remove(ext.path)
	}
	main.close()

	if err := os.Rename(tmpPath, main.path); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.Compact", err)
	}
	if err := os.Rename(tmpIdxPath, b.idxPath); err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.Compact", err)
	}

	reopened, err := openPhysicalBlock(main.path, main.capacity)
	if err != nil {
		return err
	}
	reloadedIdx, err := loadFileIndex(b.idxPath)
	if err != nil {
		return err
	}

	b.chain = []*physicalBlock{reopened}
	b.idx = reloadedIdx
	b.dirtyFlag = types.DataClean
	return nil
}
