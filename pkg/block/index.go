package block

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/xushiwei/tfs/pkg/types"
)

// indexSlot is one chain link in the hash index: a MetaInfo entry plus the
// slot index of the next entry in its bucket, or -1 at the chain's end.
// This mirrors MetaInfo.NextMetaOffset directly instead of treating it as
// a separate field, since the slot array IS the offset space the field
// refers to.
type indexSlot struct {
	Meta types.MetaInfo
	Next int32
}

// fileIndex is the in-memory hashed file index for one logical block: a
// bucket table plus a slot array with its own freelist, matching the
// "open-addressed hash table with separate chaining" algorithm.
type fileIndex struct {
	buckets []int32 // bucket -> head slot index, -1 if empty
	slots   []indexSlot
	free    []int32          // reclaimed slot indices
	byID    map[uint64]int32 // file_id -> slot index
}

func newFileIndex(bucketCount int) *fileIndex {
	if bucketCount < 1 {
		bucketCount = 1
	}
	buckets := make([]int32, bucketCount)
	for i := range buckets {
		buckets[i] = -1
	}
	return &fileIndex{
		buckets: buckets,
		byID:    make(map[uint64]int32),
	}
}

// nextPrime returns the smallest prime >= n, or 3 when n < 3, used to
// round the configured bucket count up to a prime.
func nextPrime(n int) int {
	if n < 3 {
		return 3
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func bucketFor(fileID uint64, bucketCount int) int {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], fileID)
	return int(xxhash.Sum64(b[:]) % uint64(bucketCount))
}

// Get looks up fileID, returning (meta, true) if present.
func (idx *fileIndex) Get(fileID uint64) (types.MetaInfo, bool) {
	slot, ok := idx.byID[fileID]
	if !ok {
		return types.MetaInfo{}, false
	}
	return idx.slots[slot].Meta, true
}

// Put inserts meta, or replaces it in place if fileID already has an
// entry (the spec's "collisions on file_id replace in place").
func (idx *fileIndex) Put(meta types.MetaInfo) {
	if slot, ok := idx.byID[meta.FileID]; ok {
		idx.slots[slot].Meta = meta
		return
	}

	var slot int32
	if n := len(idx.free); n > 0 {
		slot = idx.free[n-1]
		idx.free = idx.free[:n-1]
	} else {
		slot = int32(len(idx.slots))
		idx.slots = append(idx.slots, indexSlot{})
	}

	b := bucketFor(meta.FileID, len(idx.buckets))
	meta.NextMetaOffset = idx.buckets[b]
	idx.slots[slot] = indexSlot{Meta: meta, Next: idx.buckets[b]}
	idx.buckets[b] = slot
	idx.byID[meta.FileID] = slot
}

// Delete unlinks fileID from its bucket chain and pushes the slot onto
// the freelist. Reports whether the entry existed.
//
// Unused by the current unlink path: unlink only flips the status flag
// in the record's on-disk header (spec's delete is a soft, undoable
// mark) and leaves the index entry in place, so
// idx.free is never populated in normal operation today. Kept for a
// future hard-delete/compaction path that wants to reclaim slots rather
// than just bytes.
func (idx *fileIndex) Delete(fileID uint64) bool {
	slot, ok := idx.byID[fileID]
	if !ok {
		return false
	}
	b := bucketFor(fileID, len(idx.buckets))

	cur := idx.buckets[b]
	prev := int32(-1)
	for cur != -1 {
		if cur == slot {
			if prev == -1 {
				idx.buckets[b] = idx.slots[cur].Next
			} else {
				idx.slots[prev].Next = idx.slots[cur].Next
			}
			break
		}
		prev = cur
		cur = idx.slots[cur].Next
	}

	idx.free = append(idx.free, slot)
	delete(idx.byID, fileID)
	return true
}

// List returns every live entry, in no particular order.
func (idx *fileIndex) List() []types.MetaInfo {
	out := make([]types.MetaInfo, 0, len(idx.byID))
	for _, slot := range idx.byID {
		out = append(out, idx.slots[slot].Meta)
	}
	return out
}

// Len reports the number of live entries.
func (idx *fileIndex) Len() int {
	return len(idx.byID)
}

// persistedIndex is the gob-serializable snapshot written to the side
// file under <data_dir>/index/<logic_block_id>. Bucket/slot/freelist
// shape is preserved exactly so a reload behaves identically to the live
// structure; this trades the original's raw packed binary layout for a
// self-describing encoding, the same trade the registry snapshot makes
// in pkg/regstore.
type persistedIndex struct {
	Buckets []int32
	Slots   []indexSlot
	Free    []int32
}

func (idx *fileIndex) save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file %s: %w", path, err)
	}
	defer f.Close()

	snap := persistedIndex{Buckets: idx.buckets, Slots: idx.slots, Free: idx.free}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		return fmt.Errorf("encode index file %s: %w", path, err)
	}
	return nil
}

func loadFileIndex(path string) (*fileIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open index file %s: %w", path, err)
	}
	defer f.Close()

	var snap persistedIndex
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode index file %s: %w", path, err)
	}

	idx := &fileIndex{
		buckets: snap.Buckets,
		slots:   snap.Slots,
		free:    snap.Free,
		byID:    make(map[uint64]int32, len(snap.Slots)),
	}
	for i, s := range snap.Slots {
		if !slotIsFree(snap.Free, int32(i)) {
			idx.byID[s.Meta.FileID] = int32(i)
		}
	}
	return idx, nil
}

func slotIsFree(free []int32, slot int32) bool {
	for _, f := range free {
		if f == slot {
			return true
		}
	}
	return false
}
