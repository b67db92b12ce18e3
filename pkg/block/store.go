package block

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/xushiwei/tfs/pkg/tfserr"
	"github.com/xushiwei/tfs/pkg/types"
)

const (
	mainDirName   = "blocks"
	extendDirName = "extend"
	indexDirName  = "index"
)

// Store owns every logical block a storage node hosts: the on-disk main
// and extension block directories, and the index directory alongside
// them.
type Store struct {
	mu sync.RWMutex

	mainDir   string
	extendDir string
	indexDir  string

	blockSize    int64
	indexBuckets int

	blocks map[uint32]*Block
}

// Open creates the store's directories if needed and recovers any
// logical blocks already present on disk.
func Open(dataDir string, blockSize int64, indexBuckets int) (*Store, error) {
	s := &Store{
		mainDir:      filepath.Join(dataDir, mainDirName),
		extendDir:    filepath.Join(dataDir, extendDirName),
		indexDir:     filepath.Join(dataDir, indexDirName),
		blockSize:    blockSize,
		indexBuckets: indexBuckets,
		blocks:       make(map[uint32]*Block),
	}
	for _, dir := range []string{s.mainDir, s.extendDir, s.indexDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, tfserr.Wrap(tfserr.KindIoError, "block.Open", err)
		}
	}
	if err := s.recover(); err != nil {
		return nil, err
	}
	return s, nil
}

// recover reopens every main block file found in mainDir, along with any
// extension files chained from it and its index side file.
func (s *Store) recover() error {
	entries, err := os.ReadDir(s.mainDir)
	if err != nil {
		return tfserr.Wrap(tfserr.KindIoError, "block.recover", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var logicBlockID uint32
		if _, err := fmt.Sscanf(e.Name(), "%d", &logicBlockID); err != nil {
			continue
		}

		main, err := openPhysicalBlock(filepath.Join(s.mainDir, e.Name()), s.blockSize)
		if err != nil {
			return err
		}
		chain := []*physicalBlock{main}
		for next := main.prefix.NextPhysicBlockID; next != 0; {
			extPath := filepath.Join(s.extendDir, fmt.Sprintf("%d.%d", logicBlockID, len(chain)))
			ext, err := openPhysicalBlock(extPath, s.blockSize)
			if err != nil {
				return err
			}
			chain = append(chain, ext)
			next = ext.prefix.NextPhysicBlockID
		}

		idxPath := filepath.Join(s.indexDir, fmt.Sprintf("%d", logicBlockID))
		idx, err := loadFileIndex(idxPath)
		if err != nil {
			return err
		}

		var maxFileID uint64
		for id := range idx.byID {
			if id > maxFileID {
				maxFileID = id
			}
		}

		s.blocks[logicBlockID] = &Block{
			logicBlockID: logicBlockID,
			chain:        chain,
			idx:          idx,
			idxPath:      idxPath,
			nextFileID:   maxFileID,
		}
	}
	return nil
}

// Create allocates a new logical block, initializing a main physical
// block and an empty index. Fails if logicBlockID already exists.
func (s *Store) Create(logicBlockID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[logicBlockID]; ok {
		return tfserr.New(tfserr.KindAlreadyExists, "block.Create", "logical block already exists")
	}

	mainPath := filepath.Join(s.mainDir, fmt.Sprintf("%d", logicBlockID))
	main, err := createPhysicalBlock(mainPath, types.BlockPrefix{LogicBlockID: logicBlockID}, s.blockSize)
	if err != nil {
		return err
	}

	idxPath := filepath.Join(s.indexDir, fmt.Sprintf("%d", logicBlockID))
	buckets := nextPrime(s.indexBuckets)
	idx := newFileIndex(buckets)
	if err := idx.save(idxPath); err != nil {
		main.close()
		return err
	}

	s.blocks[logicBlockID] = &Block{
		logicBlockID: logicBlockID,
		chain:        []*physicalBlock{main},
		idx:          idx,
		idxPath:      idxPath,
	}
	return nil
}

func (s *Store) get(logicBlockID uint32) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[logicBlockID]
	if !ok {
		return nil, tfserr.New(tfserr.KindNotFound, "block.get", "logical block not found")
	}
	return b, nil
}

// AllocateFileID delegates to the named logical block's AllocateFileID.
func (s *Store) AllocateFileID(logicBlockID uint32) (uint64, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return 0, err
	}
	return b.AllocateFileID(), nil
}

// Write delegates to the named logical block's Write.
func (s *Store) Write(logicBlockID uint32, fileID uint64, data []byte) (uint64, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return 0, err
	}
	return b.Write(fileID, data)
}

// Read delegates to the named logical block's Read.
func (s *Store) Read(logicBlockID uint32, fileID uint64, offset, length int, force bool) ([]byte, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return nil, err
	}
	return b.Read(fileID, offset, length, force)
}

// Unlink delegates to the named logical block's Unlink.
func (s *Store) Unlink(logicBlockID uint32, fileID uint64, action UnlinkAction) error {
	b, err := s.get(logicBlockID)
	if err != nil {
		return err
	}
	return b.Unlink(fileID, action)
}

// Stat delegates to the named logical block's Stat.
func (s *Store) Stat(logicBlockID uint32, fileID uint64) (types.FileHeader, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return types.FileHeader{}, err
	}
	return b.Stat(fileID)
}

// Compact delegates to the named logical block's Compact.
func (s *Store) Compact(logicBlockID uint32, readBudget int64) error {
	b, err := s.get(logicBlockID)
	if err != nil {
		return err
	}
	return b.Compact(readBudget)
}

// List delegates to the named logical block's List.
func (s *Store) List(logicBlockID uint32) ([]types.MetaInfo, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return nil, err
	}
	return b.List(), nil
}

// Info delegates to the named logical block's Info.
func (s *Store) Info(logicBlockID uint32) (types.BlockInfo, error) {
	b, err := s.get(logicBlockID)
	if err != nil {
		return types.BlockInfo{}, err
	}
	return b.Info(), nil
}

// BlockIDs returns every logical block id currently hosted.
func (s *Store) BlockIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uint32, 0, len(s.blocks))
	for id := range s.blocks {
		ids = append(ids, id)
	}
	return ids
}

// Close flushes and closes every hosted logical block.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, b := range s.blocks {
		if err := b.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
