package regstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/xushiwei/tfs/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketBlocks  = []byte("block_collects")
	bucketServers = []byte("server_collects")
)

// BoltStore implements Store using go.etcd.io/bbolt, one bucket per
// entity, upserting JSON-encoded values under db.Update/db.View
// transactions.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the registry snapshot database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "tfsns.db")

	db, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketBlocks, bucketServers} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func blockKey(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	return b[:]
}

func (s *BoltStore) PutBlockCollect(bc *types.BlockCollect) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(bc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBlocks).Put(blockKey(bc.LogicBlockID), data)
	})
}

func (s *BoltStore) GetBlockCollect(id uint32) (*types.BlockCollect, error) {
	var bc types.BlockCollect
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get(blockKey(id))
		if data == nil {
			return fmt.Errorf("block collect not found: %d", id)
		}
		return json.Unmarshal(data, &bc)
	})
	if err != nil {
		return nil, err
	}
	return &bc, nil
}

func (s *BoltStore) ListBlockCollects() ([]*types.BlockCollect, error) {
	var out []*types.BlockCollect
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			var bc types.BlockCollect
			if err := json.Unmarshal(v, &bc); err != nil {
				return err
			}
			out = append(out, &bc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteBlockCollect(id uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).Delete(blockKey(id))
	})
}

func (s *BoltStore) PutServerCollect(sc *types.ServerCollect) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketServers).Put([]byte(sc.ID), data)
	})
}

func (s *BoltStore) GetServerCollect(id string) (*types.ServerCollect, error) {
	var sc types.ServerCollect
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketServers).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("server collect not found: %s", id)
		}
		return json.Unmarshal(data, &sc)
	})
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *BoltStore) ListServerCollects() ([]*types.ServerCollect, error) {
	var out []*types.ServerCollect
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).ForEach(func(k, v []byte) error {
			var sc types.ServerCollect
			if err := json.Unmarshal(v, &sc); err != nil {
				return err
			}
			out = append(out, &sc)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) DeleteServerCollect(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketServers).Delete([]byte(id))
	})
}
