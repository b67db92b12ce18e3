// Package regstore persists a crash-recoverable snapshot of the
// coordinator's block/server registry to a local BoltDB file, so a
// restarted coordinator does not have to wait for every storage node to
// re-report before it can answer queries.
package regstore

import (
	"github.com/xushiwei/tfs/pkg/types"
)

// Store is the persistence interface the registry snapshots through.
// It is not the registry's authority at runtime — pkg/registry's
// in-memory maps are — it is the durable copy loaded on startup and
// upserted on every mutation.
type Store interface {
	PutBlockCollect(bc *types.BlockCollect) error
	GetBlockCollect(id uint32) (*types.BlockCollect, error)
	ListBlockCollects() ([]*types.BlockCollect, error)
	DeleteBlockCollect(id uint32) error

	PutServerCollect(sc *types.ServerCollect) error
	GetServerCollect(id string) (*types.ServerCollect, error)
	ListServerCollects() ([]*types.ServerCollect, error)
	DeleteServerCollect(id string) error

	Close() error
}
