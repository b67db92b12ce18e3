package oplog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xushiwei/tfs/pkg/types"
)

func TestAppendAssignsMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, 0, SyncFsync)
	require.NoError(t, err)
	defer q.Close()

	e1, err := q.Append(types.OplogEntry{OpKind: types.OperInsert, BlockID: 1, FileID: 100, Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, uint64(1), e1.Seq)

	e2, err := q.Append(types.OplogEntry{OpKind: types.OperDelete, BlockID: 1, FileID: 100, Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, uint64(2), e2.Seq)
}

func TestOpenRecoversNextSeqFromExistingSegments(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, 0, SyncFsync)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := q.Append(types.OplogEntry{OpKind: types.OperInsert, BlockID: uint32(i), Timestamp: time.Now()})
		require.NoError(t, err)
	}
	require.NoError(t, q.Close())

	reopened, err := Open(dir, 0, SyncFsync)
	require.NoError(t, err)
	defer reopened.Close()

	e, err := reopened.Append(types.OplogEntry{OpKind: types.OperUpdate, BlockID: 9, Timestamp: time.Now()})
	require.NoError(t, err)
	require.Equal(t, uint64(6), e.Seq)
}

func TestRotationSplitsAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, 1, SyncFsync) // tiny budget forces rotation on every append
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 3; i++ {
		_, err := q.Append(types.OplogEntry{OpKind: types.OperInsert, BlockID: uint32(i), Timestamp: time.Now()})
		require.NoError(t, err)
	}

	segments, err := q.Segments()
	require.NoError(t, err)
	require.Greater(t, len(segments), 1)
}

func TestRecycleRefusesActiveSegment(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(dir, 0, SyncFsync)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Append(types.OplogEntry{OpKind: types.OperInsert, BlockID: 1, Timestamp: time.Now()})
	require.NoError(t, err)

	err = q.Recycle(q.activeIndex)
	require.Error(t, err)
}
