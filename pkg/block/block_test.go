package block

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), 1<<20, 17)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestWriteReadStat(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))

	payload := bytes.Repeat([]byte{0x41}, 512)
	fileID, err := s.Write(1, 0, payload)
	require.NoError(t, err)
	require.NotZero(t, fileID)

	got, err := s.Read(1, fileID, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	fh, err := s.Stat(1, fileID)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), fh.Size)
	require.Zero(t, fh.Status)
}

func TestUnlinkDeleteIsIdempotentAndUndeletable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))
	fileID, err := s.Write(1, 0, []byte("hello"))
	require.NoError(t, err)

	require.NoError(t, s.Unlink(1, fileID, ActionDelete))
	require.NoError(t, s.Unlink(1, fileID, ActionDelete)) // idempotent

	_, err = s.Read(1, fileID, 0, 0, false)
	require.Error(t, err)

	require.NoError(t, s.Unlink(1, fileID, ActionUndelete))
	got, err := s.Read(1, fileID, 0, 0, false)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestConcealRequiresForce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))
	fileID, err := s.Write(1, 0, []byte("secret"))
	require.NoError(t, err)
	require.NoError(t, s.Unlink(1, fileID, ActionConceal))

	_, err = s.Read(1, fileID, 0, 0, false)
	require.Error(t, err)

	got, err := s.Read(1, fileID, 0, 0, true)
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), got)
}

func TestCompactionKeepsOnlyLiveRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))

	var ids []uint64
	for i := 0; i < 1000; i++ {
		id, err := s.Write(1, 0, []byte("x"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids[:700] {
		require.NoError(t, s.Unlink(1, id, ActionDelete))
	}

	require.NoError(t, s.Compact(1, 0))

	meta, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, meta, 300)

	info, err := s.Info(1)
	require.NoError(t, err)
	require.EqualValues(t, 300, info.FileCount)
	require.Zero(t, info.DeletedSize)

	for _, id := range ids[700:] {
		_, err := s.Read(1, id, 0, 0, false)
		require.NoError(t, err)
	}
}

func TestWriteFailsOnUnknownBlock(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Write(99, 0, []byte("x"))
	require.Error(t, err)
}

func TestCreateDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Create(1))
	require.Error(t, s.Create(1))
}
