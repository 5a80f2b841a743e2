package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"civicspotter/models"
	"civicspotter/store"
)

func newTestStore(t *testing.T) *store.FileStore {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func newTestRecord(id string) *models.IssueRecord {
	rec := models.NewIssueRecord([]string{"photo.jpg"})
	rec.IssueID = id
	rec.IssueType = "Pothole"
	return rec
}

func TestFileStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := newTestRecord("faridabad_20250619_001")
	require.NoError(t, s.Put(ctx, store.PartitionActive, rec))
	require.True(t, rec.Stored)

	loaded, err := s.Get(ctx, store.PartitionActive, rec.IssueID)
	require.NoError(t, err)
	require.Equal(t, rec.IssueID, loaded.IssueID)
	require.Equal(t, "Pothole", loaded.IssueType)
	require.Equal(t, models.StageMetadataReview, loaded.Stage)
}

func TestFileStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := newTestRecord("faridabad_20250619_001")
	require.NoError(t, s.Put(ctx, store.PartitionActive, rec))

	rec.SimilarCount = 3
	require.NoError(t, s.Put(ctx, store.PartitionActive, rec))

	loaded, err := s.Get(ctx, store.PartitionActive, rec.IssueID)
	require.NoError(t, err)
	require.Equal(t, 3, loaded.SimilarCount)
}

func TestFileStoreGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Get(ctx, store.PartitionActive, "nope_20250101_001")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFileStoreListIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, store.PartitionActive, newTestRecord("a_20250619_001")))
	require.NoError(t, s.Put(ctx, store.PartitionActive, newTestRecord("b_20250619_002")))
	require.NoError(t, s.Put(ctx, store.PartitionCompleted, newTestRecord("c_20250619_003")))

	ids, err := s.ListIDs(ctx, store.PartitionActive)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a_20250619_001", "b_20250619_002"}, ids)

	ids, err = s.ListIDs(ctx, store.PartitionRejected)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestFileStoreMove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	rec := newTestRecord("faridabad_20250619_001")
	require.NoError(t, s.Put(ctx, store.PartitionActive, rec))

	require.NoError(t, s.Move(ctx, rec.IssueID, store.PartitionActive, store.PartitionCompleted))

	_, err := s.Get(ctx, store.PartitionActive, rec.IssueID)
	require.ErrorIs(t, err, store.ErrNotFound)

	moved, err := s.Get(ctx, store.PartitionCompleted, rec.IssueID)
	require.NoError(t, err)
	require.Equal(t, rec.IssueID, moved.IssueID)
}

func TestFileStoreMoveMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.Move(ctx, "ghost_20250101_001", store.PartitionActive, store.PartitionRejected)
	require.ErrorIs(t, err, store.ErrNotFound)
}
