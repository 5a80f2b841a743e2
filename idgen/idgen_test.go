package idgen_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	"civicspotter/idgen"
	"civicspotter/models"
	"civicspotter/store"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateIDFormat(t *testing.T) {
	counterFile := filepath.Join(t.TempDir(), "issue_counter.json")
	day := time.Date(2025, 6, 19, 12, 0, 0, 0, time.UTC)
	g := idgen.New(counterFile, idgen.WithClock(fixedClock(day)))

	id, err := g.GenerateID(context.Background(), "Faridabad")
	require.NoError(t, err)
	require.Equal(t, "faridabad_20250619_001", id)

	id, err = g.GenerateID(context.Background(), "New Delhi")
	require.NoError(t, err)
	require.Equal(t, "newdelhi_20250619_002", id)
}

func TestGenerateIDDailyRollover(t *testing.T) {
	counterFile := filepath.Join(t.TempDir(), "issue_counter.json")
	day1 := time.Date(2025, 6, 19, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 20, 0, 1, 0, 0, time.UTC)

	current := day1
	g := idgen.New(counterFile, idgen.WithClock(func() time.Time { return current }))

	id, err := g.GenerateID(context.Background(), "faridabad")
	require.NoError(t, err)
	require.Equal(t, "faridabad_20250619_001", id)

	id, err = g.GenerateID(context.Background(), "faridabad")
	require.NoError(t, err)
	require.Equal(t, "faridabad_20250619_002", id)

	current = day2
	id, err = g.GenerateID(context.Background(), "faridabad")
	require.NoError(t, err)
	require.Equal(t, "faridabad_20250620_001", id)
}

// Concurrent generator instances sharing one counter file model independent
// processes. Every ID must be distinct and the numbering dense.
func TestGenerateIDConcurrent(t *testing.T) {
	counterFile := filepath.Join(t.TempDir(), "issue_counter.json")
	day := time.Date(2025, 6, 19, 12, 0, 0, 0, time.UTC)

	const n = 20
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			g := idgen.New(counterFile, idgen.WithClock(fixedClock(day)))
			id, err := g.GenerateID(context.Background(), "faridabad")
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	for seq := 1; seq <= n; seq++ {
		require.True(t, seen[fmt.Sprintf("faridabad_20250619_%03d", seq)], "missing sequence %d", seq)
	}
}

func TestGenerateIDSkipsExistingActiveIDs(t *testing.T) {
	dir := t.TempDir()
	counterFile := filepath.Join(dir, "issue_counter.json")
	day := time.Date(2025, 6, 19, 12, 0, 0, 0, time.UTC)

	s, err := store.NewFileStore(filepath.Join(dir, "issues"))
	require.NoError(t, err)

	// Simulate external tampering: an issue already occupies the first slot.
	squatter := models.NewIssueRecord(nil)
	squatter.IssueID = "faridabad_20250619_001"
	require.NoError(t, s.Put(context.Background(), store.PartitionActive, squatter))

	g := idgen.New(counterFile, idgen.WithClock(fixedClock(day)), idgen.WithActiveSet(s))

	id, err := g.GenerateID(context.Background(), "faridabad")
	require.NoError(t, err)
	require.Equal(t, "faridabad_20250619_002", id)
}

func TestGenerateIDLockUnavailable(t *testing.T) {
	counterFile := filepath.Join(t.TempDir(), "issue_counter.json")

	// Hold the lock from the outside so acquisition must time out.
	holder := flock.New(counterFile + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer holder.Unlock()

	g := idgen.New(counterFile, idgen.WithLockTimeout(200*time.Millisecond))
	_, err = g.GenerateID(context.Background(), "faridabad")
	require.ErrorIs(t, err, idgen.ErrLockUnavailable)
}
