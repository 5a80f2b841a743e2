package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicspotter/models"
)

// FileStore keeps one JSON file per issue under <root>/<partition>/<id>.json.
type FileStore struct {
	root string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the partition directories under root and returns the
// store.
func NewFileStore(root string) (*FileStore, error) {
	for _, p := range Partitions {
		if err := os.MkdirAll(filepath.Join(root, string(p)), 0o755); err != nil {
			return nil, fmt.Errorf("creating partition dir %s: %w", p, err)
		}
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(partition Partition, issueID string) string {
	return filepath.Join(s.root, string(partition), issueID+".json")
}

// Put writes the record atomically: encode to a temp file in the partition
// directory, fsync, then rename over the destination.
func (s *FileStore) Put(ctx context.Context, partition Partition, rec *models.IssueRecord) error {
	rec.UpdatedAt = time.Now()
	if err := s.writeJSON(s.path(partition, rec.IssueID), rec); err != nil {
		return fmt.Errorf("persisting issue %s to %s: %w", rec.IssueID, partition, err)
	}
	rec.Stored = true
	return nil
}

func (s *FileStore) writeJSON(path string, rec *models.IssueRecord) error {
	tmp := path + ".tmp." + uuid.NewString()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Get reads and decodes the record, or returns ErrNotFound.
func (s *FileStore) Get(ctx context.Context, partition Partition, issueID string) (*models.IssueRecord, error) {
	data, err := os.ReadFile(s.path(partition, issueID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading issue %s from %s: %w", issueID, partition, err)
	}
	var rec models.IssueRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding issue %s: %w", issueID, err)
	}
	return &rec, nil
}

// ListIDs returns the IDs in the partition in directory listing order.
func (s *FileStore) ListIDs(ctx context.Context, partition Partition) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, string(partition)))
	if err != nil {
		return nil, fmt.Errorf("listing partition %s: %w", partition, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Move copies the record into the destination partition before deleting the
// source entry, so a crash never leaves the record absent from both.
func (s *FileStore) Move(ctx context.Context, issueID string, from, to Partition) error {
	rec, err := s.Get(ctx, from, issueID)
	if err != nil {
		return err
	}
	if err := s.writeJSON(s.path(to, issueID), rec); err != nil {
		return fmt.Errorf("moving issue %s to %s: %w", issueID, to, err)
	}
	if err := os.Remove(s.path(from, issueID)); err != nil {
		return fmt.Errorf("removing issue %s from %s: %w", issueID, from, err)
	}
	return nil
}
