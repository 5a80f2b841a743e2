package store

import (
	"context"
	"errors"

	"civicspotter/models"
)

// Partition names one of the three durable collections holding issue records.
type Partition string

const (
	PartitionActive    Partition = "active"
	PartitionCompleted Partition = "completed"
	PartitionRejected  Partition = "rejected"
)

// Partitions lists all partitions in scan order.
var Partitions = []Partition{PartitionActive, PartitionCompleted, PartitionRejected}

// Valid reports whether p names a known partition.
func (p Partition) Valid() bool {
	switch p {
	case PartitionActive, PartitionCompleted, PartitionRejected:
		return true
	}
	return false
}

var (
	// ErrNotFound indicates the record doesn't exist in the given partition.
	ErrNotFound = errors.New("issue not found")
)

// Store is durable CRUD over issue records, keyed by issue ID and partitioned
// by collection. Exactly one partition holds the authoritative copy of a
// record at any time. Write failures are surfaced to the caller, never
// retried internally.
type Store interface {
	// Put serializes and writes the record to the partition, overwriting any
	// prior version, and sets the record's Stored marker on success.
	Put(ctx context.Context, partition Partition, rec *models.IssueRecord) error

	// Get returns the record, or ErrNotFound.
	Get(ctx context.Context, partition Partition, issueID string) (*models.IssueRecord, error)

	// ListIDs returns the issue IDs currently in the partition. Order is
	// whatever the backing storage yields; callers must not assume any
	// particular ordering beyond stability within one listing.
	ListIDs(ctx context.Context, partition Partition) ([]string, error)

	// Move relocates the record between partitions. A crash mid-move may
	// leave the record present in both partitions transiently, never in
	// neither.
	Move(ctx context.Context, issueID string, from, to Partition) error
}
