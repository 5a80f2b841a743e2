package engine

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"civicspotter/models"
	"civicspotter/store"
)

// IssueSummary is the listing view of an issue.
type IssueSummary struct {
	IssueID   string       `json:"issue_id"`
	IssueType string       `json:"issue_type"`
	Stage     models.Stage `json:"stage"`
	TweetURL  string       `json:"tweet_url,omitempty"`
}

// ListIssues returns summaries for every issue in the partition.
func (e *Engine) ListIssues(ctx context.Context, partition store.Partition) ([]IssueSummary, error) {
	ids, err := e.store.ListIDs(ctx, partition)
	if err != nil {
		return nil, err
	}

	summaries := make([]IssueSummary, 0, len(ids))
	for _, id := range ids {
		rec, err := e.store.Get(ctx, partition, id)
		if err != nil {
			log.Warn().Err(err).Str("issue_id", id).Msg("skipping unreadable issue in listing")
			continue
		}
		summary := IssueSummary{
			IssueID:   rec.IssueID,
			IssueType: rec.IssueType,
			Stage:     rec.Stage,
		}
		if rec.TweetResult != nil {
			summary.TweetURL = rec.TweetResult.URL
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// GetIssue looks an issue up across all partitions and reports which one
// holds it.
func (e *Engine) GetIssue(ctx context.Context, issueID string) (*models.IssueRecord, store.Partition, error) {
	for _, partition := range store.Partitions {
		rec, err := e.store.Get(ctx, partition, issueID)
		if err == nil {
			return rec, partition, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, "", err
		}
	}
	return nil, "", store.ErrNotFound
}
