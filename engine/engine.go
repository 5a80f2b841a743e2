// Package engine owns the issue lifecycle: report intake, the stage state
// machine driven by operator approvals, and relocation of terminal issues
// between partitions.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"civicspotter/collab"
	"civicspotter/dedup"
	"civicspotter/idgen"
	"civicspotter/models"
	"civicspotter/store"
)

var (
	// ErrLocationMissing indicates a report had no usable location or city
	// scope, so no issue could be created for it.
	ErrLocationMissing = errors.New("no usable location for report")
	// ErrInvalidStage indicates an unknown or terminal stage was named.
	ErrInvalidStage = errors.New("invalid workflow stage")
	// ErrNotRejectable indicates rejection was requested past metadata review.
	ErrNotRejectable = errors.New("issue can only be rejected during metadata review")
	// ErrNotRetryable indicates a retry was requested for an issue with no
	// approved stage and no recorded failure.
	ErrNotRetryable = errors.New("no failed side effect to retry")
)

// Error keys under which stage-local side-effect failures are recorded.
const (
	errKeyEmail     = "email"
	errKeyTweetGen  = "tweet_gen"
	errKeyTweetPost = "tweet_post"
)

// Collaborators bundles the external side-effect providers the engine
// delegates to.
type Collaborators struct {
	Extractor collab.MetadataExtractor
	Authority collab.AuthorityFinder
	Notifier  collab.Notifier
	Composer  collab.Composer
	Publisher collab.Publisher
}

// Engine drives issue records through the review workflow.
type Engine struct {
	store    store.Store
	ids      *idgen.Generator
	detector *dedup.Detector
	collab   Collaborators
}

// New wires up an Engine.
func New(s store.Store, ids *idgen.Generator, detector *dedup.Detector, c Collaborators) *Engine {
	return &Engine{store: s, ids: ids, detector: detector, collab: c}
}

// SubmitResult is the outcome of a report submission.
type SubmitResult struct {
	IssueID  string          `json:"issue_id"`
	Merged   bool            `json:"merged"`
	Metadata models.Metadata `json:"metadata"`
}

// SubmitReport ingests a citizen report. A report matching an existing issue
// is merged into it and never becomes a record of its own; otherwise a new
// record is minted into the active partition at metadata_review.
func (e *Engine) SubmitReport(ctx context.Context, imagePaths []string, issueType string, external *collab.ExternalLocation) (*SubmitResult, error) {
	photoRef := ""
	if len(imagePaths) > 0 {
		photoRef = imagePaths[0]
	}
	meta, err := e.collab.Extractor.Extract(ctx, photoRef, external)
	if err != nil {
		return nil, fmt.Errorf("extracting report metadata: %w", err)
	}

	rec := models.NewIssueRecord(imagePaths)
	rec.Metadata = meta
	rec.IssueType = issueType

	matched, matchedID, err := e.detector.CheckAndGroup(ctx, rec, external)
	if err != nil {
		return nil, err
	}
	if matched {
		return &SubmitResult{IssueID: matchedID, Merged: true, Metadata: meta}, nil
	}

	// The city scopes the issue ID; without it (or any location) the issue
	// cannot be created.
	city := meta.Address.City
	if meta.Empty() || city == "" {
		return nil, ErrLocationMissing
	}

	id, err := e.ids.GenerateID(ctx, city)
	if err != nil {
		return nil, err
	}
	rec.IssueID = id

	if err := e.store.Put(ctx, store.PartitionActive, rec); err != nil {
		return nil, err
	}
	log.Info().Str("issue_id", id).Str("issue_type", issueType).Msg("new issue created")

	return &SubmitResult{IssueID: id, Merged: false, Metadata: meta}, nil
}

// ApproveStage flips the approval flag for the named stage and, when it is
// the record's current stage, performs the stage's side effect.
func (e *Engine) ApproveStage(ctx context.Context, issueID string, stage models.Stage) (*models.IssueRecord, error) {
	if !stage.Valid() || stage.Terminal() {
		return nil, ErrInvalidStage
	}

	rec, err := e.store.Get(ctx, store.PartitionActive, issueID)
	if err != nil {
		return nil, err
	}

	rec.Approvals[stage] = true
	if err := e.store.Put(ctx, store.PartitionActive, rec); err != nil {
		return nil, err
	}

	// Once the stage has moved past an approved flag, the flag is inert; only
	// the current stage's approval triggers work.
	if stage == rec.Stage {
		if err := e.processStage(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// RejectIssue permanently moves an issue out of the active workflow. Only
// allowed while the issue is still in metadata review.
func (e *Engine) RejectIssue(ctx context.Context, issueID string) error {
	rec, err := e.store.Get(ctx, store.PartitionActive, issueID)
	if err != nil {
		return err
	}
	if rec.Stage != models.StageMetadataReview {
		return ErrNotRejectable
	}

	rec.Stage = models.StageRejected
	if err := e.store.Put(ctx, store.PartitionActive, rec); err != nil {
		return err
	}
	if err := e.store.Move(ctx, issueID, store.PartitionActive, store.PartitionRejected); err != nil {
		return err
	}
	log.Info().Str("issue_id", issueID).Msg("issue rejected")
	return nil
}

// RetryStage re-invokes the current stage's side effect without requiring a
// fresh approval, clearing recorded errors on success.
func (e *Engine) RetryStage(ctx context.Context, issueID string) (*models.IssueRecord, error) {
	rec, err := e.store.Get(ctx, store.PartitionActive, issueID)
	if err != nil {
		return nil, err
	}
	if rec.Stage.Terminal() {
		return nil, ErrInvalidStage
	}
	// Retry is for re-running a failed or approved stage; it is not a way to
	// push an unapproved issue forward.
	if !rec.Approvals[rec.Stage] && len(rec.Errors) == 0 {
		return nil, ErrNotRetryable
	}
	if err := e.processStage(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Sweep walks the active partition and advances every issue whose current
// stage is approved. Running it twice without new approvals performs no
// further side effects: an advanced issue's new stage has no approval yet,
// and a held issue re-runs only its recorded-failed operation.
func (e *Engine) Sweep(ctx context.Context) error {
	ids, err := e.store.ListIDs(ctx, store.PartitionActive)
	if err != nil {
		return err
	}

	for _, id := range ids {
		rec, err := e.store.Get(ctx, store.PartitionActive, id)
		if err != nil {
			log.Warn().Err(err).Str("issue_id", id).Msg("skipping unreadable issue in sweep")
			continue
		}
		if rec.Stage.Terminal() || !rec.Approvals[rec.Stage] {
			continue
		}
		if err := e.processStage(ctx, rec); err != nil {
			// Side-effect failures are recorded on the record, so an error
			// here is a persistence problem; keep sweeping the rest.
			log.Error().Err(err).Str("issue_id", id).Msg("sweep failed to process issue")
		}
	}
	return nil
}

// processStage performs the side effect for the record's current stage and
// advances it on success. Side-effect failures are recorded on the record and
// hold the stage; only persistence failures are returned as errors.
func (e *Engine) processStage(ctx context.Context, rec *models.IssueRecord) error {
	switch rec.Stage {
	case models.StageMetadataReview:
		return e.discoverAuthority(ctx, rec)
	case models.StageAuthorityReview:
		return e.notifyAuthority(ctx, rec)
	case models.StageTweetReview:
		return e.publishOutreach(ctx, rec)
	default:
		return nil
	}
}

func (e *Engine) discoverAuthority(ctx context.Context, rec *models.IssueRecord) error {
	contact, err := e.collab.Authority.Discover(ctx, rec)
	if err != nil {
		// Discovery has no failure path: absence of a result is success with
		// an empty contact.
		log.Warn().Err(err).Str("issue_id", rec.IssueID).Msg("authority discovery returned no contact")
		contact = models.ContactInfo{}
	}
	rec.AuthorityContact = contact
	return e.advance(ctx, rec)
}

func (e *Engine) notifyAuthority(ctx context.Context, rec *models.IssueRecord) error {
	emailResult := e.collab.Notifier.Send(ctx, rec)
	if emailResult.Status != models.StatusCompleted {
		rec.SetError(errKeyEmail, "email sending failed")
		return e.store.Put(ctx, store.PartitionActive, rec)
	}
	rec.EmailResult = &emailResult
	rec.ClearError(errKeyEmail)

	text, err := e.collab.Composer.Compose(ctx, rec)
	if err != nil || text == "" {
		rec.SetError(errKeyTweetGen, "tweet generation failed")
		return e.store.Put(ctx, store.PartitionActive, rec)
	}
	rec.TweetResult = &models.TweetResult{Status: models.StatusPending, Text: text}
	rec.ClearError(errKeyTweetGen)

	return e.advance(ctx, rec)
}

func (e *Engine) publishOutreach(ctx context.Context, rec *models.IssueRecord) error {
	tweetResult := e.collab.Publisher.Publish(ctx, rec)
	switch tweetResult.Status {
	case models.StatusFailed:
		// Failed posts force a fresh approval before the next attempt.
		rec.SetError(errKeyTweetPost, "tweet failed to post")
		rec.Approvals[models.StageTweetReview] = false
		return e.store.Put(ctx, store.PartitionActive, rec)
	case models.StatusPosted:
		// published
	default:
		// Pending: nothing went out, hold the stage but keep the approval so
		// the sweep retries once the bridge is up.
		rec.SetError(errKeyTweetPost, "tweet post still pending")
		return e.store.Put(ctx, store.PartitionActive, rec)
	}
	rec.TweetResult = &tweetResult
	rec.ClearError(errKeyTweetPost)

	if err := e.advance(ctx, rec); err != nil {
		return err
	}
	return e.store.Move(ctx, rec.IssueID, store.PartitionActive, store.PartitionCompleted)
}

// advance moves the record to the next stage and persists it in the active
// partition.
func (e *Engine) advance(ctx context.Context, rec *models.IssueRecord) error {
	next, ok := rec.Stage.Next()
	if !ok {
		return nil
	}
	rec.Stage = next
	if err := e.store.Put(ctx, store.PartitionActive, rec); err != nil {
		return err
	}
	log.Info().Str("issue_id", rec.IssueID).Str("stage", string(next)).Msg("issue advanced")
	return nil
}
