package engine_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"civicspotter/collab"
	"civicspotter/dedup"
	"civicspotter/engine"
	"civicspotter/idgen"
	"civicspotter/models"
	"civicspotter/store"
)

type fakeExtractor struct {
	city string
}

func (f *fakeExtractor) Extract(ctx context.Context, photoRef string, external *collab.ExternalLocation) (models.Metadata, error) {
	if external == nil {
		return models.Metadata{}, nil
	}
	return models.Metadata{
		Latitude:  &external.Latitude,
		Longitude: &external.Longitude,
		Datetime:  external.Datetime,
		Address:   models.Address{City: f.city, State: "Haryana"},
	}, nil
}

type fakeAuthority struct {
	calls int
}

func (f *fakeAuthority) Discover(ctx context.Context, rec *models.IssueRecord) (models.ContactInfo, error) {
	f.calls++
	return models.ContactInfo{Department: "Roads", Email: "roads@example.gov"}, nil
}

type fakeNotifier struct {
	fail  bool
	calls int
}

func (f *fakeNotifier) Send(ctx context.Context, rec *models.IssueRecord) models.EmailResult {
	f.calls++
	if f.fail {
		return models.EmailResult{Status: models.StatusFailed}
	}
	return models.EmailResult{Status: models.StatusCompleted, Timestamp: "2025-06-19T12:00:00Z"}
}

type fakeComposer struct {
	text  string
	calls int
}

func (f *fakeComposer) Compose(ctx context.Context, rec *models.IssueRecord) (string, error) {
	f.calls++
	return f.text, nil
}

type fakePublisher struct {
	status string
	calls  int
}

func (f *fakePublisher) Publish(ctx context.Context, rec *models.IssueRecord) models.TweetResult {
	f.calls++
	res := models.TweetResult{Status: f.status, Text: rec.TweetResult.Text}
	if f.status == models.StatusPosted {
		res.URL = "https://x.example/status/1"
	}
	return res
}

type harness struct {
	eng       *engine.Engine
	store     store.Store
	authority *fakeAuthority
	notifier  *fakeNotifier
	composer  *fakeComposer
	publisher *fakePublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewFileStore(filepath.Join(dir, "issues"))
	require.NoError(t, err)

	day := time.Date(2025, 6, 19, 12, 0, 0, 0, time.UTC)
	ids := idgen.New(
		filepath.Join(dir, "issue_counter.json"),
		idgen.WithClock(func() time.Time { return day }),
		idgen.WithActiveSet(s),
	)

	h := &harness{
		store:     s,
		authority: &fakeAuthority{},
		notifier:  &fakeNotifier{},
		composer:  &fakeComposer{text: "Pothole reported in Faridabad. @MCFaridabad please fix. #CivicIssue"},
		publisher: &fakePublisher{status: models.StatusPosted},
	}
	h.eng = engine.New(s, ids, dedup.New(s, nil, 2500), engine.Collaborators{
		Extractor: &fakeExtractor{city: "Faridabad"},
		Authority: h.authority,
		Notifier:  h.notifier,
		Composer:  h.composer,
		Publisher: h.publisher,
	})
	return h
}

func submit(t *testing.T, h *harness, issueType string, lat, lon float64) *engine.SubmitResult {
	t.Helper()
	res, err := h.eng.SubmitReport(context.Background(), []string{"photo.jpg"}, issueType, &collab.ExternalLocation{Latitude: lat, Longitude: lon})
	require.NoError(t, err)
	return res
}

// Full happy-path lifecycle with one duplicate report and one transient email
// failure along the way.
func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// First report becomes a new issue.
	res := submit(t, h, "Pothole", 28.40, 77.31)
	require.False(t, res.Merged)
	require.Equal(t, "faridabad_20250619_001", res.IssueID)

	// A second report ~300m away with the same type merges instead.
	dup, err := h.eng.SubmitReport(ctx, []string{"dup.jpg"}, "pothole", &collab.ExternalLocation{Latitude: 28.4027, Longitude: 77.31})
	require.NoError(t, err)
	require.True(t, dup.Merged)
	require.Equal(t, res.IssueID, dup.IssueID)

	rec, err := h.store.Get(ctx, store.PartitionActive, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, 1, rec.SimilarCount)
	require.Equal(t, []string{"dup.jpg"}, rec.SimilarImagePaths)

	// Metadata approval discovers the authority and advances.
	rec, err = h.eng.ApproveStage(ctx, res.IssueID, models.StageMetadataReview)
	require.NoError(t, err)
	require.Equal(t, models.StageAuthorityReview, rec.Stage)
	require.Equal(t, "roads@example.gov", rec.AuthorityContact.Email)
	require.Equal(t, 1, h.authority.calls)

	// The email fails: the stage holds and the failure is recorded.
	h.notifier.fail = true
	rec, err = h.eng.ApproveStage(ctx, res.IssueID, models.StageAuthorityReview)
	require.NoError(t, err)
	require.Equal(t, models.StageAuthorityReview, rec.Stage)
	require.Equal(t, "email sending failed", rec.Errors["email"])
	require.Nil(t, rec.EmailResult)

	// Retry after the outage: email goes out, tweet is drafted, stage advances.
	h.notifier.fail = false
	rec, err = h.eng.RetryStage(ctx, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, models.StageTweetReview, rec.Stage)
	require.Empty(t, rec.Errors)
	require.Equal(t, models.StatusCompleted, rec.EmailResult.Status)
	require.Equal(t, models.StatusPending, rec.TweetResult.Status)
	require.Equal(t, h.composer.text, rec.TweetResult.Text)

	// Final approval publishes and retires the issue.
	_, err = h.eng.ApproveStage(ctx, res.IssueID, models.StageTweetReview)
	require.NoError(t, err)

	_, err = h.store.Get(ctx, store.PartitionActive, res.IssueID)
	require.ErrorIs(t, err, store.ErrNotFound)

	done, err := h.store.Get(ctx, store.PartitionCompleted, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, models.StageComplete, done.Stage)
	require.Equal(t, models.StatusPosted, done.TweetResult.Status)
	require.NotEmpty(t, done.TweetResult.URL)
}

func TestSubmitReportNoLocation(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.SubmitReport(context.Background(), []string{"photo.jpg"}, "Pothole", nil)
	require.ErrorIs(t, err, engine.ErrLocationMissing)
}

func TestApproveStageRejectsBadStage(t *testing.T) {
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	_, err := h.eng.ApproveStage(context.Background(), res.IssueID, models.Stage("shipping_review"))
	require.ErrorIs(t, err, engine.ErrInvalidStage)

	_, err = h.eng.ApproveStage(context.Background(), res.IssueID, models.StageComplete)
	require.ErrorIs(t, err, engine.ErrInvalidStage)
}

// An approval for a stage the issue is not in is recorded but triggers
// nothing, and stays inert once the workflow passes that stage.
func TestApproveStageAheadIsInert(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	rec, err := h.eng.ApproveStage(ctx, res.IssueID, models.StageAuthorityReview)
	require.NoError(t, err)
	require.Equal(t, models.StageMetadataReview, rec.Stage)
	require.Zero(t, h.notifier.calls)
	require.True(t, rec.Approvals[models.StageAuthorityReview])
}

func TestRejectIssue(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	require.NoError(t, h.eng.RejectIssue(ctx, res.IssueID))

	_, err := h.store.Get(ctx, store.PartitionActive, res.IssueID)
	require.ErrorIs(t, err, store.ErrNotFound)

	rec, err := h.store.Get(ctx, store.PartitionRejected, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, models.StageRejected, rec.Stage)
}

func TestRejectIssueOnlyDuringMetadataReview(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	_, err := h.eng.ApproveStage(ctx, res.IssueID, models.StageMetadataReview)
	require.NoError(t, err)

	require.ErrorIs(t, h.eng.RejectIssue(ctx, res.IssueID), engine.ErrNotRejectable)
}

func TestRetryStageRequiresFailureOrApproval(t *testing.T) {
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	_, err := h.eng.RetryStage(context.Background(), res.IssueID)
	require.ErrorIs(t, err, engine.ErrNotRetryable)
}

// A failed publish records the error and withdraws the approval so the tweet
// is re-reviewed before the next attempt.
func TestPublishFailureResetsApproval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.publisher.status = models.StatusFailed

	res := submit(t, h, "Pothole", 28.40, 77.31)
	_, err := h.eng.ApproveStage(ctx, res.IssueID, models.StageMetadataReview)
	require.NoError(t, err)
	_, err = h.eng.ApproveStage(ctx, res.IssueID, models.StageAuthorityReview)
	require.NoError(t, err)

	rec, err := h.eng.ApproveStage(ctx, res.IssueID, models.StageTweetReview)
	require.NoError(t, err)
	require.Equal(t, models.StageTweetReview, rec.Stage)
	require.Equal(t, "tweet failed to post", rec.Errors["tweet_post"])
	require.False(t, rec.Approvals[models.StageTweetReview])

	// A fresh approval with the bridge restored completes the issue.
	h.publisher.status = models.StatusPosted
	_, err = h.eng.ApproveStage(ctx, res.IssueID, models.StageTweetReview)
	require.NoError(t, err)

	done, err := h.store.Get(ctx, store.PartitionCompleted, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, models.StageComplete, done.Stage)
	require.Empty(t, done.Errors)
}

// Sweeping twice without new approvals performs no extra side effects.
func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	res := submit(t, h, "Pothole", 28.40, 77.31)
	submit(t, h, "Streetlight", 28.55, 77.45)

	// Approve only the first issue's current stage, directly in the store, so
	// the sweep does the processing.
	rec, err := h.store.Get(ctx, store.PartitionActive, res.IssueID)
	require.NoError(t, err)
	rec.Approvals[models.StageMetadataReview] = true
	require.NoError(t, h.store.Put(ctx, store.PartitionActive, rec))

	require.NoError(t, h.eng.Sweep(ctx))
	require.Equal(t, 1, h.authority.calls)

	rec, err = h.store.Get(ctx, store.PartitionActive, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, models.StageAuthorityReview, rec.Stage)

	require.NoError(t, h.eng.Sweep(ctx))
	require.Equal(t, 1, h.authority.calls)
	require.Zero(t, h.notifier.calls)
}

func TestListAndGetIssues(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	res := submit(t, h, "Pothole", 28.40, 77.31)

	summaries, err := h.eng.ListIssues(ctx, store.PartitionActive)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, res.IssueID, summaries[0].IssueID)
	require.Equal(t, models.StageMetadataReview, summaries[0].Stage)

	rec, partition, err := h.eng.GetIssue(ctx, res.IssueID)
	require.NoError(t, err)
	require.Equal(t, store.PartitionActive, partition)
	require.Equal(t, "Pothole", rec.IssueType)

	_, _, err = h.eng.GetIssue(ctx, "ghost_20250101_001")
	require.ErrorIs(t, err, store.ErrNotFound)
}
