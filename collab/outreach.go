package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"civicspotter/models"
)

const tweetMaxLen = 280

// TemplateComposer drafts outreach text from the issue record.
type TemplateComposer struct{}

var _ Composer = (*TemplateComposer)(nil)

// NewTemplateComposer returns a Composer.
func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

// Compose builds a tweet draft for the issue, capped at 280 characters.
func (c *TemplateComposer) Compose(ctx context.Context, rec *models.IssueRecord) (string, error) {
	issueType := rec.IssueType
	if issueType == "" {
		return "", errors.New("issue type missing, cannot compose outreach text")
	}

	addr := rec.Metadata.Address
	place := addr.City
	if addr.Road != "" && addr.City != "" {
		place = addr.Road + ", " + addr.City
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reported a %s issue", strings.ToLower(issueType))
	if place != "" {
		fmt.Fprintf(&b, " near %s", place)
	}
	fmt.Fprintf(&b, " (ref %s).", rec.IssueID)
	b.WriteString(" Full details and photo evidence shared with city authorities by email. #CivicIssue #SmartCity")

	text := b.String()
	if runes := []rune(text); len(runes) > tweetMaxLen {
		text = string(runes[:tweetMaxLen-1]) + "…"
	}
	return text, nil
}

// WebhookPublisher posts the drafted outreach to an HTTP bridge that owns the
// actual social-media credentials. An empty webhook URL leaves every publish
// pending so operators can see nothing went out.
type WebhookPublisher struct {
	webhookURL string
	client     *http.Client
}

var _ Publisher = (*WebhookPublisher)(nil)

// NewWebhookPublisher builds a publisher against the given bridge URL.
func NewWebhookPublisher(webhookURL string) *WebhookPublisher {
	return &WebhookPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

type publishRequest struct {
	IssueID string   `json:"issue_id"`
	Text    string   `json:"text"`
	Images  []string `json:"images,omitempty"`
}

type publishResponse struct {
	URL string `json:"url"`
}

// Publish posts the issue's drafted text. Failures are reported in the result
// status, never as an error.
func (p *WebhookPublisher) Publish(ctx context.Context, rec *models.IssueRecord) models.TweetResult {
	result := models.TweetResult{Status: models.StatusPending}
	if rec.TweetResult != nil {
		result.Text = rec.TweetResult.Text
	}
	if result.Text == "" {
		result.Status = models.StatusFailed
		return result
	}
	if p.webhookURL == "" {
		log.Warn().Str("issue_id", rec.IssueID).Msg("no outreach webhook configured, leaving post pending")
		return result
	}

	payload, err := json.Marshal(publishRequest{
		IssueID: rec.IssueID,
		Text:    result.Text,
		Images:  rec.ImagePaths,
	})
	if err != nil {
		result.Status = models.StatusFailed
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(payload))
	if err != nil {
		result.Status = models.StatusFailed
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("issue_id", rec.IssueID).Msg("failed to post outreach")
		result.Status = models.StatusFailed
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().Str("status", resp.Status).Str("issue_id", rec.IssueID).Msg("outreach bridge rejected post")
		result.Status = models.StatusFailed
		return result
	}

	var decoded publishResponse
	_ = json.NewDecoder(resp.Body).Decode(&decoded)

	result.Status = models.StatusPosted
	result.URL = decoded.URL
	return result
}
