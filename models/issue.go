package models

import (
	"time"
)

// Stage enum for the review workflow
type Stage string

const (
	StageMetadataReview  Stage = "metadata_review"
	StageAuthorityReview Stage = "authority_review"
	StageTweetReview     Stage = "tweet_review"
	StageComplete        Stage = "complete"
	StageRejected        Stage = "rejected"
)

// nextStage is the forward transition table. Rejection is a side exit from
// metadata_review, not a forward transition, so it does not appear here.
var nextStage = map[Stage]Stage{
	StageMetadataReview:  StageAuthorityReview,
	StageAuthorityReview: StageTweetReview,
	StageTweetReview:     StageComplete,
}

// Next returns the stage that follows s, or false when s is terminal.
func (s Stage) Next() (Stage, bool) {
	n, ok := nextStage[s]
	return n, ok
}

// Terminal reports whether s is a terminal stage.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageRejected
}

// Valid reports whether s names a known workflow stage.
func (s Stage) Valid() bool {
	switch s {
	case StageMetadataReview, StageAuthorityReview, StageTweetReview, StageComplete, StageRejected:
		return true
	}
	return false
}

// Address holds the structured reverse-geocoded address of a report.
type Address struct {
	Road       string `bson:"road,omitempty" json:"road,omitempty"`
	Suburb     string `bson:"suburb,omitempty" json:"suburb,omitempty"`
	City       string `bson:"city,omitempty" json:"city,omitempty"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postcode,omitempty" json:"postcode,omitempty"`
	Country    string `bson:"country,omitempty" json:"country,omitempty"`
}

// Metadata is the location/time evidence attached to a report. Latitude and
// longitude are pointers so that "missing" is distinguishable from zero.
type Metadata struct {
	Latitude  *float64 `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude *float64 `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Datetime  string   `bson:"datetime,omitempty" json:"datetime,omitempty"`
	Address   Address  `bson:"address" json:"address"`
}

// Empty reports whether no usable location was resolved for the report.
func (m Metadata) Empty() bool {
	return m.Latitude == nil || m.Longitude == nil
}

// ContactInfo is the discovered authority contact. The engine treats it as
// opaque; partial or empty data is acceptable.
type ContactInfo struct {
	Department string   `bson:"department,omitempty" json:"department,omitempty"`
	Email      string   `bson:"email,omitempty" json:"email,omitempty"`
	CC         []string `bson:"cc,omitempty" json:"cc,omitempty"`
}

// Side-effect result statuses as reported by collaborators.
const (
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
	StatusPending   = "pending"
	StatusPosted    = "completed"
)

// EmailResult records the outcome of the authority notification.
type EmailResult struct {
	Status    string `bson:"status" json:"status"`
	Timestamp string `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
}

// TweetResult records the drafted outreach text and, once published, its URL.
type TweetResult struct {
	Status string `bson:"status" json:"status"`
	Text   string `bson:"text,omitempty" json:"text,omitempty"`
	URL    string `bson:"url,omitempty" json:"url,omitempty"`
}

// IssueRecord is the unit of persistence, one per reported issue. The
// partition holding the record (active/completed/rejected) is not stored on
// the record itself.
type IssueRecord struct {
	IssueID           string            `bson:"_id" json:"issue_id"`
	IssueType         string            `bson:"issue_type" json:"issue_type"`
	Metadata          Metadata          `bson:"metadata" json:"metadata"`
	ImagePaths        []string          `bson:"image_paths" json:"image_paths"`
	SimilarImagePaths []string          `bson:"similar_image_paths" json:"similar_image_paths"`
	SimilarCount      int               `bson:"similar_count" json:"similar_count"`
	Stage             Stage             `bson:"stage" json:"stage"`
	Approvals         map[Stage]bool    `bson:"approvals" json:"approvals"`
	AuthorityContact  ContactInfo       `bson:"authority_contact" json:"authority_contact"`
	EmailResult       *EmailResult      `bson:"email_result,omitempty" json:"email_result,omitempty"`
	TweetResult       *TweetResult      `bson:"tweet_result,omitempty" json:"tweet_result,omitempty"`
	Errors            map[string]string `bson:"errors" json:"errors"`
	Stored            bool              `bson:"stored" json:"stored"`
	CreatedAt         time.Time         `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time         `bson:"updatedAt" json:"updatedAt"`
}

// NewIssueRecord returns a fresh, independently owned record for a new report.
// Every call allocates its own maps and slices; records never share state.
func NewIssueRecord(imagePaths []string) *IssueRecord {
	now := time.Now()
	return &IssueRecord{
		ImagePaths:        append([]string(nil), imagePaths...),
		SimilarImagePaths: []string{},
		SimilarCount:      0,
		Stage:             StageMetadataReview,
		Approvals:         map[Stage]bool{},
		Errors:            map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AbsorbImages appends paths not already present in SimilarImagePaths,
// preserving order. Used when a duplicate report is merged in.
func (r *IssueRecord) AbsorbImages(paths []string) {
	seen := make(map[string]bool, len(r.SimilarImagePaths))
	for _, p := range r.SimilarImagePaths {
		seen[p] = true
	}
	for _, p := range paths {
		if !seen[p] {
			r.SimilarImagePaths = append(r.SimilarImagePaths, p)
			seen[p] = true
		}
	}
}

// SetError records a stage-local failure under the given operation key.
func (r *IssueRecord) SetError(op, msg string) {
	if r.Errors == nil {
		r.Errors = map[string]string{}
	}
	r.Errors[op] = msg
}

// ClearError removes a previously recorded failure after a successful retry.
func (r *IssueRecord) ClearError(op string) {
	delete(r.Errors, op)
}
