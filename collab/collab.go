// Package collab holds the external collaborators the lifecycle engine
// delegates its side effects to: metadata extraction, reverse geocoding,
// authority discovery, email notification and social outreach. They are all
// I/O adapters; the engine only depends on the interfaces defined here.
package collab

import (
	"context"

	"civicspotter/models"
)

// ExternalLocation is device-supplied GPS data accompanying a report. It
// takes precedence over anything embedded in the photo.
type ExternalLocation struct {
	Latitude  float64
	Longitude float64
	Datetime  string
}

// MetadataExtractor resolves a report's location metadata. A failed
// extraction yields an empty Metadata, which the engine treats as "cannot
// create issue".
type MetadataExtractor interface {
	Extract(ctx context.Context, photoRef string, external *ExternalLocation) (models.Metadata, error)
}

// Geocoder resolves coordinates to a structured address (including the
// postal code used as a secondary dedup signal).
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (models.Address, error)
}

// AuthorityFinder discovers the contact for the authority responsible for an
// issue. It may return partial or empty data; it never blocks a stage
// transition from completing.
type AuthorityFinder interface {
	Discover(ctx context.Context, rec *models.IssueRecord) (models.ContactInfo, error)
}

// Notifier sends the authority notification for an issue.
type Notifier interface {
	Send(ctx context.Context, rec *models.IssueRecord) models.EmailResult
}

// Composer drafts the outreach text for an issue. An empty text is a failure.
type Composer interface {
	Compose(ctx context.Context, rec *models.IssueRecord) (string, error)
}

// Publisher posts the drafted outreach publicly.
type Publisher interface {
	Publish(ctx context.Context, rec *models.IssueRecord) models.TweetResult
}
