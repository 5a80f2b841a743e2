// Package dedup decides whether a new report describes the same real-world
// issue as one already on file, and merges its evidence in when it does.
package dedup

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"civicspotter/collab"
	"civicspotter/models"
	"civicspotter/store"
)

// DefaultThresholdMeters is the great-circle distance under which two reports
// of the same issue type are considered the same issue.
const DefaultThresholdMeters = 2500

const earthRadiusMeters = 6371000

// Haversine returns the great-circle distance in meters between two
// coordinate pairs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Detector scans stored issues for a match against a new report.
type Detector struct {
	store     store.Store
	geocoder  collab.Geocoder
	threshold float64
}

// New builds a Detector. A non-positive threshold falls back to the default.
func New(s store.Store, geocoder collab.Geocoder, thresholdMeters float64) *Detector {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Detector{store: s, geocoder: geocoder, threshold: thresholdMeters}
}

// CheckAndGroup scans active issues first, then completed ones, in store
// listing order; the first qualifying match wins. A candidate matches when it
// is within the distance threshold with an equal normalized issue type, or
// when both postal codes are present and equal. An active match absorbs the
// new report's images and count; a completed match is only reported so the
// submitter can be pointed at the resolved issue. A report without usable
// coordinates is reported as unmatched and proceeds as a standalone issue
// downstream.
//
// Note: two near-simultaneous reports of the same issue can both scan before
// either is stored and both become standalone issues. Only ID minting is
// serialized; this race is an accepted trade-off of the design.
func (d *Detector) CheckAndGroup(ctx context.Context, newRec *models.IssueRecord, external *collab.ExternalLocation) (bool, string, error) {
	var newLat, newLon float64
	switch {
	case external != nil:
		newLat, newLon = external.Latitude, external.Longitude
	case !newRec.Metadata.Empty():
		newLat, newLon = *newRec.Metadata.Latitude, *newRec.Metadata.Longitude
	default:
		log.Warn().Msg("location missing in new report, skipping similarity check")
		return false, "", nil
	}

	newType := normalizeType(newRec.IssueType)
	newPin := d.resolvePostalCode(ctx, newRec, newLat, newLon)

	// Active issues make better merge targets than resolved ones.
	matched, id, err := d.scan(ctx, store.PartitionActive, newLat, newLon, newType, newPin, newRec)
	if err != nil {
		return false, "", err
	}
	if matched {
		return true, id, nil
	}

	matched, id, err = d.scan(ctx, store.PartitionCompleted, newLat, newLon, newType, newPin, nil)
	if err != nil {
		return false, "", err
	}
	return matched, id, nil
}

// scan walks one partition for the first match. When mergeFrom is non-nil the
// matched candidate absorbs its images and count and is persisted back.
func (d *Detector) scan(ctx context.Context, partition store.Partition, newLat, newLon float64, newType, newPin string, mergeFrom *models.IssueRecord) (bool, string, error) {
	ids, err := d.store.ListIDs(ctx, partition)
	if err != nil {
		return false, "", fmt.Errorf("scanning %s issues: %w", partition, err)
	}

	for _, id := range ids {
		candidate, err := d.store.Get(ctx, partition, id)
		if err != nil {
			// A record vanishing or failing to decode must never crash the scan.
			log.Warn().Err(err).Str("issue_id", id).Msg("skipping unreadable candidate")
			continue
		}

		if !d.matches(candidate, newLat, newLon, newType, newPin) {
			continue
		}

		if mergeFrom != nil {
			candidate.SimilarCount++
			candidate.AbsorbImages(mergeFrom.ImagePaths)
			if err := d.store.Put(ctx, partition, candidate); err != nil {
				return false, "", fmt.Errorf("merging into issue %s: %w", candidate.IssueID, err)
			}
			log.Info().
				Str("issue_id", candidate.IssueID).
				Int("similar_count", candidate.SimilarCount).
				Msg("merged duplicate report")
		}
		return true, candidate.IssueID, nil
	}
	return false, "", nil
}

func (d *Detector) matches(candidate *models.IssueRecord, newLat, newLon float64, newType, newPin string) bool {
	// A candidate without coordinates is not comparable at all; it never
	// matches, not even on postal code.
	if candidate.Metadata.Empty() {
		return false
	}

	dist := Haversine(newLat, newLon, *candidate.Metadata.Latitude, *candidate.Metadata.Longitude)
	if dist <= d.threshold && newType != "" && normalizeType(candidate.IssueType) == newType {
		return true
	}

	// Looser secondary rule: shared postal code, regardless of type or
	// distance.
	candidatePin := candidate.Metadata.Address.PostalCode
	return candidatePin != "" && newPin != "" && candidatePin == newPin
}

// resolvePostalCode prefers the postal code already resolved on the report
// and falls back to a reverse lookup of its coordinates.
func (d *Detector) resolvePostalCode(ctx context.Context, rec *models.IssueRecord, lat, lon float64) string {
	if pin := rec.Metadata.Address.PostalCode; pin != "" {
		return pin
	}
	if d.geocoder == nil {
		return ""
	}
	addr, err := d.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		log.Warn().Err(err).Msg("postal code lookup failed, matching on distance only")
		return ""
	}
	return addr.PostalCode
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}
