package collab

import (
	"context"

	"github.com/rs/zerolog/log"

	"civicspotter/models"
)

// LocationExtractor resolves a report's metadata from the device-supplied
// location and enriches it with a reverse-geocoded address. When no external
// location is supplied it yields an empty Metadata; embedded photo metadata
// extraction is the job of an upstream collaborator, not this service.
type LocationExtractor struct {
	geocoder Geocoder
}

var _ MetadataExtractor = (*LocationExtractor)(nil)

// NewLocationExtractor builds an extractor backed by the given geocoder.
func NewLocationExtractor(geocoder Geocoder) *LocationExtractor {
	return &LocationExtractor{geocoder: geocoder}
}

// Extract resolves coordinates, timestamp and address for a report.
func (e *LocationExtractor) Extract(ctx context.Context, photoRef string, external *ExternalLocation) (models.Metadata, error) {
	if external == nil {
		log.Warn().Str("photo", photoRef).Msg("no metadata available for photo")
		return models.Metadata{}, nil
	}

	lat, lon := external.Latitude, external.Longitude
	meta := models.Metadata{
		Latitude:  &lat,
		Longitude: &lon,
		Datetime:  external.Datetime,
	}

	addr, err := e.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		// The coordinates are still usable without an address.
		log.Warn().Err(err).Msg("reverse geocoding failed")
		return meta, nil
	}
	meta.Address = addr
	return meta, nil
}
