package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"civicspotter/models"
)

// NominatimGeocoder reverse-geocodes coordinates via a Nominatim-compatible
// endpoint. Transient failures are retried with bounded exponential backoff.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

var _ Geocoder = (*NominatimGeocoder)(nil)

// NewNominatimGeocoder builds a geocoder against baseURL (e.g.
// https://nominatim.openstreetmap.org). The user agent identifies the
// deployment as Nominatim's usage policy requires.
func NewNominatimGeocoder(baseURL, userAgent string) *NominatimGeocoder {
	return &NominatimGeocoder{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nominatimResponse struct {
	Address struct {
		Road     string `json:"road"`
		Suburb   string `json:"suburb"`
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
		Country  string `json:"country"`
	} `json:"address"`
}

// Reverse looks up the address for the given coordinates.
func (g *NominatimGeocoder) Reverse(ctx context.Context, lat, lon float64) (models.Address, error) {
	endpoint := g.baseURL + "/reverse?" + url.Values{
		"format":          {"jsonv2"},
		"lat":             {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":             {strconv.FormatFloat(lon, 'f', -1, 64)},
		"addressdetails":  {"1"},
		"accept-language": {"en"},
	}.Encode()

	var decoded nominatimResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", g.userAgent)

		resp, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("nominatim error: %s", resp.Status)
		}
		return json.NewDecoder(resp.Body).Decode(&decoded)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return models.Address{}, fmt.Errorf("reverse geocoding (%f, %f): %w", lat, lon, err)
	}

	addr := decoded.Address
	city := addr.City
	if city == "" {
		city = addr.Town
	}
	if city == "" {
		city = addr.Village
	}

	return models.Address{
		Road:       addr.Road,
		Suburb:     addr.Suburb,
		City:       city,
		State:      addr.State,
		PostalCode: addr.Postcode,
		Country:    addr.Country,
	}, nil
}
