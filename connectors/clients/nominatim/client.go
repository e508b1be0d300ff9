// Package nominatim implements connectors.Geocoder against the OpenStreetMap
// Nominatim search API.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kilianp07/sosdispatch/auth"
	"github.com/kilianp07/sosdispatch/connectors"
	"github.com/kilianp07/sosdispatch/core/geo"
	"github.com/kilianp07/sosdispatch/core/model"
)

// DefaultBaseURL is the public OpenStreetMap instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// DefaultUserAgent identifies the service to Nominatim.
const DefaultUserAgent = "sosdispatch/1.0"

// Client queries /search and returns the best match.
type Client struct {
	baseURL   string
	userAgent string
	countries string
	auth      *auth.ClientCred
	http      *http.Client
}

// New creates a client. Options are applied in order.
func New(opts ...connectors.Option) (*Client, error) {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: DefaultUserAgent,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

type result struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Geocode returns the coordinates of the first search result.
func (c *Client) Geocode(ctx context.Context, address string) (model.Location, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	if c.countries != "" {
		q.Set("countrycodes", c.countries)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		if err := c.auth.SetAuthHeader(req); err != nil {
			return model.Location{}, fmt.Errorf("failed to set auth header: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Location{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}

	var results []result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return model.Location{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(results) == 0 {
		return model.Location{}, fmt.Errorf("%w: %q", connectors.ErrNoResult, address)
	}
	return parse(results[0])
}

func parse(r result) (model.Location, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("invalid lat %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return model.Location{}, fmt.Errorf("invalid lon %q: %w", r.Lon, err)
	}
	loc := model.Location{Lat: lat, Lon: lon}
	if err := geo.Validate(loc); err != nil {
		return model.Location{}, err
	}
	return loc, nil
}
