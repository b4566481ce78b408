// Package osmlr fetches OSMLR geometry tiles over HTTP.
package osmlr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// maxTileBytes bounds the size of a single tile response.
const maxTileBytes = 64 << 20

// Client implements ports.TileSource against a static tile host.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client fetching {baseURL}{suffix}.json.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// URL returns the address of the tile identified by suffix.
func (c *Client) URL(suffix string) string {
	return c.baseURL + suffix + ".json"
}

// FetchTile downloads and decodes one tile. Numeric properties are kept as
// json.Number so large segment ids survive decoding.
func (c *Client) FetchTile(ctx context.Context, suffix string) (*domain.FeatureCollection, error) {
	url := c.URL(suffix)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fc domain.FeatureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	if fc.Type == "" {
		fc.Type = "FeatureCollection"
	}
	if fc.Features == nil {
		fc.Features = []domain.Feature{}
	}
	return &fc, nil
}
