// Package valhalla resolves routes through a Valhalla routing service.
package valhalla

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// Valhalla error codes meaning no path exists between the locations.
var noRouteCodes = map[int]bool{
	170: true, // locations are in unconnected regions
	171: true, // no suitable edges near location
	442: true, // no path could be found for input
	443: true, // exact route match algorithm failed
}

// Config configures a Client.
type Config struct {
	Scheme  string
	Host    string
	Costing string
	Timeout time.Duration
}

// Client implements ports.RouteResolver.
type Client struct {
	endpoint string
	costing  string
	http     *http.Client
}

type location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type routeRequest struct {
	Locations []location `json:"locations"`
	Costing   string     `json:"costing"`
}

type routeResponse struct {
	Trip struct {
		Status  int               `json:"status"`
		Summary domain.RouteBounds `json:"summary"`
	} `json:"trip"`
	ErrorCode int    `json:"error_code"`
	Error     string `json:"error"`
}

// NewClient creates a new Client.
func NewClient(cfg Config) *Client {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Costing == "" {
		cfg.Costing = "auto"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		endpoint: fmt.Sprintf("%s://%s/route", cfg.Scheme, cfg.Host),
		costing:  cfg.Costing,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// Route requests a route through waypoints and returns its summary
// bounding box.
func (c *Client) Route(ctx context.Context, waypoints []domain.Waypoint) (*domain.RouteBounds, error) {
	body := routeRequest{Costing: c.costing, Locations: make([]location, len(waypoints))}
	for i, w := range waypoints {
		body.Locations[i] = location{Lat: w.Lat, Lon: w.Lon}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode route request: %w", err)
	}

	u := c.endpoint + "?json=" + url.QueryEscape(string(payload))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var rr routeResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, fmt.Errorf("decode route response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if noRouteCodes[rr.ErrorCode] {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoRoute, rr.Error)
		}
		return nil, fmt.Errorf("HTTP %d from routing service: %s", resp.StatusCode, rr.Error)
	}
	if rr.Trip.Status != 0 {
		return nil, fmt.Errorf("%w: trip status %d", domain.ErrNoRoute, rr.Trip.Status)
	}
	return &rr.Trip.Summary, nil
}
