package valhalla_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opentraffic/analyst/internal/adapters/valhalla"
	"github.com/opentraffic/analyst/internal/core/domain"
)

func newClient(t *testing.T, h http.HandlerFunc) *valhalla.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return valhalla.NewClient(valhalla.Config{
		Scheme:  "http",
		Host:    strings.TrimPrefix(srv.URL, "http://"),
		Timeout: time.Second,
	})
}

func TestClient_Route(t *testing.T) {
	var got struct {
		Locations []struct{ Lat, Lon float64 } `json:"locations"`
		Costing   string                       `json:"costing"`
	}
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/route" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.Unmarshal([]byte(r.URL.Query().Get("json")), &got); err != nil {
			t.Errorf("bad json param: %v", err)
		}
		_, _ = w.Write([]byte(`{"trip":{"status":0,"summary":{"min_lat":0.001,"min_lon":0.002,"max_lat":0.049,"max_lon":0.048,"length":7.1}}}`))
	})

	rb, err := c.Route(context.Background(), []domain.Waypoint{{Lat: 0, Lon: 0}, {Lat: 0.05, Lon: 0.05}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &domain.RouteBounds{MinLat: 0.001, MinLon: 0.002, MaxLat: 0.049, MaxLon: 0.048}
	if diff := cmp.Diff(want, rb); diff != "" {
		t.Errorf("bounds mismatch (-want +got):\n%s", diff)
	}
	if got.Costing != "auto" || len(got.Locations) != 2 || got.Locations[1].Lat != 0.05 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestClient_NoRoute(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code":442,"error":"No path could be found for input","status_code":400}`))
	})

	_, err := c.Route(context.Background(), []domain.Waypoint{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}})
	if !errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
}

func TestClient_ServerError(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	})

	_, err := c.Route(context.Background(), []domain.Waypoint{{Lat: 0, Lon: 0}, {Lat: 1, Lon: 1}})
	if err == nil || errors.Is(err, domain.ErrNoRoute) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
