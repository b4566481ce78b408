package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("analyst-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Region.MaxArea != 0.01 || cfg.Region.ClipBuffer != 0.0003 || cfg.Region.SourceName != "routes" || cfg.Region.MaxTiles != 64 {
		t.Errorf("unexpected region defaults %+v", cfg.Region)
	}
	if cfg.OSMLR.TileURL != "https://osmlr-tiles.s3.amazonaws.com/v1.1/geojson/" {
		t.Errorf("unexpected tile url %s", cfg.OSMLR.TileURL)
	}
	if cfg.Telemetry.ServiceName != "analyst-test" {
		t.Errorf("expected service name default, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("ANALYST_ROUTING_HOST", "valhalla.internal:8002")
	t.Setenv("ANALYST_REGION_MAX_AREA", "0.02")

	cfg, err := Load("analyst-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Routing.Host != "valhalla.internal:8002" {
		t.Errorf("expected env host, got %s", cfg.Routing.Host)
	}
	if cfg.Region.MaxArea != 0.02 {
		t.Errorf("expected env max area, got %v", cfg.Region.MaxArea)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "osmlr.tile_url", "routing.host", "region.max_area", "database.host", "nats.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "analyst", Password: "p@ss", DBName: "analyst", SSLMode: "disable"}
	want := "postgres://analyst:p%40ss@db:5432/analyst?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %s, want %s", got, want)
	}
}
