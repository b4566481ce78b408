package osmlr_test

import (
	"testing"

	"github.com/opentraffic/analyst/internal/pkg/osmlr"
)

func TestSuffix(t *testing.T) {
	cases := []struct {
		level, id int
		want      string
	}{
		{0, 0, "0/000/000"},
		{0, 2415, "0/002/415"},
		{1, 32580, "1/032/580"},
		{1, 64799, "1/064/799"},
		{2, 756425, "2/000/756/425"},
	}
	for _, c := range cases {
		if got := osmlr.Suffix(c.level, c.id); got != c.want {
			t.Errorf("Suffix(%d, %d) = %q, want %q", c.level, c.id, got, c.want)
		}
	}
}

func TestTileID(t *testing.T) {
	tile := osmlr.Tile{Level: 1, Row: 90, Col: 180}
	if tile.ID() != 32580 {
		t.Fatalf("expected id 32580, got %d", tile.ID())
	}
	if tile.Suffix() != "1/032/580" {
		t.Errorf("unexpected suffix %s", tile.Suffix())
	}
}

func TestTilesForBBox_SmallBox(t *testing.T) {
	tiles := osmlr.TilesForBBox(0.01, 0.01, 0.04, 0.04)
	if len(tiles) != 3 {
		t.Fatalf("expected one tile per level, got %d: %v", len(tiles), tiles)
	}
	for i, tile := range tiles {
		if tile.Level != i {
			t.Errorf("tile %d: expected level %d, got %d", i, i, tile.Level)
		}
	}
	if tiles[1].Row != 90 || tiles[1].Col != 180 {
		t.Errorf("unexpected level 1 tile %v", tiles[1])
	}
}

func TestTilesForBBox_SpansCells(t *testing.T) {
	// lon 0 is a boundary on every level, lat 0 only below level 0
	tiles := osmlr.TilesForBBox(-0.5, -0.5, 0.5, 0.5)
	count := map[int]int{}
	for _, tile := range tiles {
		count[tile.Level]++
	}
	if count[0] != 2 || count[1] != 4 || count[2] != 25 {
		t.Errorf("unexpected per-level counts: %v", count)
	}
}

func TestTilesForBBox_ClampsEdges(t *testing.T) {
	tiles := osmlr.TilesForBBox(179.9, 89.9, 180, 90)
	for _, tile := range tiles {
		if tile.ID() >= osmlr.TileCount(tile.Level) {
			t.Errorf("tile %v id %d out of range", tile, tile.ID())
		}
	}
}

func TestTilesForBBox_LevelFilter(t *testing.T) {
	tiles := osmlr.TilesForBBox(-0.5, -0.5, 0.5, 0.5, 0, 1)
	if len(tiles) != 6 {
		t.Fatalf("expected 6 tiles on levels 0 and 1, got %d: %v", len(tiles), tiles)
	}
	for _, tile := range tiles {
		if tile.Level == 2 {
			t.Errorf("level 2 tile %v was enumerated", tile)
		}
	}
}

func TestCountTiles(t *testing.T) {
	cases := []struct {
		name                     string
		west, south, east, north float64
		levels                   []int
	}{
		{"small", 0.01, 0.01, 0.04, 0.04, nil},
		{"spans cells", -0.5, -0.5, 0.5, 0.5, nil},
		{"geometry levels", -0.5, -0.5, 0.5, 0.5, []int{0, 1}},
		{"level 2 only", 2, 2, 3, 3, []int{2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			want := len(osmlr.TilesForBBox(c.west, c.south, c.east, c.north, c.levels...))
			if got := osmlr.CountTiles(c.west, c.south, c.east, c.north, c.levels...); got != want {
				t.Errorf("CountTiles = %d, want %d", got, want)
			}
		})
	}

	// The whole world on the geometry levels: 90x45 + 360x180.
	if got := osmlr.CountTiles(-180, -90, 180, 90, 0, 1); got != 4050+64800 {
		t.Errorf("world count = %d", got)
	}
}
