// Package osmlr implements the tile hierarchy used by OSMLR geometry tiles
// and the bit layout of OSMLR segment identifiers.
package osmlr

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Level is one level of the tile hierarchy. Tiles are square cells of
// Size degrees, numbered row-major from (-180, -90).
type Level struct {
	Level int
	Size  float64
}

// Levels lists the hierarchy from coarsest to finest.
var Levels = []Level{
	{Level: 0, Size: 4},
	{Level: 1, Size: 1},
	{Level: 2, Size: 0.25},
}

// Tile is a (level, row, column) tile coordinate.
type Tile struct {
	Level int `json:"level"`
	Row   int `json:"row"`
	Col   int `json:"col"`
}

// ID returns the row-major tile index within its level.
func (t Tile) ID() int {
	cols, _ := dimensions(t.Level)
	return t.Row*cols + t.Col
}

// Suffix returns the tile's path, e.g. "1/047/701".
func (t Tile) Suffix() string {
	return Suffix(t.Level, t.ID())
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Level, t.Row, t.Col)
}

// Suffix formats a tile index as a path: the index is zero padded to
// a multiple of three digits wide enough for the level's largest index
// and split into three-digit directories.
func Suffix(level, id int) string {
	cols, rows := dimensions(level)
	digits := len(strconv.Itoa(cols*rows - 1))
	width := (digits + 2) / 3 * 3
	padded := fmt.Sprintf("%0*d", width, id)

	parts := make([]string, 0, width/3+1)
	parts = append(parts, strconv.Itoa(level))
	for i := 0; i < width; i += 3 {
		parts = append(parts, padded[i:i+3])
	}
	return strings.Join(parts, "/")
}

// TileCount returns the number of tiles on a level, or 0 for unknown levels.
func TileCount(level int) int {
	cols, rows := dimensions(level)
	return cols * rows
}

// TilesForBBox returns the tiles intersecting the box, coarsest level
// first, row-major within a level. With no levels given every level is
// enumerated.
func TilesForBBox(west, south, east, north float64, levels ...int) []Tile {
	var tiles []Tile
	for _, l := range selectLevels(levels) {
		minRow, maxRow, minCol, maxCol := span(l, west, south, east, north)
		for r := minRow; r <= maxRow; r++ {
			for c := minCol; c <= maxCol; c++ {
				tiles = append(tiles, Tile{Level: l.Level, Row: r, Col: c})
			}
		}
	}
	return tiles
}

// CountTiles returns len(TilesForBBox(...)) without building the tiles.
func CountTiles(west, south, east, north float64, levels ...int) int {
	n := 0
	for _, l := range selectLevels(levels) {
		minRow, maxRow, minCol, maxCol := span(l, west, south, east, north)
		n += (maxRow - minRow + 1) * (maxCol - minCol + 1)
	}
	return n
}

func selectLevels(levels []int) []Level {
	if len(levels) == 0 {
		return Levels
	}
	out := make([]Level, 0, len(levels))
	for _, l := range Levels {
		if slices.Contains(levels, l.Level) {
			out = append(out, l)
		}
	}
	return out
}

func span(l Level, west, south, east, north float64) (minRow, maxRow, minCol, maxCol int) {
	cols, rows := dimensions(l.Level)
	return cell(south, 90, l.Size, rows), cell(north, 90, l.Size, rows),
		cell(west, 180, l.Size, cols), cell(east, 180, l.Size, cols)
}

func cell(v, offset, size float64, n int) int {
	i := int(math.Floor((v + offset) / size))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func dimensions(level int) (cols, rows int) {
	for _, l := range Levels {
		if l.Level == level {
			return int(360 / l.Size), int(180 / l.Size)
		}
	}
	return 0, 0
}
