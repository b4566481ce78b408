package osmlr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opentraffic/analyst/internal/core/domain"
)

// Segment ids pack level, tile index and segment index into the low 46 bits.
const (
	levelBits        = 3
	tileIndexBits    = 22
	segmentIndexBits = 21

	levelMask        = 1<<levelBits - 1
	tileIndexMask    = 1<<tileIndexBits - 1
	segmentIndexMask = 1<<segmentIndexBits - 1

	usedBits = levelBits + tileIndexBits + segmentIndexBits
)

// ParseSegmentID decodes a raw decimal segment identifier.
func ParseSegmentID(raw string) (domain.SegmentID, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return domain.SegmentID{}, fmt.Errorf("%w: %q is not an unsigned integer", domain.ErrMalformedSegmentID, raw)
	}
	if id>>usedBits != 0 {
		return domain.SegmentID{}, fmt.Errorf("%w: %q has bits above %d set", domain.ErrMalformedSegmentID, raw, usedBits)
	}

	level := int(id & levelMask)
	tileIndex := (id >> levelBits) & tileIndexMask
	n := TileCount(level)
	if n == 0 {
		return domain.SegmentID{}, fmt.Errorf("%w: %q has unknown level %d", domain.ErrMalformedSegmentID, raw, level)
	}
	if tileIndex >= uint64(n) {
		return domain.SegmentID{}, fmt.Errorf("%w: %q tile index %d out of range for level %d", domain.ErrMalformedSegmentID, raw, tileIndex, level)
	}

	return domain.SegmentID{
		Raw:          raw,
		ID:           id,
		Level:        level,
		TileIndex:    uint32(tileIndex),
		SegmentIndex: uint32((id >> (levelBits + tileIndexBits)) & segmentIndexMask),
	}, nil
}

// EncodeSegmentID packs the components of a segment id.
func EncodeSegmentID(level int, tileIndex, segmentIndex uint32) uint64 {
	return uint64(level)&levelMask |
		(uint64(tileIndex)&tileIndexMask)<<levelBits |
		(uint64(segmentIndex)&segmentIndexMask)<<(levelBits+tileIndexBits)
}
