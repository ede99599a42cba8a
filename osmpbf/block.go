package osmpbf

import "time"

// Schema defaults for the per-block scalars.
const (
	defaultGranularity     = 100  // nanodegree units per coordinate step
	defaultDateGranularity = 1000 // milliseconds per timestamp step
)

// blockContext is the per-block decode state: coordinate scaling and the
// string table. It lives for exactly one OSMData frame; nothing is
// carried over between frames.
type blockContext struct {
	granularity     int64
	latOffset       int64
	lonOffset       int64
	dateGranularity int64
	strings         [][]byte
}

func newBlockContext(b *primitiveBlock) *blockContext {
	return &blockContext{
		granularity:     int64(b.Granularity),
		latOffset:       b.LatOffset,
		lonOffset:       b.LonOffset,
		dateGranularity: int64(b.DateGranularity),
		strings:         b.StringTable,
	}
}

// str resolves a string-table index. Index 0 is conventionally the empty
// string; anything out of range means a corrupt or truncated table.
func (c *blockContext) str(i int64) (string, error) {
	if i < 0 || i >= int64(len(c.strings)) {
		return "", formatErrorf("string table index %d out of range (table has %d entries)", i, len(c.strings))
	}
	return string(c.strings[i]), nil
}

// lat converts an accumulated raw latitude to degrees.
func (c *blockContext) lat(raw int64) float64 {
	return float64(raw*c.granularity+c.latOffset) / 1e9
}

// lon converts an accumulated raw longitude to degrees.
func (c *blockContext) lon(raw int64) float64 {
	return float64(raw*c.granularity+c.lonOffset) / 1e9
}

// timestamp converts an accumulated raw timestamp to an absolute instant.
func (c *blockContext) timestamp(raw int64) time.Time {
	return time.UnixMilli(raw * c.dateGranularity).UTC()
}
