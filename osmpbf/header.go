package osmpbf

import "time"

// Capability strings this decoder understands. A file whose header
// requires anything else is refused up front instead of being silently
// mis-decoded.
var supportedFeatures = map[string]bool{
	"OsmSchema-V0.6": true,
	"DenseNodes":     true,
}

// BBox is the file header's bounding box in degrees.
type BBox struct {
	Left   float64
	Right  float64
	Top    float64
	Bottom float64
}

// Header carries the metadata of a PBF file's leading OSMHeader frame.
type Header struct {
	BBox                      *BBox
	RequiredFeatures          []string
	OptionalFeatures          []string
	WritingProgram            string
	Source                    string
	ReplicationTimestamp      time.Time
	ReplicationSequenceNumber int64
	ReplicationBaseURL        string
}

// decodeHeader parses an OSMHeader payload and enforces the required
// capability set.
func decodeHeader(payload []byte) (*Header, error) {
	hb, err := parseHeaderBlock(payload)
	if err != nil {
		return nil, &FormatError{Msg: "malformed HeaderBlock", Err: err}
	}

	for _, feature := range hb.RequiredFeatures {
		if !supportedFeatures[feature] {
			return nil, formatErrorf("file requires feature %q, which is not supported", feature)
		}
	}

	h := &Header{
		RequiredFeatures:          hb.RequiredFeatures,
		OptionalFeatures:          hb.OptionalFeatures,
		WritingProgram:            hb.WritingProgram,
		Source:                    hb.Source,
		ReplicationSequenceNumber: hb.ReplicationSequence,
		ReplicationBaseURL:        hb.ReplicationBaseURL,
	}
	if hb.ReplicationTimestamp != 0 {
		h.ReplicationTimestamp = time.Unix(hb.ReplicationTimestamp, 0).UTC()
	}
	if hb.BBox != nil {
		// Header bbox values are in nanodegrees, independent of any
		// block granularity.
		h.BBox = &BBox{
			Left:   float64(hb.BBox.Left) / 1e9,
			Right:  float64(hb.BBox.Right) / 1e9,
			Top:    float64(hb.BBox.Top) / 1e9,
			Bottom: float64(hb.BBox.Bottom) / 1e9,
		}
	}
	return h, nil
}
