// Package osmpbf decodes the OpenStreetMap PBF container format into a
// lazy stream of features.
//
// A PBF file is a sequence of length-prefixed, independently compressed
// blobs: one OSMHeader frame followed by any number of OSMData frames.
// Each data frame holds delta-coded primitive groups that the Scanner
// decodes one block at a time, so memory stays bounded by a single block
// no matter how large the file is.
package osmpbf

import (
	"io"

	"github.com/wegman-software/osmstream/osm"
)

const (
	frameTypeHeader = "OSMHeader"
	frameTypeData   = "OSMData"
)

type scannerState int

const (
	stateAwaitHeader scannerState = iota
	stateAwaitData
	stateDone
	stateFailed
)

// Scanner is a forward-only, single-pass reader over a PBF byte stream.
// It implements osm.Scanner. The zero value is not usable; construct one
// with NewScanner.
//
// Any decoding error is sticky: once Scan returns false with a non-nil
// Err, no further features are produced.
type Scanner struct {
	blobs  *blobReader
	header *Header
	state  scannerState
	err    error

	// Features decoded from the current block, drained one per Scan.
	pending []osm.Feature
	next    int
	current osm.Feature
}

// NewScanner returns a Scanner reading from r, which must be positioned
// at the start of a PBF container. The Scanner borrows r and never
// closes it.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{
		blobs: newBlobReader(r),
		state: stateAwaitHeader,
	}
}

// Header returns the decoded file header, reading it from the stream if
// no feature has been requested yet. The header frame is mandatory: an
// empty stream is a FormatError.
func (s *Scanner) Header() (*Header, error) {
	if s.state == stateAwaitHeader {
		if err := s.readHeader(); err != nil {
			return nil, err
		}
	}
	if s.header == nil {
		return nil, s.err
	}
	return s.header, nil
}

// Scan advances to the next feature. It returns false at the end of the
// stream or on the first error; use Err to tell the two apart.
func (s *Scanner) Scan() bool {
	if s.state == stateDone || s.state == stateFailed {
		return false
	}
	if s.state == stateAwaitHeader {
		if err := s.readHeader(); err != nil {
			return false
		}
	}

	// A block may decode to zero features (all groups empty), so keep
	// pulling frames until one yields something or the stream ends.
	for s.next >= len(s.pending) {
		payload, err := s.blobs.readBlob(frameTypeData)
		if err == io.EOF {
			s.state = stateDone
			return false
		}
		if err != nil {
			s.fail(err)
			return false
		}
		if err := s.decodeBlock(payload); err != nil {
			s.fail(err)
			return false
		}
	}

	s.current = s.pending[s.next]
	s.next++
	return true
}

// Feature returns the feature produced by the last successful Scan. The
// caller owns it; the Scanner keeps no reference.
func (s *Scanner) Feature() osm.Feature {
	return s.current
}

// Err returns the first error encountered, or nil after a clean end of
// stream.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases the Scanner's internal state. The underlying reader is
// owned by the caller and stays open.
func (s *Scanner) Close() error {
	if s.state != stateFailed {
		s.state = stateDone
	}
	s.pending = nil
	s.current = nil
	return nil
}

func (s *Scanner) fail(err error) {
	s.state = stateFailed
	s.err = err
	s.pending = nil
	s.current = nil
}

func (s *Scanner) readHeader() error {
	payload, err := s.blobs.readBlob(frameTypeHeader)
	if err == io.EOF {
		err = formatErrorf("file ends before the mandatory OSMHeader frame")
	}
	if err != nil {
		s.fail(err)
		return err
	}
	header, err := decodeHeader(payload)
	if err != nil {
		s.fail(err)
		return err
	}
	s.header = header
	s.state = stateAwaitData
	return nil
}

// decodeBlock rebuilds the block context for one OSMData payload and
// decodes every primitive group in it.
func (s *Scanner) decodeBlock(payload []byte) error {
	block, err := parsePrimitiveBlock(payload)
	if err != nil {
		return &FormatError{Msg: "malformed PrimitiveBlock", Err: err}
	}
	ctx := newBlockContext(block)

	s.pending = s.pending[:0]
	s.next = 0
	for _, group := range block.Groups {
		if s.pending, err = decodeGroup(ctx, group, s.pending); err != nil {
			return err
		}
	}
	return nil
}

// decodeGroup dispatches one primitive group to the matching decoder.
// Groups are disjoint, but some producers populate empty placeholders
// for the unused collections, so the checks run in a fixed precedence
// order: scalar nodes, dense nodes, ways, relations.
func decodeGroup(ctx *blockContext, g *primitiveGroup, out []osm.Feature) ([]osm.Feature, error) {
	switch {
	case len(g.Nodes) > 0:
		return decodeNodes(ctx, g.Nodes, out)
	case g.Dense != nil:
		return decodeDense(ctx, g.Dense, out)
	case len(g.Ways) > 0:
		return decodeWays(ctx, g.Ways, out)
	case len(g.Relations) > 0:
		return decodeRelations(ctx, g.Relations, out)
	default:
		return out, nil
	}
}
