// Package osmxml decodes OSM XML documents into the same lazy feature
// stream as the PBF decoder, so the two formats are interchangeable to a
// consumer. Parsing is incremental: the underlying encoding/xml token
// stream is pulled one feature element at a time.
package osmxml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/wegman-software/osmstream/osm"
)

// FormatError reports an OSM XML document that violates the feature
// contract, such as a feature without an id or a node without
// coordinates.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("osmxml: %s: %v", e.Msg, e.Err)
	}
	return "osmxml: " + e.Msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// Option configures a Scanner.
type Option func(*Scanner)

// WithAttributeFilter keeps only the listed metadata attributes on
// decoded features. Structural attributes (id, lat, lon, and member
// type/ref/role) are always kept.
func WithAttributeFilter(attrs ...string) Option {
	return func(s *Scanner) {
		s.attrFilter = make(map[string]bool, len(attrs))
		for _, a := range attrs {
			s.attrFilter[a] = true
		}
	}
}

// Scanner implements osm.Scanner over an OSM XML document.
type Scanner struct {
	dec        *xml.Decoder
	attrFilter map[string]bool
	current    osm.Feature
	err        error
	done       bool
}

// NewScanner returns a Scanner reading from r. The Scanner borrows r and
// never closes it.
func NewScanner(r io.Reader, opts ...Option) *Scanner {
	s := &Scanner{dec: xml.NewDecoder(r)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan advances to the next node, way or relation element.
func (s *Scanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}
	for {
		token, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			s.err = &FormatError{Msg: "XML parse error", Err: err}
			return false
		}

		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "node":
			s.current, s.err = s.parseNode(start)
		case "way":
			s.current, s.err = s.parseWay(start)
		case "relation":
			s.current, s.err = s.parseRelation(start)
		default:
			continue
		}
		return s.err == nil
	}
}

// Feature returns the feature produced by the last successful Scan.
func (s *Scanner) Feature() osm.Feature {
	return s.current
}

// Err returns the first error encountered, or nil at a clean end.
func (s *Scanner) Err() error {
	return s.err
}

// Close releases internal state; the underlying reader stays open.
func (s *Scanner) Close() error {
	s.done = true
	s.current = nil
	return nil
}

// keepAttr reports whether a metadata attribute passes the filter.
func (s *Scanner) keepAttr(name string) bool {
	return s.attrFilter == nil || s.attrFilter[name]
}

func (s *Scanner) parseNode(start xml.StartElement) (osm.Feature, error) {
	node := &osm.Node{Tags: osm.Tags{}}
	var hasID, hasLat, hasLon bool

	for _, attr := range start.Attr {
		var err error
		switch attr.Name.Local {
		case "id":
			node.ID, err = strconv.ParseInt(attr.Value, 10, 64)
			hasID = err == nil
		case "lat":
			node.Lat, err = strconv.ParseFloat(attr.Value, 64)
			hasLat = err == nil
		case "lon":
			node.Lon, err = strconv.ParseFloat(attr.Value, 64)
			hasLon = err == nil
		default:
			err = s.applyInfoAttr(&node.Info, attr)
		}
		if err != nil {
			return nil, &FormatError{Msg: fmt.Sprintf("invalid node attribute %q=%q", attr.Name.Local, attr.Value), Err: err}
		}
	}
	if !hasID {
		return nil, &FormatError{Msg: "osm file contains a node without id"}
	}
	if !hasLat || !hasLon {
		return nil, &FormatError{Msg: fmt.Sprintf("osm node %d has no lat/lon", node.ID)}
	}

	err := s.walkChildren(start, func(child xml.StartElement) error {
		if child.Name.Local == "tag" {
			k, v := tagAttrs(child)
			node.Tags[k] = v
		}
		return nil
	})
	return node, err
}

func (s *Scanner) parseWay(start xml.StartElement) (osm.Feature, error) {
	way := &osm.Way{Tags: osm.Tags{}}
	var hasID bool

	for _, attr := range start.Attr {
		var err error
		if attr.Name.Local == "id" {
			way.ID, err = strconv.ParseInt(attr.Value, 10, 64)
			hasID = err == nil
		} else {
			err = s.applyInfoAttr(&way.Info, attr)
		}
		if err != nil {
			return nil, &FormatError{Msg: fmt.Sprintf("invalid way attribute %q=%q", attr.Name.Local, attr.Value), Err: err}
		}
	}
	if !hasID {
		return nil, &FormatError{Msg: "osm file contains a way without id"}
	}

	err := s.walkChildren(start, func(child xml.StartElement) error {
		switch child.Name.Local {
		case "tag":
			k, v := tagAttrs(child)
			way.Tags[k] = v
		case "nd":
			for _, attr := range child.Attr {
				if attr.Name.Local == "ref" {
					ref, err := strconv.ParseInt(attr.Value, 10, 64)
					if err != nil {
						return &FormatError{Msg: fmt.Sprintf("way %d has an invalid nd ref %q", way.ID, attr.Value), Err: err}
					}
					way.Refs = append(way.Refs, ref)
				}
			}
		}
		return nil
	})
	return way, err
}

func (s *Scanner) parseRelation(start xml.StartElement) (osm.Feature, error) {
	rel := &osm.Relation{Tags: osm.Tags{}}
	var hasID bool

	for _, attr := range start.Attr {
		var err error
		if attr.Name.Local == "id" {
			rel.ID, err = strconv.ParseInt(attr.Value, 10, 64)
			hasID = err == nil
		} else {
			err = s.applyInfoAttr(&rel.Info, attr)
		}
		if err != nil {
			return nil, &FormatError{Msg: fmt.Sprintf("invalid relation attribute %q=%q", attr.Name.Local, attr.Value), Err: err}
		}
	}
	if !hasID {
		return nil, &FormatError{Msg: "osm file contains a relation without id"}
	}

	err := s.walkChildren(start, func(child xml.StartElement) error {
		switch child.Name.Local {
		case "tag":
			k, v := tagAttrs(child)
			rel.Tags[k] = v
		case "member":
			member, err := parseMember(child)
			if err != nil {
				return &FormatError{Msg: fmt.Sprintf("relation %d has an invalid member", rel.ID), Err: err}
			}
			rel.Members = append(rel.Members, member)
		}
		return nil
	})
	return rel, err
}

// tagAttrs extracts the k and v attributes of a <tag> element.
func tagAttrs(el xml.StartElement) (k, v string) {
	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "k":
			k = attr.Value
		case "v":
			v = attr.Value
		}
	}
	return k, v
}

func parseMember(el xml.StartElement) (osm.Member, error) {
	var m osm.Member
	for _, attr := range el.Attr {
		switch attr.Name.Local {
		case "type":
			switch attr.Value {
			case "node":
				m.Type = osm.TypeNode
			case "way":
				m.Type = osm.TypeWay
			case "relation":
				m.Type = osm.TypeRelation
			default:
				return m, fmt.Errorf("unknown member type %q", attr.Value)
			}
		case "ref":
			ref, err := strconv.ParseInt(attr.Value, 10, 64)
			if err != nil {
				return m, err
			}
			m.Ref = ref
		case "role":
			m.Role = attr.Value
		}
	}
	return m, nil
}

// applyInfoAttr coerces one metadata attribute into the feature's Info,
// allocating it on first use. Unknown attributes are ignored.
func (s *Scanner) applyInfoAttr(info **osm.Info, attr xml.Attr) error {
	name := attr.Name.Local
	switch name {
	case "version", "changeset", "uid", "user", "visible", "timestamp":
		if !s.keepAttr(name) {
			return nil
		}
	default:
		return nil
	}
	if *info == nil {
		*info = &osm.Info{Version: -1}
	}

	switch name {
	case "version":
		v, err := strconv.ParseInt(attr.Value, 10, 32)
		if err != nil {
			return err
		}
		(*info).Version = int32(v)
	case "changeset":
		v, err := strconv.ParseInt(attr.Value, 10, 64)
		if err != nil {
			return err
		}
		(*info).Changeset = &v
	case "uid":
		v, err := strconv.ParseInt(attr.Value, 10, 32)
		if err != nil {
			return err
		}
		uid := int32(v)
		(*info).UID = &uid
	case "user":
		user := attr.Value
		(*info).User = &user
	case "visible":
		v := attr.Value == "true" || attr.Value == "True" || attr.Value == "TRUE"
		(*info).Visible = &v
	case "timestamp":
		t, err := parseTimestamp(attr.Value)
		if err != nil {
			return err
		}
		(*info).Timestamp = &t
	}
	return nil
}

// parseTimestamp accepts both RFC 3339 instants and bare epoch seconds.
func parseTimestamp(v string) (time.Time, error) {
	if isDigits(v) {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func isDigits(v string) bool {
	if v == "" {
		return false
	}
	for _, c := range v {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// walkChildren streams the child elements of start until its matching
// end tag, invoking fn on each child start element.
func (s *Scanner) walkChildren(start xml.StartElement, fn func(xml.StartElement) error) error {
	depth := 1
	for depth > 0 {
		token, err := s.dec.Token()
		if err != nil {
			return &FormatError{Msg: fmt.Sprintf("unterminated <%s> element", start.Name.Local), Err: err}
		}
		switch el := token.(type) {
		case xml.StartElement:
			if depth == 1 {
				if err := fn(el); err != nil {
					return err
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}
