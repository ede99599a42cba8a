package osmxml

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/wegman-software/osmstream/osm"
)

const sampleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <bounds minlat="52.0" minlon="20.9" maxlat="52.4" maxlon="21.3"/>
  <node id="177" lat="52.2296756" lon="21.0122287" version="5"
        timestamp="2020-02-14T12:21:15Z" changeset="123" uid="42" user="eve" visible="true">
    <tag k="name" v="Warszawa"/>
    <tag k="place" v="city"/>
  </node>
  <node id="178" lat="-1.5" lon="3.25"/>
  <way id="90" version="2">
    <nd ref="177"/>
    <nd ref="178"/>
    <tag k="highway" v="tertiary"/>
  </way>
  <relation id="55">
    <member type="node" ref="177" role="admin_centre"/>
    <member type="way" ref="90" role="outer"/>
    <tag k="type" v="boundary"/>
  </relation>
</osm>`

func scanAll(t *testing.T, s *Scanner) []osm.Feature {
	t.Helper()
	var features []osm.Feature
	for s.Scan() {
		features = append(features, s.Feature())
	}
	return features
}

func TestScanSampleDocument(t *testing.T) {
	s := NewScanner(strings.NewReader(sampleDoc))
	features := scanAll(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected scan error: %v", err)
	}
	if len(features) != 4 {
		t.Fatalf("expected 4 features, got %d", len(features))
	}

	node := features[0].(*osm.Node)
	if node.ID != 177 {
		t.Errorf("node id = %d, want 177", node.ID)
	}
	if node.Lat != 52.2296756 || node.Lon != 21.0122287 {
		t.Errorf("node coords = %v, %v", node.Lat, node.Lon)
	}
	wantTags := osm.Tags{"name": "Warszawa", "place": "city"}
	if !reflect.DeepEqual(node.Tags, wantTags) {
		t.Errorf("node tags = %v, want %v", node.Tags, wantTags)
	}
	if node.Info == nil {
		t.Fatal("expected node metadata")
	}
	if node.Info.Version != 5 {
		t.Errorf("version = %d, want 5", node.Info.Version)
	}
	if node.Info.Changeset == nil || *node.Info.Changeset != 123 {
		t.Errorf("changeset = %v, want 123", node.Info.Changeset)
	}
	if node.Info.UID == nil || *node.Info.UID != 42 {
		t.Errorf("uid = %v, want 42", node.Info.UID)
	}
	if node.Info.User == nil || *node.Info.User != "eve" {
		t.Errorf("user = %v, want eve", node.Info.User)
	}
	if node.Info.Visible == nil || !*node.Info.Visible {
		t.Errorf("visible = %v, want true", node.Info.Visible)
	}
	wantTime := time.Date(2020, 2, 14, 12, 21, 15, 0, time.UTC)
	if node.Info.Timestamp == nil || !node.Info.Timestamp.Equal(wantTime) {
		t.Errorf("timestamp = %v, want %v", node.Info.Timestamp, wantTime)
	}

	bare := features[1].(*osm.Node)
	if bare.Info != nil {
		t.Errorf("node without metadata attributes decoded Info %+v", bare.Info)
	}
	if len(bare.Tags) != 0 {
		t.Errorf("node without tags decoded %v", bare.Tags)
	}

	way := features[2].(*osm.Way)
	if way.ID != 90 {
		t.Errorf("way id = %d, want 90", way.ID)
	}
	if !reflect.DeepEqual(way.Refs, []int64{177, 178}) {
		t.Errorf("way refs = %v, want [177 178]", way.Refs)
	}
	if way.Tags["highway"] != "tertiary" {
		t.Errorf("way tags = %v", way.Tags)
	}
	if way.Info == nil || way.Info.Version != 2 {
		t.Errorf("way metadata = %+v, want version 2", way.Info)
	}

	rel := features[3].(*osm.Relation)
	wantMembers := []osm.Member{
		{Type: osm.TypeNode, Ref: 177, Role: "admin_centre"},
		{Type: osm.TypeWay, Ref: 90, Role: "outer"},
	}
	if !reflect.DeepEqual(rel.Members, wantMembers) {
		t.Errorf("relation members = %v, want %v", rel.Members, wantMembers)
	}
	if rel.Tags["type"] != "boundary" {
		t.Errorf("relation tags = %v", rel.Tags)
	}
}

func TestScanEpochTimestamp(t *testing.T) {
	doc := `<osm><node id="1" lat="0" lon="0" timestamp="1581685275"/></osm>`
	s := NewScanner(strings.NewReader(doc))
	if !s.Scan() {
		t.Fatalf("Scan failed: %v", s.Err())
	}
	node := s.Feature().(*osm.Node)
	want := time.Unix(1581685275, 0).UTC()
	if node.Info == nil || node.Info.Timestamp == nil || !node.Info.Timestamp.Equal(want) {
		t.Errorf("timestamp = %+v, want %v", node.Info, want)
	}
	if node.Info.Version != -1 {
		t.Errorf("version = %d, want -1 when the attribute is absent", node.Info.Version)
	}
}

func TestScanNodeMissingID(t *testing.T) {
	doc := `<osm><node lat="1" lon="2"/></osm>`
	s := NewScanner(strings.NewReader(doc))
	if s.Scan() {
		t.Fatal("Scan must fail for a node without id")
	}
	var fe *FormatError
	if !errors.As(s.Err(), &fe) {
		t.Fatalf("expected FormatError, got %v", s.Err())
	}
}

func TestScanNodeMissingCoordinates(t *testing.T) {
	doc := `<osm><node id="1" lat="1"/></osm>`
	s := NewScanner(strings.NewReader(doc))
	if s.Scan() {
		t.Fatal("Scan must fail for a node without lon")
	}
	var fe *FormatError
	if !errors.As(s.Err(), &fe) {
		t.Fatalf("expected FormatError, got %v", s.Err())
	}
}

func TestScanBadMemberType(t *testing.T) {
	doc := `<osm><relation id="1"><member type="area" ref="2"/></relation></osm>`
	s := NewScanner(strings.NewReader(doc))
	if s.Scan() {
		t.Fatal("Scan must fail for an unknown member type")
	}
	var fe *FormatError
	if !errors.As(s.Err(), &fe) {
		t.Fatalf("expected FormatError, got %v", s.Err())
	}
}

func TestScanMalformedXML(t *testing.T) {
	doc := `<osm><node id="1" lat="0" lon="0">`
	s := NewScanner(strings.NewReader(doc))
	if s.Scan() {
		t.Fatal("Scan must fail for a truncated document")
	}
	var fe *FormatError
	if !errors.As(s.Err(), &fe) {
		t.Fatalf("expected FormatError, got %v", s.Err())
	}
	if s.Scan() {
		t.Error("errors must be sticky")
	}
}

func TestScanErrorsOnBadAttributeValue(t *testing.T) {
	for _, doc := range []string{
		`<osm><node id="abc" lat="0" lon="0"/></osm>`,
		`<osm><node id="1" lat="north" lon="0"/></osm>`,
		`<osm><node id="1" lat="0" lon="0" version="x"/></osm>`,
		`<osm><way id="1"><nd ref="abc"/></way></osm>`,
	} {
		s := NewScanner(strings.NewReader(doc))
		if s.Scan() {
			t.Errorf("Scan succeeded for %s", doc)
			continue
		}
		var fe *FormatError
		if !errors.As(s.Err(), &fe) {
			t.Errorf("expected FormatError for %s, got %v", doc, s.Err())
		}
	}
}

func TestAttributeFilter(t *testing.T) {
	doc := `<osm><node id="1" lat="0" lon="0" version="3" user="eve" changeset="10"/></osm>`
	s := NewScanner(strings.NewReader(doc), WithAttributeFilter("version", "changeset"))
	if !s.Scan() {
		t.Fatalf("Scan failed: %v", s.Err())
	}
	node := s.Feature().(*osm.Node)
	if node.Info == nil {
		t.Fatal("expected metadata")
	}
	if node.Info.Version != 3 {
		t.Errorf("version = %d, want 3", node.Info.Version)
	}
	if node.Info.Changeset == nil || *node.Info.Changeset != 10 {
		t.Errorf("changeset = %v, want 10", node.Info.Changeset)
	}
	if node.Info.User != nil {
		t.Errorf("filtered user attribute survived: %v", *node.Info.User)
	}
}

func TestScannerIgnoresForeignElements(t *testing.T) {
	doc := `<osm><bounds minlat="0"/><changeset id="9"/><node id="4" lat="0" lon="0"/></osm>`
	s := NewScanner(strings.NewReader(doc))
	features := scanAll(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(features) != 1 || features[0].FeatureID() != 4 {
		t.Errorf("features = %v, want only node 4", features)
	}
}

var _ osm.Scanner = (*Scanner)(nil)
