package osmpbf

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeHeaderFields(t *testing.T) {
	var bbox []byte
	bbox = appendSint64Field(bbox, 1, 20000000000)  // left 20 degrees
	bbox = appendSint64Field(bbox, 2, 22000000000)  // right
	bbox = appendSint64Field(bbox, 3, 53000000000)  // top
	bbox = appendSint64Field(bbox, 4, -52000000000) // bottom

	var b []byte
	b = appendBytesField(b, 1, bbox)
	b = appendStringField(b, 4, "OsmSchema-V0.6")
	b = appendStringField(b, 5, "Sort.Type_then_ID")
	b = appendStringField(b, 16, "osmium/1.14.0")
	b = appendStringField(b, 17, "openstreetmap.org")
	b = appendVarintField(b, 32, 1650000000)
	b = appendVarintField(b, 33, 4216)
	b = appendStringField(b, 34, "https://planet.osm.org/replication/minute/")

	h, err := decodeHeader(b)
	if err != nil {
		t.Fatalf("decodeHeader failed: %v", err)
	}

	if !reflect.DeepEqual(h.RequiredFeatures, []string{"OsmSchema-V0.6"}) {
		t.Errorf("required features = %v", h.RequiredFeatures)
	}
	if !reflect.DeepEqual(h.OptionalFeatures, []string{"Sort.Type_then_ID"}) {
		t.Errorf("optional features = %v", h.OptionalFeatures)
	}
	if h.WritingProgram != "osmium/1.14.0" {
		t.Errorf("writing program = %q", h.WritingProgram)
	}
	if h.Source != "openstreetmap.org" {
		t.Errorf("source = %q", h.Source)
	}
	if want := time.Unix(1650000000, 0).UTC(); !h.ReplicationTimestamp.Equal(want) {
		t.Errorf("replication timestamp = %v, want %v", h.ReplicationTimestamp, want)
	}
	if h.ReplicationSequenceNumber != 4216 {
		t.Errorf("replication sequence = %d, want 4216", h.ReplicationSequenceNumber)
	}
	if h.ReplicationBaseURL != "https://planet.osm.org/replication/minute/" {
		t.Errorf("replication base url = %q", h.ReplicationBaseURL)
	}

	if h.BBox == nil {
		t.Fatal("expected a bounding box")
	}
	want := BBox{Left: 20, Right: 22, Top: 53, Bottom: -52}
	if *h.BBox != want {
		t.Errorf("bbox = %+v, want %+v", *h.BBox, want)
	}
}

func TestDecodeHeaderMinimal(t *testing.T) {
	h, err := decodeHeader(nil)
	if err != nil {
		t.Fatalf("decodeHeader failed on an empty block: %v", err)
	}
	if h.BBox != nil || len(h.RequiredFeatures) != 0 {
		t.Errorf("empty header decoded to %+v", h)
	}
	if !h.ReplicationTimestamp.IsZero() {
		t.Errorf("replication timestamp = %v, want zero", h.ReplicationTimestamp)
	}
}

func TestDecodeHeaderRequiredFeatures(t *testing.T) {
	tests := []struct {
		name     string
		required []string
		wantErr  bool
	}{
		{"none", nil, false},
		{"schema only", []string{"OsmSchema-V0.6"}, false},
		{"schema and dense", []string{"OsmSchema-V0.6", "DenseNodes"}, false},
		{"unknown", []string{"OsmSchema-V0.6", "HistoricalInformation"}, true},
		{"optional slot ignored", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := buildHeaderBlockBytes(tt.required...)
			if tt.name == "optional slot ignored" {
				// Unknown strings are fine when merely optional.
				b = appendStringField(b, 5, "HistoricalInformation")
			}
			_, err := decodeHeader(b)
			if tt.wantErr {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("expected FormatError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeHeaderSkipsUnknownFields(t *testing.T) {
	b := buildHeaderBlockBytes("OsmSchema-V0.6")
	b = appendVarintField(b, 99, 7)
	b = protowire.AppendTag(b, 98, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("future"))

	h, err := decodeHeader(b)
	if err != nil {
		t.Fatalf("decodeHeader failed: %v", err)
	}
	if len(h.RequiredFeatures) != 1 {
		t.Errorf("required features = %v", h.RequiredFeatures)
	}
}
