// Package osm defines the feature model shared by every decoder in this
// module: nodes, ways and relations plus their tags and edit metadata.
//
// Decoders emit features through the Scanner interface, a pull-based,
// forward-only sequence. Both the PBF and the XML decoders satisfy it, so
// consumers can process either format with the same loop:
//
//	for scanner.Scan() {
//		switch f := scanner.Feature().(type) {
//		case *osm.Node:
//			...
//		}
//	}
//	if err := scanner.Err(); err != nil {
//		...
//	}
package osm

import "time"

// Type identifies the kind of a feature.
type Type string

const (
	TypeNode     Type = "node"
	TypeWay      Type = "way"
	TypeRelation Type = "relation"
)

// Tags holds a feature's key/value tags.
type Tags map[string]string

// Info carries the optional edit metadata of a feature. Fields other than
// Version are pointers: nil means the source did not carry the field, which
// is distinct from a zero value.
type Info struct {
	// Version is -1 when the source did not declare one.
	Version   int32      `json:"version"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Changeset *int64     `json:"changeset,omitempty"`
	UID       *int32     `json:"uid,omitempty"`
	User      *string    `json:"user,omitempty"`
	Visible   *bool      `json:"visible,omitempty"`
}

// Feature is the union over nodes, ways and relations.
type Feature interface {
	Type() Type
	FeatureID() int64
}

// Node is a single point with latitude and longitude in degrees.
type Node struct {
	ID   int64   `json:"id"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Tags Tags    `json:"tags,omitempty"`
	Info *Info   `json:"info,omitempty"`
}

func (n *Node) Type() Type       { return TypeNode }
func (n *Node) FeatureID() int64 { return n.ID }

// Way is an ordered list of node references.
type Way struct {
	ID   int64   `json:"id"`
	Refs []int64 `json:"refs"`
	Tags Tags    `json:"tags,omitempty"`
	Info *Info   `json:"info,omitempty"`
}

func (w *Way) Type() Type       { return TypeWay }
func (w *Way) FeatureID() int64 { return w.ID }

// Member is a relation's reference to another feature.
type Member struct {
	Type Type   `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// Relation groups features into a logical unit, each with a role.
type Relation struct {
	ID      int64    `json:"id"`
	Members []Member `json:"members"`
	Tags    Tags     `json:"tags,omitempty"`
	Info    *Info    `json:"info,omitempty"`
}

func (r *Relation) Type() Type       { return TypeRelation }
func (r *Relation) FeatureID() int64 { return r.ID }

// Scanner is a lazy, forward-only, non-restartable sequence of features.
// Scan advances to the next feature and reports whether one is available;
// once it returns false the caller must check Err to distinguish a clean
// end of stream from a decode failure. Scanners borrow their underlying
// reader and never close it; Close only releases internal state.
type Scanner interface {
	Scan() bool
	Feature() Feature
	Err() error
	Close() error
}
