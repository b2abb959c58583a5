// Package geo handles the GeoJSON document model for zone definitions.
package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Recognized top-level and geometry kinds.
const (
	TypeFeatureCollection  = "FeatureCollection"
	TypeFeature            = "Feature"
	TypePoint              = "Point"
	TypeLineString         = "LineString"
	TypePolygon            = "Polygon"
	TypeMultiPoint         = "MultiPoint"
	TypeMultiLineString    = "MultiLineString"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
)

var geometryTypes = map[string]bool{
	TypePoint:              true,
	TypeLineString:         true,
	TypePolygon:            true,
	TypeMultiPoint:         true,
	TypeMultiLineString:    true,
	TypeMultiPolygon:       true,
	TypeGeometryCollection: true,
}

// GeometryType reports whether t names one of the seven geometry kinds.
func GeometryType(t string) bool {
	return geometryTypes[t]
}

// FormatError describes a document that failed structural validation.
// It is non-fatal for an editing session: the caller keeps its previous
// state and may retry with corrected input.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid geojson: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid geojson: %s", e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Geometry is one geometry of any kind. Coordinates are kept as raw JSON:
// nesting depth depends on the kind and no coordinate-level checks are
// performed here.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []Geometry      `json:"geometries,omitempty"`
}

// Clone returns a deep copy of the geometry.
func (g *Geometry) Clone() *Geometry {
	if g == nil {
		return nil
	}
	out := &Geometry{Type: g.Type}
	if g.Coordinates != nil {
		out.Coordinates = append(json.RawMessage(nil), g.Coordinates...)
	}
	for i := range g.Geometries {
		out.Geometries = append(out.Geometries, *g.Geometries[i].Clone())
	}
	return out
}

// Feature is a single geographic feature with geometry and attributes.
type Feature struct {
	Properties *Properties `json:"properties,omitempty"`
	Type       string      `json:"type"`
	Geometry   *Geometry   `json:"geometry"`
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	return &Feature{
		Type:       f.Type,
		Properties: f.Properties.Clone(),
		Geometry:   f.Geometry.Clone(),
	}
}

// Collection is a parsed zone document. The top-level kind is either
// FeatureCollection (Features set, possibly empty), Feature (Properties
// and Geometry set), or one of the geometry kinds (Coordinates or, for
// GeometryCollection, Geometries set).
type Collection struct {
	Type        string
	Features    []Feature
	Properties  *Properties
	Geometry    *Geometry
	Coordinates json.RawMessage
	Geometries  []Geometry
}

type collectionWire struct {
	Type       string      `json:"type"`
	Features   *[]Feature  `json:"features,omitempty"`
	Properties *Properties `json:"properties,omitempty"`
	// Geometry stays raw so an explicit null and an absent key are
	// distinguishable
	Geometry    json.RawMessage `json:"geometry,omitempty"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []Geometry      `json:"geometries,omitempty"`
}

// decodeWire parses exactly one JSON value into the wire form. Anything
// after the first value makes the document malformed as a whole.
func decodeWire(data []byte, wire *collectionWire) *FormatError {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(wire); err != nil {
		return &FormatError{Reason: "not a JSON object", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &FormatError{Reason: "trailing data after document"}
	}
	return nil
}

// geometryFromRaw decodes a geometry member. Absent and explicit null
// both yield nil; the caller distinguishes them on the raw bytes.
func geometryFromRaw(raw json.RawMessage) (*Geometry, error) {
	if raw == nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}
	g := &Geometry{}
	if err := json.Unmarshal(raw, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Validate parses data and applies the shallow structural check: the
// document must be a single JSON object, its type must be one of the
// recognized kinds, and a FeatureCollection must carry a features array
// (empty is fine). A Feature must carry a geometry member, though an
// explicit null geometry is allowed. Geometric correctness is
// intentionally not checked.
func Validate(data []byte) (*Collection, error) {
	var wire collectionWire
	if ferr := decodeWire(data, &wire); ferr != nil {
		return nil, ferr
	}

	geom, err := geometryFromRaw(wire.Geometry)
	if err != nil {
		return nil, &FormatError{Reason: "malformed geometry", Err: err}
	}

	c := &Collection{
		Type:        wire.Type,
		Properties:  wire.Properties,
		Geometry:    geom,
		Coordinates: wire.Coordinates,
		Geometries:  wire.Geometries,
	}

	switch {
	case wire.Type == TypeFeatureCollection:
		if wire.Features == nil {
			return nil, &FormatError{Reason: "FeatureCollection without features array"}
		}
		c.Features = *wire.Features

	case wire.Type == TypeFeature:
		if wire.Geometry == nil {
			return nil, &FormatError{Reason: "Feature without geometry"}
		}

	case GeometryType(wire.Type):
		// shallow check only, coordinates stay raw

	default:
		return nil, &FormatError{Reason: fmt.Sprintf("unrecognized kind %q", wire.Type)}
	}

	return c, nil
}

// Serialize produces the canonical compact encoding. Feature order and
// property key order are preserved; input whitespace is not.
func (c *Collection) Serialize() ([]byte, error) {
	return json.Marshal(c)
}

// MarshalJSON emits only the fields relevant to the document's kind. A
// FeatureCollection always carries its features array, even when empty.
func (c *Collection) MarshalJSON() ([]byte, error) {
	switch {
	case c.Type == TypeFeatureCollection:
		features := c.Features
		if features == nil {
			features = []Feature{}
		}
		return json.Marshal(struct {
			Type     string    `json:"type"`
			Features []Feature `json:"features"`
		}{c.Type, features})

	case c.Type == TypeFeature:
		return json.Marshal(struct {
			Properties *Properties `json:"properties,omitempty"`
			Type       string      `json:"type"`
			Geometry   *Geometry   `json:"geometry"`
		}{c.Properties, c.Type, c.Geometry})

	default:
		return json.Marshal(struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates,omitempty"`
			Geometries  []Geometry      `json:"geometries,omitempty"`
		}{c.Type, c.Coordinates, c.Geometries})
	}
}

// UnmarshalJSON accepts any recognized document shape without applying
// the Validate checks. Used for round-tripping already accepted data.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var wire collectionWire
	if ferr := decodeWire(data, &wire); ferr != nil {
		return ferr
	}
	geom, err := geometryFromRaw(wire.Geometry)
	if err != nil {
		return err
	}
	*c = Collection{
		Type:        wire.Type,
		Properties:  wire.Properties,
		Geometry:    geom,
		Coordinates: wire.Coordinates,
		Geometries:  wire.Geometries,
	}
	if wire.Features != nil {
		c.Features = *wire.Features
	}
	return nil
}

// Equal reports structural equality of the canonical encodings.
func (c *Collection) Equal(other *Collection) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, err := c.Serialize()
	if err != nil {
		return false
	}
	b, err := other.Serialize()
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a deep copy of the collection.
func (c *Collection) Clone() *Collection {
	if c == nil {
		return nil
	}
	out := &Collection{
		Type:       c.Type,
		Properties: c.Properties.Clone(),
		Geometry:   c.Geometry.Clone(),
	}
	if c.Features != nil {
		out.Features = make([]Feature, 0, len(c.Features))
		for i := range c.Features {
			out.Features = append(out.Features, *c.Features[i].Clone())
		}
	}
	if c.Coordinates != nil {
		out.Coordinates = append(json.RawMessage(nil), c.Coordinates...)
	}
	for i := range c.Geometries {
		out.Geometries = append(out.Geometries, *c.Geometries[i].Clone())
	}
	return out
}

// Promote converts a Feature or bare-geometry document into a one-feature
// FeatureCollection in place. A FeatureCollection is left untouched.
func (c *Collection) Promote() {
	switch {
	case c.Type == TypeFeatureCollection:
		return

	case c.Type == TypeFeature:
		c.Features = []Feature{{
			Type:       TypeFeature,
			Properties: c.Properties,
			Geometry:   c.Geometry,
		}}

	default:
		c.Features = []Feature{{
			Type: TypeFeature,
			Geometry: &Geometry{
				Type:        c.Type,
				Coordinates: c.Coordinates,
				Geometries:  c.Geometries,
			},
		}}
	}

	c.Type = TypeFeatureCollection
	c.Properties = nil
	c.Geometry = nil
	c.Coordinates = nil
	c.Geometries = nil
}
