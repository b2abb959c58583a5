package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestValidateRecognizedKinds(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"feature collection", `{"type":"FeatureCollection","features":[]}`},
		{"feature", `{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,2]}}`},
		{"point", `{"type":"Point","coordinates":[17.1,48.1]}`},
		{"line string", `{"type":"LineString","coordinates":[[0,0],[1,1]]}`},
		{"polygon", `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`},
		{"multi point", `{"type":"MultiPoint","coordinates":[[0,0]]}`},
		{"multi line string", `{"type":"MultiLineString","coordinates":[[[0,0],[1,1]]]}`},
		{"multi polygon", `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`},
		{"geometry collection", `{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[1,2]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := Validate([]byte(tc.doc))
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			if c == nil {
				t.Fatal("expected collection, got nil")
			}
		})
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"truncated", `{"type":"FeatureCollection","fea`},
		{"not an object", `[1,2,3]`},
		{"unknown kind", `{"type":"Circle","coordinates":[0,0]}`},
		{"fc without features", `{"type":"FeatureCollection"}`},
		{"feature without geometry", `{"type":"Feature","properties":{}}`},
		{"empty", ``},
		{"trailing garbage", `{"type":"FeatureCollection","features":[]} extra`},
		{"two documents", `{"type":"Point","coordinates":[0,0]}{"type":"Point","coordinates":[1,1]}`},
		{"malformed geometry member", `{"type":"Feature","properties":{},"geometry":7}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %T", err)
			}
		})
	}
}

func TestValidateNullGeometryFeature(t *testing.T) {
	// a geometry member that is explicitly null is a valid Feature; only
	// a missing member is not
	c, err := Validate([]byte(`{"type":"Feature","properties":{"name":"a"},"geometry":null}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if c.Geometry != nil {
		t.Fatalf("geometry = %+v, want nil", c.Geometry)
	}

	out, err := c.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !bytes.Contains(out, []byte(`"geometry":null`)) {
		t.Fatalf("null geometry member must survive serialization, got %s", out)
	}
	if _, err := Validate(out); err != nil {
		t.Fatalf("re-validate serialized output: %v", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	doc := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"properties": {"zeta": 1, "alpha": "x", "mid": null, "flag": true},
				"geometry": {"type": "Polygon", "coordinates": [[[17.0,48.0],[17.2,48.0],[17.2,48.2],[17.0,48.0]]]}
			},
			{
				"type": "Feature",
				"properties": {},
				"geometry": {"type": "Point", "coordinates": [19.7, 48.6]}
			}
		]
	}`

	first, err := Validate([]byte(doc))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	out1, err := first.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	second, err := Validate(out1)
	if err != nil {
		t.Fatalf("re-validate serialized output: %v", err)
	}
	out2, err := second.Serialize()
	if err != nil {
		t.Fatalf("re-serialize: %v", err)
	}

	if !bytes.Equal(out1, out2) {
		t.Fatalf("round trip not stable:\n%s\n%s", out1, out2)
	}
	if !first.Equal(second) {
		t.Fatal("collections not structurally equal after round trip")
	}

	// key order must survive
	props := second.Features[0].Properties
	want := []string{"zeta", "alpha", "mid", "flag"}
	got := props.Keys()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("property key order = %v, want %v", got, want)
	}
}

func TestSerializeEmptyFeatureCollection(t *testing.T) {
	c, err := Validate([]byte(`{"type":"FeatureCollection","features":[]}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := c.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if !bytes.Contains(out, []byte(`"features":[]`)) {
		t.Fatalf("empty features array must be explicit, got %s", out)
	}
}

func TestPromote(t *testing.T) {
	t.Run("bare geometry", func(t *testing.T) {
		c, err := Validate([]byte(`{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`))
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		c.Promote()
		if c.Type != TypeFeatureCollection {
			t.Fatalf("type = %q, want FeatureCollection", c.Type)
		}
		if len(c.Features) != 1 {
			t.Fatalf("features = %d, want 1", len(c.Features))
		}
		if c.Features[0].Geometry.Type != TypePolygon {
			t.Fatalf("geometry type = %q, want Polygon", c.Features[0].Geometry.Type)
		}
	})

	t.Run("feature keeps properties", func(t *testing.T) {
		c, err := Validate([]byte(`{"type":"Feature","properties":{"name":"zone"},"geometry":{"type":"Point","coordinates":[1,2]}}`))
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		c.Promote()
		v, ok := c.Features[0].Properties.Get("name")
		if !ok || v != "zone" {
			t.Fatalf("promoted feature lost properties: %v %v", v, ok)
		}
	})

	t.Run("feature collection untouched", func(t *testing.T) {
		c, err := Validate([]byte(`{"type":"FeatureCollection","features":[]}`))
		if err != nil {
			t.Fatalf("validate: %v", err)
		}
		c.Promote()
		if c.Type != TypeFeatureCollection || len(c.Features) != 0 {
			t.Fatal("promote changed an already valid FeatureCollection")
		}
	})
}

func TestCloneIsIndependent(t *testing.T) {
	c, err := Validate([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[1,2]}}]}`))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	clone := c.Clone()
	clone.Features[0].Properties.Set("name", "b")
	clone.Features[0].Geometry = &Geometry{Type: TypePoint, Coordinates: json.RawMessage(`[9,9]`)}

	v, _ := c.Features[0].Properties.Get("name")
	if v != "a" {
		t.Fatalf("mutating clone leaked into original: name = %v", v)
	}
	if string(c.Features[0].Geometry.Coordinates) != "[1,2]" {
		t.Fatalf("mutating clone leaked geometry: %s", c.Features[0].Geometry.Coordinates)
	}
}
