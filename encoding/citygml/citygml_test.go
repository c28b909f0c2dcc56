/*
Copyright © 2024 the cityscene authors.
This file is part of cityscene.

cityscene is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

cityscene is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with cityscene.  If not, see <http://www.gnu.org/licenses/>.
*/

package citygml

import (
	"os"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/kernel"
)

func decodeSite(t *testing.T, d *Decoder) []*cityscene.Feature {
	f, err := os.Open("testdata/site.gml")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	features, err := d.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	return features
}

func TestDecode(t *testing.T) {
	features := decodeSite(t, new(Decoder))
	if len(features) != 3 {
		t.Fatalf("features: have %d, want 3", len(features))
	}
	want := []struct {
		name      string
		kind      cityscene.Kind
		triangles int
		tags      map[int32]int
	}{
		{"BLDG_0001", cityscene.Building, 12, map[int32]int{Wall: 8, Roof: 2, Ground: 2}},
		{"BLDG_0002", cityscene.Building, 6, map[int32]int{Other: 6}},
		{"DEM_1", cityscene.Terrain, 2, map[int32]int{Other: 2}},
	}
	for i, w := range want {
		f := features[i]
		if f.Name != w.name || f.Kind != w.kind {
			t.Errorf("feature %d: have %s %v, want %s %v", i, f.Name, f.Kind, w.name, w.kind)
		}
		if err := f.Check(); err != nil {
			t.Errorf("%s: %v", f.Name, err)
		}
		if n := len(f.Indices) / 3; n != w.triangles {
			t.Errorf("%s triangles: have %d, want %d", f.Name, n, w.triangles)
		}
		tags := make(map[int32]int)
		for _, tag := range f.SurfaceTag {
			tags[tag]++
		}
		for tag, n := range w.tags {
			if tags[tag] != n {
				t.Errorf("%s: have %d triangles tagged %d, want %d", f.Name, tags[tag], tag, n)
			}
		}
	}
	b := features[0]
	if a := kernel.Area(b.Vertices, b.Indices); a < 439.99 || a > 440.01 {
		t.Errorf("building area: have %g, want 440", a)
	}
	b.UpdateBounds()
	if b.Lower != (r3.Vec{X: 300000, Y: 2770000}) || b.Upper != (r3.Vec{X: 300010, Y: 2770010, Z: 6}) {
		t.Errorf("bounds: %v %v", b.Lower, b.Upper)
	}
}

func TestDecodeExclude(t *testing.T) {
	d := &Decoder{Exclude: map[string]bool{"BLDG_0002": true, "DEM_1": true}}
	features := decodeSite(t, d)
	// Only buildings can be excluded.
	if len(features) != 2 || features[0].Name != "BLDG_0001" || features[1].Name != "DEM_1" {
		t.Errorf("have %d features", len(features))
	}
}

func TestDecode2D(t *testing.T) {
	doc := `<CityModel><cityObjectMember><Building id="flat">
<Polygon><exterior><LinearRing><posList srsDimension="2">0 0 1 0 1 1 0 1 0 0</posList></LinearRing></exterior></Polygon>
<Polygon><exterior><LinearRing><posList>0 0 0 1 1 1 2 2 2</posList></LinearRing></exterior></Polygon>
</Building></cityObjectMember></CityModel>`
	d := new(Decoder)
	features, err := d.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 || len(features[0].Indices) != 6 {
		t.Fatalf("have %+v", features)
	}
	if d.Skipped != 1 {
		t.Errorf("skipped polygons: have %d, want 1", d.Skipped)
	}
	if _, err := Decode(strings.NewReader(`<Building><posList>0 0</posList></Building>`)); err == nil {
		t.Error("expected an error for an incomplete point")
	}
	if _, err := Decode(strings.NewReader(`<Building><posList>`)); err == nil {
		t.Error("expected an error for a truncated file")
	}
}

func TestDecodeLatitudeFirst(t *testing.T) {
	doc := `<CityModel><cityObjectMember><Building id="b">
<Polygon><exterior><LinearRing><posList>35 139 5 35 139.001 5 35.001 139.001 5 35 139 5</posList></LinearRing></exterior></Polygon>
</Building></cityObjectMember></CityModel>`
	d := Decoder{SwapXY: LatitudeFirst("EPSG:6697")}
	features, err := d.Decode(strings.NewReader(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 1 {
		t.Fatalf("have %d features", len(features))
	}
	if p := features[0].Vertices[0]; p != (r3.Vec{X: 139, Y: 35, Z: 5}) {
		t.Errorf("first vertex: have %v, want longitude first", p)
	}
	for code, want := range map[string]bool{"EPSG:4326": true, "epsg:6697": true, "EPSG:3826": false, "": false} {
		if LatitudeFirst(code) != want {
			t.Errorf("%s: have %v", code, !want)
		}
	}
}

func TestReadEnvelope(t *testing.T) {
	f, err := os.Open("testdata/site.gml")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	e, err := ReadEnvelope(f)
	if err != nil {
		t.Fatal(err)
	}
	if e.Lower != (r3.Vec{X: 299980, Y: 2769980, Z: -1}) || e.Upper != (r3.Vec{X: 300040, Y: 2770030, Z: 6}) {
		t.Errorf("envelope: %v %v", e.Lower, e.Upper)
	}
	if code := e.EPSG(); code != "EPSG:3826" {
		t.Errorf("EPSG: have %q", code)
	}
	for srs, want := range map[string]string{
		"http://www.opengis.net/def/crs/EPSG/0/6697": "EPSG:6697",
		"EPSG:32654": "EPSG:32654",
		"local":      "",
	} {
		if code := (Envelope{SRS: srs}).EPSG(); code != want {
			t.Errorf("%s: have %q, want %q", srs, code, want)
		}
	}
	if _, err := ReadEnvelope(strings.NewReader(`<CityModel><cityObjectMember/></CityModel>`)); err == nil {
		t.Error("expected an error for a missing envelope")
	}
}
