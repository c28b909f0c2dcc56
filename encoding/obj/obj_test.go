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

package obj

import (
	"reflect"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene"
)

const testOBJ = `# two objects
mtllib city.mtl
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3
o Building_1
v 0 0 5
v 1 0 5
v 1 1 5
v 0 1 5
usemtl roof
f 5/1/1 6/2/1 7/3/1 8/4/1
o Ground Plane
f -8 -7 -6
`

func TestDecode(t *testing.T) {
	features, err := Decode(strings.NewReader(testOBJ))
	if err != nil {
		t.Fatal(err)
	}
	if len(features) != 3 {
		t.Fatalf("features: have %d, want 3", len(features))
	}
	want := []struct {
		name    string
		kind    cityscene.Kind
		indices []uint32
		nverts  int
	}{
		{DefaultObject, cityscene.Building, []uint32{0, 1, 2}, 3},
		{"Building_1", cityscene.Building, []uint32{0, 1, 2, 0, 2, 3}, 4},
		{"Ground Plane", cityscene.Terrain, []uint32{0, 1, 2}, 3},
	}
	for i, w := range want {
		f := features[i]
		if f.Name != w.name || f.Kind != w.kind || len(f.Vertices) != w.nverts {
			t.Errorf("feature %d: have %s %v with %d vertices", i, f.Name, f.Kind, len(f.Vertices))
		}
		if !reflect.DeepEqual(f.Indices, w.indices) {
			t.Errorf("feature %d indices: %v", i, pretty.Diff(f.Indices, w.indices))
		}
		if err := f.Check(); err != nil {
			t.Errorf("feature %d: %v", i, err)
		}
	}
	if p := features[1].Vertices[2]; p != (r3.Vec{X: 1, Y: 1, Z: 5}) {
		t.Errorf("vertex: have %v", p)
	}
}

func TestDecodeOffset(t *testing.T) {
	d := Decoder{Offset: r3.Vec{X: 100, Y: -50}}
	features, err := d.Decode(strings.NewReader(testOBJ))
	if err != nil {
		t.Fatal(err)
	}
	if p := features[0].Vertices[1]; p != (r3.Vec{X: 101, Y: -50}) {
		t.Errorf("vertex: have %v", p)
	}
}

func TestDecodeErrors(t *testing.T) {
	for _, doc := range []string{
		"v 0 0\n",
		"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n",
		"v 0 0 0\nf 1 2\n",
		"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n",
		"v a 0 0\n",
	} {
		if _, err := Decode(strings.NewReader(doc)); err == nil {
			t.Errorf("%q: expected an error", doc)
		}
	}
}
