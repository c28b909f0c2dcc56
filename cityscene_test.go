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

package cityscene

import (
	"bytes"
	"errors"
	"io/ioutil"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene/kernel"
)

func different(a, b, tolerance float64) bool {
	return math.Abs(a-b) > tolerance*math.Max(math.Abs(a), 1)
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

// box returns a w×d×h building standing on z = 0 with its lower corner
// at the origin.
func box(t *testing.T, name string, w, d, h float64, bottom bool) *Feature {
	ring := []r3.Vec{{}, {X: w}, {X: w, Y: d}, {Y: d}}
	v, idx, tags, err := kernel.Extrude(ring, h, bottom)
	if err != nil {
		t.Fatal(err)
	}
	return &Feature{Name: name, Kind: Building, Vertices: v, Indices: idx, SurfaceTag: tags}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Centimeters = false
	return cfg
}

func runScene(t *testing.T, cfg Config, features ...*Feature) *Scene {
	s := NewScene(cfg)
	s.Log = quietLog()
	s.InitFuncs = []SceneManipulator{AddFeatures(features...), Normalize(nil)}
	s.RunFuncs = Stages()
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}
	return s
}

func countTags(tags []int32, tag int32) int {
	n := 0
	for _, x := range tags {
		if x == tag {
			n++
		}
	}
	return n
}

func TestSceneBox(t *testing.T) {
	s := runScene(t, testConfig(), box(t, "bldg", 20, 10, 6, true))

	if len(s.Exteriors) != 1 {
		t.Fatalf("exteriors: have %d, want 1", len(s.Exteriors))
	}
	ext := s.Exteriors[0]
	if a := kernel.Area(ext.Vertices, ext.Indices); different(a, 760, 1e-9) {
		t.Errorf("exterior area: have %g, want 760", a)
	}
	if len(ext.Tags) != ext.NumTriangles() {
		t.Errorf("exterior has %d tags for %d triangles", len(ext.Tags), ext.NumTriangles())
	}
	lower, upper := kernel.Bounds(ext.Vertices)
	if different(lower.X, -10, 1e-9) || different(upper.X, 10, 1e-9) ||
		different(lower.Y, -5, 1e-9) || different(upper.Y, 5, 1e-9) ||
		different(lower.Z, 0, 1e-9) || different(upper.Z, 6, 1e-9) {
		t.Errorf("exterior bounds: %v %v", lower, upper)
	}

	if len(s.Interiors) != 1 {
		t.Fatalf("interiors: have %d, want 1", len(s.Interiors))
	}
	in := s.Interiors[0]
	// Two floors of 200 cells with two triangles each, plus the stairs.
	if n := in.NumTriangles(); n != 802 {
		t.Errorf("interior triangles: have %d, want 802", n)
	}
	if countTags(in.Tags, Indoor) != in.NumTriangles() {
		t.Error("interior triangles should all be indoor")
	}
	levels := map[float64]bool{}
	for _, p := range in.Vertices {
		levels[math.Round(p.Z*10)/10] = true
	}
	if len(levels) != 2 || !levels[0.1] || !levels[3.1] {
		t.Errorf("interior floor heights: %v", levels)
	}

	if !s.flatTerrain {
		t.Error("a site without terrain should get a flat ground plane")
	}
	if a := kernel.Area(s.Terrain.Vertices, s.Terrain.Indices); different(a, 1200, 1e-9) {
		t.Errorf("terrain area: have %g, want 1200", a)
	}

	if s.Remainder == nil {
		t.Fatal("the precise strategy should keep the covered terrain")
	}
	if a := kernel.Area(s.Remainder.Vertices, s.Remainder.Indices); different(a, 200, 1e-6) {
		t.Errorf("remainder area: have %g, want 200", a)
	}

	m := s.Mobility
	if len(m.Tags) != m.NumTriangles() {
		t.Fatalf("mobility has %d tags for %d triangles", len(m.Tags), m.NumTriangles())
	}
	outdoor, indoor := countTags(m.Tags, Outdoor), countTags(m.Tags, Indoor)
	if outdoor+indoor != m.NumTriangles() {
		t.Errorf("mobility tags other than outdoor and indoor: %d", m.NumTriangles()-outdoor-indoor)
	}
	if indoor != in.NumTriangles() {
		t.Errorf("indoor triangles: have %d, want %d", indoor, in.NumTriangles())
	}
	var outdoorArea float64
	for i, tag := range m.Tags {
		if tag != Outdoor {
			continue
		}
		tri := m.Indices[3*i : 3*i+3]
		outdoorArea += kernel.Area(m.Vertices, tri)
		c := r3.Scale(1.0/3, r3.Add(m.Vertices[tri[0]], r3.Add(m.Vertices[tri[1]], m.Vertices[tri[2]])))
		if c.X > -10 && c.X < 10 && c.Y > -5 && c.Y < 5 {
			t.Errorf("outdoor triangle %d is under the building", i)
			break
		}
	}
	if different(outdoorArea, 1000, 1e-6) {
		t.Errorf("outdoor area: have %g, want 1000", outdoorArea)
	}

	for _, p := range s.Footprint.Vertices {
		if p.Z != 0 {
			t.Fatalf("footprint vertex %v is not flattened", p)
		}
	}
	if s.Center.X != 10 || s.Center.Y != 5 || s.ZOffset != 0 || s.Scale != 1 {
		t.Errorf("placement: center %v, z offset %g, scale %g", s.Center, s.ZOffset, s.Scale)
	}
}

// TestOpenBox follows a 10×10×6 box without a floor through every stage
// on a site with no terrain.
func TestOpenBox(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	s := NewScene(testConfig())
	s.Log = log
	s.InitFuncs = []SceneManipulator{AddFeatures(box(t, "bldg", 10, 10, 6, false)), Normalize(nil)}
	s.RunFuncs = Stages()
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s.Run(); err != nil {
		t.Fatal(err)
	}

	if len(s.buildings) != 1 || !reflect.DeepEqual(s.buildings[0].planes, []float64{0.1, 3.1}) {
		t.Fatalf("slice planes: have %v, want [0.1 3.1]", s.buildings[0].planes)
	}

	if len(s.Interiors) != 1 {
		t.Fatalf("interiors: have %d, want 1", len(s.Interiors))
	}
	in := s.Interiors[0]
	if n := in.NumTriangles(); n <= 400 {
		t.Errorf("interior triangles: have %d, want two floors of 200 plus stairs", n)
	}
	stairs := 0
	for i := 0; i < len(in.Indices); i += 3 {
		a, b, c := in.Vertices[in.Indices[i]], in.Vertices[in.Indices[i+1]], in.Vertices[in.Indices[i+2]]
		if math.Max(a.Z, math.Max(b.Z, c.Z))-math.Min(a.Z, math.Min(b.Z, c.Z)) > 1 {
			stairs++
		}
	}
	if stairs == 0 {
		t.Error("no staircase joins the two floors")
	}

	warned := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "bbox rectangle fallback") {
			warned = true
		}
	}
	if !warned {
		t.Error("missing the footprint fallback warning")
	}
	fp := s.Footprint
	if fp == nil || fp.NumTriangles() != 2 {
		t.Fatalf("expected the two-triangle bounding rectangle, have %+v", fp)
	}
	if a := kernel.Area(fp.Vertices, fp.Indices); different(a, 100, 1e-9) {
		t.Errorf("footprint area: have %g, want 100", a)
	}
	for _, p := range fp.Vertices {
		if p.Z != 0 {
			t.Errorf("footprint vertex %v is not at the base of the building", p)
		}
	}

	if !s.flatTerrain {
		t.Fatal("a site without terrain should get a flat ground plane")
	}
	lower, upper := kernel.Bounds(s.Terrain.Vertices)
	if different(lower.X, -15, 1e-9) || different(upper.X, 15, 1e-9) ||
		different(lower.Y, -15, 1e-9) || different(upper.Y, 15, 1e-9) ||
		lower.Z != 0 || upper.Z != 0 {
		t.Errorf("terrain bounds: %v %v", lower, upper)
	}

	m := s.Mobility
	outdoor, indoor := countTags(m.Tags, Outdoor), countTags(m.Tags, Indoor)
	if outdoor == 0 || indoor != in.NumTriangles() || outdoor+indoor != m.NumTriangles() {
		t.Errorf("mobility tags: %d outdoor and %d indoor of %d", outdoor, indoor, m.NumTriangles())
	}
	var outdoorArea float64
	for i, tag := range m.Tags {
		if tag == Outdoor {
			outdoorArea += kernel.Area(m.Vertices, m.Indices[3*i:3*i+3])
		}
	}
	if different(outdoorArea, 800, 1e-6) {
		t.Errorf("outdoor area: have %g, want 800", outdoorArea)
	}
}

func TestOverlappingFootprints(t *testing.T) {
	cfg := testConfig()
	cfg.Interiors = false
	a := box(t, "a", 10, 10, 6, true)
	b := box(t, "b", 10, 10, 6, true)
	kernel.Translate(b.Vertices, r3.Vec{X: 5, Y: 5})
	s := runScene(t, cfg, a, b)
	ta := kernel.Area(s.Terrain.Vertices, s.Terrain.Indices)
	if different(ta, 35*35, 1e-9) {
		t.Fatalf("terrain area: have %g, want 1225", ta)
	}
	m := s.Mobility
	if a := kernel.Area(m.Vertices, m.Indices); different(a, 1225-175, 1e-6) {
		t.Errorf("outdoor area: have %g, want 1050", a)
	}
	if a := kernel.Area(s.Remainder.Vertices, s.Remainder.Indices); different(a, 175, 1e-6) {
		t.Errorf("remainder area: have %g, want 175", a)
	}
}

func TestInteriorsInOrder(t *testing.T) {
	row := func() []*Feature {
		var features []*Feature
		for i, name := range []string{"c", "a", "d", "b"} {
			f := box(t, name, 10, 10, 6, true)
			kernel.Translate(f.Vertices, r3.Vec{X: 30 * float64(i)})
			features = append(features, f)
		}
		return features
	}
	first := runScene(t, testConfig(), row()...)
	var names []string
	for _, m := range first.Interiors {
		names = append(names, m.Name)
	}
	if want := []string{"c_interior", "a_interior", "d_interior", "b_interior"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("interior order: have %v, want %v", names, want)
	}
	second := runScene(t, testConfig(), row()...)
	for i := range first.Interiors {
		if !reflect.DeepEqual(first.Interiors[i], second.Interiors[i]) {
			t.Errorf("interior %d differs between runs", i)
		}
	}
}

func TestSceneCentimeters(t *testing.T) {
	cfg := testConfig()
	cfg.Centimeters = true
	cfg.Interiors = false
	s := runScene(t, cfg, box(t, "bldg", 20, 10, 6, true))
	if s.Scale != 100 {
		t.Errorf("scale: have %g, want 100", s.Scale)
	}
	if s.Metadata.MetersPerUnit != 0.01 {
		t.Errorf("meters per unit: have %g, want 0.01", s.Metadata.MetersPerUnit)
	}
	_, upper := kernel.Bounds(s.Exteriors[0].Vertices)
	if different(upper.X, 1000, 1e-9) || different(upper.Z, 600, 1e-9) {
		t.Errorf("upper corner: have %v", upper)
	}
	s.Rescale(0.01)
	_, upper = kernel.Bounds(s.Exteriors[0].Vertices)
	if different(upper.X, 10, 1e-9) || s.Scale != 1 {
		t.Errorf("after rescaling: upper corner %v, scale %g", upper, s.Scale)
	}
	if len(s.Interiors) != 0 {
		t.Error("interiors were disabled")
	}
}

func TestFootprintFallback(t *testing.T) {
	s := runScene(t, testConfig(), box(t, "bldg", 20, 10, 6, false))
	fp := s.Footprint
	if fp == nil || fp.NumTriangles() != 2 {
		t.Fatalf("expected the two-triangle bounding rectangle, have %+v", fp)
	}
	if a := kernel.Area(fp.Vertices, fp.Indices); different(a, 200, 1e-9) {
		t.Errorf("footprint area: have %g, want 200", a)
	}
}

func TestFootprintRange(t *testing.T) {
	cfg := testConfig()
	cfg.Interiors = false
	cfg.FootprintStart = 1
	a := box(t, "a", 10, 10, 6, true)
	b := box(t, "b", 10, 10, 6, true)
	kernel.Translate(b.Vertices, r3.Vec{X: 50})
	s := runScene(t, cfg, a, b)
	lower, _ := kernel.Bounds(s.Footprint.Vertices)
	if different(lower.X+s.Center.X, 50, 1e-9) {
		t.Errorf("only the second building should contribute a footprint; lower corner %v", lower)
	}
}

func TestTerrainClip(t *testing.T) {
	cfg := testConfig()
	cfg.Interiors = false
	cfg.TerrainMargin = 5
	v, idx := kernel.Rectangle(r3.Vec{X: -1000, Y: -1000}, r3.Vec{X: 1000, Y: 1000}, -2)
	ground := &Feature{Name: "ground", Kind: Terrain, Vertices: v, Indices: idx}
	s := runScene(t, cfg, box(t, "bldg", 20, 10, 6, true), ground)
	if s.flatTerrain {
		t.Fatal("the terrain feature was not used")
	}
	tv, tidx := s.Terrain.Vertices, s.Terrain.Indices
	if a := kernel.Area(tv, tidx); different(a, 600, 1e-9) {
		t.Errorf("terrain area: have %g, want 600", a)
	}
	lower, upper := kernel.Bounds(tv)
	if different(lower.X, -15, 1e-9) || different(upper.Y, 10, 1e-9) || different(lower.Z, -2, 1e-9) {
		t.Errorf("terrain bounds: %v %v", lower, upper)
	}
	if s.ZOffset != 0 {
		t.Errorf("z offset: have %g, want 0 with real terrain", s.ZOffset)
	}
	for i := 0; i < len(tidx); i += 3 {
		for e := 0; e < 3; e++ {
			a, b := tv[tidx[i+e]], tv[tidx[i+(e+1)%3]]
			if r3.Norm(r3.Sub(a, b)) > cfg.MaxEdgeLength+1e-9 {
				t.Fatalf("terrain edge %v-%v is too long", a, b)
			}
		}
	}
}

func TestTerrainOnly(t *testing.T) {
	v, idx := kernel.Rectangle(r3.Vec{X: 100, Y: 200}, r3.Vec{X: 110, Y: 210}, 5)
	ground := &Feature{Name: "ground", Kind: Terrain, Vertices: v, Indices: idx}
	s := runScene(t, testConfig(), ground)
	if s.Footprint != nil {
		t.Error("a site without buildings has no footprint")
	}
	if s.Mobility.NumTriangles() != s.Terrain.NumTriangles() {
		t.Errorf("mobility triangles: have %d, want the %d terrain triangles",
			s.Mobility.NumTriangles(), s.Terrain.NumTriangles())
	}
	if s.Center.X != 105 || s.Center.Y != 205 {
		t.Errorf("center: have %v, want the middle of the terrain", s.Center)
	}
}

func TestRoughStrategy(t *testing.T) {
	cfg := testConfig()
	cfg.Interiors = false
	cfg.Strategy = Rough
	s := runScene(t, cfg, box(t, "bldg", 20, 10, 6, true))
	if s.Remainder != nil {
		t.Error("the rough strategy keeps no remainder")
	}
	m := s.Mobility
	if countTags(m.Tags, Outdoor) != m.NumTriangles() {
		t.Error("without interiors all mobility triangles should be outdoor")
	}
	for i := 0; i < len(m.Indices); i += 3 {
		var c r3.Vec
		for _, x := range m.Indices[i : i+3] {
			c = r3.Add(c, r3.Scale(1.0/3, m.Vertices[x]))
		}
		if c.X > -10 && c.X < 10 && c.Y > -5 && c.Y < 5 {
			t.Fatalf("triangle %d is under the building", i/3)
		}
	}
	if n, tn := m.NumTriangles(), s.Terrain.NumTriangles(); n >= tn {
		t.Errorf("mobility has %d triangles, terrain %d", n, tn)
	}
}

func TestCopyTerrain(t *testing.T) {
	cfg := testConfig()
	cfg.MobilitySource = CopyTerrain
	s := runScene(t, cfg, box(t, "bldg", 20, 10, 6, true))
	if s.Mobility.NumTriangles() != s.Terrain.NumTriangles() {
		t.Errorf("mobility triangles: have %d, want %d", s.Mobility.NumTriangles(), s.Terrain.NumTriangles())
	}
	if countTags(s.Mobility.Tags, Outdoor) != s.Mobility.NumTriangles() {
		t.Error("copied terrain should be all outdoor")
	}
}

// diagonalWall is a building whose storey outline is a single open
// segment, so its interior cannot be bounded.
func diagonalWall() *Feature {
	return &Feature{
		Name: "wall",
		Kind: Building,
		Vertices: []r3.Vec{
			{}, {X: 10, Y: 10}, {X: 10, Y: 10, Z: 6}, {Z: 6},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestInteriorValidation(t *testing.T) {
	s := runScene(t, testConfig(), diagonalWall(), box(t, "bldg", 20, 10, 6, true))
	if len(s.Exteriors) != 2 {
		t.Errorf("exteriors: have %d, want 2", len(s.Exteriors))
	}
	if len(s.Interiors) != 1 || s.Interiors[0].Name != "bldg_interior" {
		t.Errorf("only the box should have an interior, have %d interiors", len(s.Interiors))
	}

	cfg := testConfig()
	cfg.AbortOnInteriorFailure = true
	s2 := NewScene(cfg)
	s2.Log = quietLog()
	s2.InitFuncs = []SceneManipulator{AddFeatures(diagonalWall()), Normalize(nil)}
	s2.RunFuncs = Stages()
	if err := s2.Init(); err != nil {
		t.Fatal(err)
	}
	if err := s2.Run(); !errors.Is(err, ErrInteriorValidation) {
		t.Errorf("have error %v, want an interior validation error", err)
	}
}

func TestNormalizeSkipsMalformed(t *testing.T) {
	bad := &Feature{Name: "bad", Kind: Building, Vertices: []r3.Vec{{}, {X: 1}}, Indices: []uint32{0, 1, 2}}
	flat := &Feature{Name: "flat", Kind: Building, Vertices: []r3.Vec{{}, {X: 1}, {X: 2}}, Indices: []uint32{0, 1, 2}}
	s := NewScene(testConfig())
	s.Log = quietLog()
	s.InitFuncs = []SceneManipulator{AddFeatures(bad, box(t, "good", 5, 5, 3, true), flat), Normalize(nil)}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	if len(s.Features) != 1 || s.Features[0].Name != "good" {
		t.Errorf("kept features: %v", s.Features)
	}

	s2 := NewScene(testConfig())
	s2.Log = quietLog()
	s2.InitFuncs = []SceneManipulator{AddFeatures(bad, flat), Normalize(nil)}
	if err := s2.Init(); !errors.Is(err, ErrNoGeometry) {
		t.Errorf("have error %v, want ErrNoGeometry", err)
	}
}

func TestNormalizeTransform(t *testing.T) {
	tr, err := Transformer("EPSG:4326", "EPSG:32633")
	if err != nil {
		t.Fatal(err)
	}
	f := &Feature{
		Name:     "ground",
		Kind:     Terrain,
		Vertices: []r3.Vec{{X: 15, Y: 0.001, Z: 3}, {X: 15.001, Y: 0.001, Z: 3}, {X: 15, Y: 0.002, Z: 3}},
		Indices:  []uint32{0, 1, 2},
	}
	s := NewScene(testConfig())
	s.Log = quietLog()
	s.InitFuncs = []SceneManipulator{AddFeatures(f), Normalize(tr)}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	p := f.Vertices[0]
	if different(p.X, 500000, 1e-6) || math.Abs(p.Y-110.6) > 1 || p.Z != 3 {
		t.Errorf("transformed vertex: %v", p)
	}
}

func TestLog(t *testing.T) {
	s := runScene(t, testConfig(), box(t, "bldg", 20, 10, 6, true))
	buf := new(bytes.Buffer)
	if err := Log(buf)(s); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"bldg_interior", "ground_plane", "mobility_domain", "center=(10.000, 5.000)"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary is missing %q:\n%s", want, buf.String())
		}
	}
}

type countingWriter struct{ meshes int }

func (w *countingWriter) WriteScene(s *Scene) error {
	w.meshes += len(s.Meshes())
	return nil
}

func TestWrite(t *testing.T) {
	s := runScene(t, testConfig(), box(t, "bldg", 20, 10, 6, true))
	w := new(countingWriter)
	s.CleanupFuncs = []SceneManipulator{Write(w, w)}
	if err := s.Cleanup(); err != nil {
		t.Fatal(err)
	}
	// exterior, interior, terrain, mobility, remainder, footprint
	if w.meshes != 12 {
		t.Errorf("written meshes: have %d, want 12", w.meshes)
	}
}
