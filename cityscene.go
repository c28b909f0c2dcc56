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

// Package cityscene converts parsed 3D city-model geometry into a
// simulation-ready scene: cleaned building shells sliced into storeys,
// walkable interior floors, ground terrain, and a mobility domain mesh
// that marks where simulated agents may move.
//
// A conversion is a Scene whose InitFuncs load and normalize the input
// features and whose RunFuncs run the pipeline stages in order. The
// CleanupFuncs hand the finished scene to writers.
package cityscene

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene/kernel"
)

// Version gives the version number.
const Version = "1.0.0"

var (
	// ErrNoGeometry is returned when a run has nothing left to convert.
	ErrNoGeometry = errors.New("no usable geometry")

	// ErrInteriorValidation marks an interior floor mesh that extends
	// past the bounds of its building.
	ErrInteriorValidation = errors.New("interior mesh outside building bounds")
)

// Kind is the type of a city object.
type Kind int

// Kinds of city objects.
const (
	Building Kind = iota
	Terrain
)

func (k Kind) String() string {
	switch k {
	case Building:
		return "Building"
	case Terrain:
		return "Terrain"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Feature is one parsed city object.
type Feature struct {
	Name string
	Kind Kind

	Vertices []r3.Vec
	Indices  []uint32

	// SurfaceTag optionally holds one value per triangle.
	SurfaceTag []int32

	// Lower and Upper are the corners of the bounding box, set by
	// UpdateBounds.
	Lower, Upper r3.Vec
}

// Check returns an error if the triangles of f do not fit its vertices
// or its tags do not fit its triangles.
func (f *Feature) Check() error {
	if err := kernel.Check(f.Vertices, f.Indices); err != nil {
		return err
	}
	if f.SurfaceTag != nil && len(f.SurfaceTag) != len(f.Indices)/3 {
		return fmt.Errorf("%d surface tags for %d triangles", len(f.SurfaceTag), len(f.Indices)/3)
	}
	return nil
}

// UpdateBounds recomputes Lower and Upper.
func (f *Feature) UpdateBounds() {
	f.Lower, f.Upper = kernel.Bounds(f.Vertices)
}

// ObjectType is the role of a mesh in the scene.
type ObjectType string

// Mesh roles.
const (
	ObjectBuilding  ObjectType = "building"
	ObjectInterior  ObjectType = "buildingInterior"
	ObjectTerrain   ObjectType = "terrain"
	ObjectMobility  ObjectType = "mobilityDomain"
	ObjectRemainder ObjectType = "mobilityRemainder"
	ObjectFootprint ObjectType = "footprint"
)

// Mobility types of the triangles in the mobility domain.
const (
	Outdoor int32 = 0
	Indoor  int32 = 1
)

// Mesh is a named output triangle buffer.
type Mesh struct {
	Name       string
	ObjectType ObjectType
	Vertices   []r3.Vec
	Indices    []uint32

	// Tags holds one value per triangle: the surface tag for building
	// shells and the mobility type for the mobility domain. It may be
	// nil.
	Tags []int32
}

// NumTriangles returns the number of triangles in m.
func (m *Mesh) NumTriangles() int { return len(m.Indices) / 3 }

func (m *Mesh) buffer() kernel.Mesh {
	return kernel.Mesh{Vertices: m.Vertices, Indices: m.Indices}
}

// SceneManipulator is a function that operates on a Scene.
type SceneManipulator func(s *Scene) error

// Scene holds the state of one conversion run.
type Scene struct {
	Config   Config
	Metadata Metadata

	// Log receives progress and warnings. The standard logrus logger is
	// used if it is nil.
	Log logrus.FieldLogger

	// Features are the input city objects. Stages normalize them in
	// place.
	Features []*Feature

	Exteriors []*Mesh
	Interiors []*Mesh
	Footprint *Mesh
	Terrain   *Mesh
	Mobility  *Mesh

	// Remainder is the part of the terrain covered by building
	// footprints. Only the precise cutting strategy produces it.
	Remainder *Mesh

	// Center is the point subtracted from every vertex during assembly,
	// and ZOffset the global height subtracted when the scene has no
	// terrain of its own.
	Center  r3.Vec
	ZOffset float64

	// Scale is the factor every vertex has been multiplied by.
	Scale float64

	InitFuncs, RunFuncs, CleanupFuncs []SceneManipulator

	buildings    []*building
	hasBuildings bool
	flatTerrain  bool

	// lower and upper bound all buildings.
	lower, upper r3.Vec
}

// building carries the per-building results from one stage to the next.
type building struct {
	feature  *Feature
	exterior *Mesh

	// planes are the slice heights and rings the edges where the shell
	// meets them, as index pairs into exterior.Vertices.
	planes []float64
	rings  []uint32
}

// NewScene returns a Scene that uses cfg and the default scenario
// metadata.
func NewScene(cfg Config) *Scene {
	return &Scene{
		Config:   cfg,
		Metadata: DefaultMetadata(cfg.Centimeters),
		Scale:    1,
	}
}

func (s *Scene) run(funcs []SceneManipulator) error {
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	if s.Scale == 0 {
		s.Scale = 1
	}
	for _, f := range funcs {
		if err := f(s); err != nil {
			return err
		}
	}
	return nil
}

// Init runs the InitFuncs.
func (s *Scene) Init() error { return s.run(s.InitFuncs) }

// Run runs the RunFuncs.
func (s *Scene) Run() error { return s.run(s.RunFuncs) }

// Cleanup runs the CleanupFuncs.
func (s *Scene) Cleanup() error { return s.run(s.CleanupFuncs) }

// Meshes returns every output mesh of the scene in the order writers
// emit them.
func (s *Scene) Meshes() []*Mesh {
	var o []*Mesh
	o = append(o, s.Exteriors...)
	o = append(o, s.Interiors...)
	for _, m := range []*Mesh{s.Terrain, s.Mobility, s.Remainder, s.Footprint} {
		if m != nil {
			o = append(o, m)
		}
	}
	return o
}

// Rescale multiplies every vertex of every output mesh by f.
func (s *Scene) Rescale(f float64) {
	for _, m := range s.Meshes() {
		kernel.Scale(m.Vertices, f)
	}
	s.Scale *= f
}

// index records the buildings and their joint bounds.
func (s *Scene) index() {
	s.buildings = nil
	s.hasBuildings = false
	for _, f := range s.Features {
		if f.Kind != Building {
			continue
		}
		s.buildings = append(s.buildings, &building{feature: f})
		if !s.hasBuildings {
			s.lower, s.upper = f.Lower, f.Upper
			s.hasBuildings = true
			continue
		}
		s.lower, s.upper = extend(s.lower, s.upper, f.Lower, f.Upper)
	}
}

func extend(lower, upper, l2, u2 r3.Vec) (r3.Vec, r3.Vec) {
	lo, _ := kernel.Bounds([]r3.Vec{lower, l2})
	_, hi := kernel.Bounds([]r3.Vec{upper, u2})
	return lo, hi
}
