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

// Package kernel holds the geometry operations used by the scene pipeline.
// Every function works on plain indexed triangle buffers: a slice of
// vertices and a flat slice of triangle index triples into it.
// None of the functions keep state between calls, and all of them
// give the same output for the same input.
package kernel

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/spatial/r3"
)

// degenerateArea is the area below which a triangle is treated as
// having no area.
const degenerateArea = 1e-12

// Mesh is an indexed triangle buffer.
type Mesh struct {
	Vertices []r3.Vec
	Indices  []uint32
}

// NumTriangles returns the number of triangles in m.
func (m Mesh) NumTriangles() int { return len(m.Indices) / 3 }

// Check returns an error if idx does not describe triangles whose corners
// are all in v.
func Check(v []r3.Vec, idx []uint32) error {
	if len(idx)%3 != 0 {
		return fmt.Errorf("kernel: index count %d is not a multiple of 3", len(idx))
	}
	for i, x := range idx {
		if int(x) >= len(v) {
			return fmt.Errorf("kernel: index %d at position %d is out of range for %d vertices", x, i, len(v))
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of v. Both corners are
// the zero vector if v is empty.
func Bounds(v []r3.Vec) (lower, upper r3.Vec) {
	if len(v) == 0 {
		return
	}
	lower, upper = v[0], v[0]
	for _, p := range v[1:] {
		lower.X = math.Min(lower.X, p.X)
		lower.Y = math.Min(lower.Y, p.Y)
		lower.Z = math.Min(lower.Z, p.Z)
		upper.X = math.Max(upper.X, p.X)
		upper.Y = math.Max(upper.Y, p.Y)
		upper.Z = math.Max(upper.Z, p.Z)
	}
	return
}

// Remap replaces every index i in idx with remap[i].
func Remap(idx []uint32, remap []uint32) {
	for i, x := range idx {
		idx[i] = remap[x]
	}
}

// Gather returns a new slice holding v[lut[0]], v[lut[1]], ...
func Gather(v []r3.Vec, lut []int) []r3.Vec {
	o := make([]r3.Vec, len(lut))
	for i, j := range lut {
		o[i] = v[j]
	}
	return o
}

// GatherTags permutes a per-triangle attribute with a triangle remap
// as returned by DedupeTriangles or SliceByPlanes. It returns nil if
// tags is nil.
func GatherTags(tags []int32, lut []int) []int32 {
	if tags == nil {
		return nil
	}
	o := make([]int32, len(lut))
	for i, j := range lut {
		o[i] = tags[j]
	}
	return o
}

// Concat joins meshes into one, offsetting the indices of each mesh by
// the number of vertices that come before it.
func Concat(meshes ...Mesh) Mesh {
	var o Mesh
	for _, m := range meshes {
		offset := uint32(len(o.Vertices))
		o.Vertices = append(o.Vertices, m.Vertices...)
		for _, x := range m.Indices {
			o.Indices = append(o.Indices, x+offset)
		}
	}
	return o
}

// Translate adds offset to every vertex in v.
func Translate(v []r3.Vec, offset r3.Vec) {
	for i := range v {
		v[i] = r3.Add(v[i], offset)
	}
}

// Scale multiplies every vertex in v by s.
func Scale(v []r3.Vec, s float64) {
	for i := range v {
		v[i] = r3.Scale(s, v[i])
	}
}

func triangleArea(a, b, c r3.Vec) float64 {
	return 0.5 * r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a)))
}

// Area returns the total surface area of the triangles in idx.
func Area(v []r3.Vec, idx []uint32) float64 {
	var a float64
	for t := 0; t < len(idx)/3; t++ {
		a += triangleArea(v[idx[3*t]], v[idx[3*t+1]], v[idx[3*t+2]])
	}
	return a
}

func centroid(v []r3.Vec, poly []uint32) r3.Vec {
	var c r3.Vec
	for _, i := range poly {
		c = r3.Add(c, v[i])
	}
	return r3.Scale(1/float64(len(poly)), c)
}

func xy(p r3.Vec) geom.Point { return geom.Point{X: p.X, Y: p.Y} }

// fan triangulates the convex polygon poly and appends the result to idx.
func fan(idx []uint32, poly []uint32) []uint32 {
	for i := 1; i+1 < len(poly); i++ {
		idx = append(idx, poly[0], poly[i], poly[i+1])
	}
	return idx
}
