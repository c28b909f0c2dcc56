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

package kernel

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// planeTolerance is the distance within which a vertex is treated as
// lying on a cutting plane.
const planeTolerance = 1e-9

// HalfPlane is the set of points p with N·p <= D.
type HalfPlane struct {
	N r3.Vec
	D float64
}

func (h HalfPlane) dist(p r3.Vec) float64 {
	d := r3.Dot(h.N, p) - h.D
	if math.Abs(d) < planeTolerance {
		return 0
	}
	return d
}

func (h HalfPlane) horizontal() bool {
	return h.N.X == 0 && h.N.Y == 0 && h.N.Z != 0
}

type crossKey struct {
	a, b  uint32
	plane int
}

// splitter cuts convex polygons with planes, sharing the new vertices
// it creates between polygons that have a common edge.
type splitter struct {
	v     []r3.Vec
	cache map[crossKey]uint32
}

func newSplitter(v []r3.Vec) *splitter {
	return &splitter{
		v:     append([]r3.Vec(nil), v...),
		cache: make(map[crossKey]uint32),
	}
}

// cross returns the vertex where edge a-b meets plane k.
func (s *splitter) cross(a, b uint32, da, db float64, k int, h HalfPlane) uint32 {
	if a > b {
		a, b = b, a
		da, db = db, da
	}
	key := crossKey{a: a, b: b, plane: k}
	if i, ok := s.cache[key]; ok {
		return i
	}
	t := da / (da - db)
	p := r3.Add(s.v[a], r3.Scale(t, r3.Sub(s.v[b], s.v[a])))
	if h.horizontal() {
		p.Z = h.D / h.N.Z
	}
	s.v = append(s.v, p)
	i := uint32(len(s.v) - 1)
	s.cache[key] = i
	return i
}

// split divides the convex polygon poly with plane k. below holds the
// part with N·p <= D and above the part with N·p >= D; either has fewer
// than three vertices if the polygon does not reach that side. on holds
// the vertices of poly that lie on the plane, in order, including new ones.
func (s *splitter) split(poly []uint32, k int, h HalfPlane) (below, above, on []uint32) {
	n := len(poly)
	d := make([]float64, n)
	allOn := true
	for i, p := range poly {
		d[i] = h.dist(s.v[p])
		if d[i] != 0 {
			allOn = false
		}
	}
	if allOn {
		return nil, poly, nil
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a := poly[i]
		switch {
		case d[i] < 0:
			below = append(below, a)
		case d[i] > 0:
			above = append(above, a)
		default:
			below = append(below, a)
			above = append(above, a)
			on = append(on, a)
		}
		if (d[i] < 0 && d[j] > 0) || (d[i] > 0 && d[j] < 0) {
			x := s.cross(a, poly[j], d[i], d[j], k, h)
			below = append(below, x)
			above = append(above, x)
			on = append(on, x)
		}
	}
	return below, above, on
}

// SliceByPlanes cuts a mesh with the horizontal planes z = zs[k].
// It returns the new vertex buffer (the input vertices followed by the
// new vertices created on the planes), the new triangles, the edges
// where the mesh meets each plane as index pairs into the new vertex
// buffer, and for every output triangle the input triangle it came
// from.
func SliceByPlanes(v []r3.Vec, idx []uint32, zs []float64) (vOut []r3.Vec, idxOut []uint32, rings []uint32, parent []int) {
	zs = append([]float64(nil), zs...)
	sort.Float64s(zs)
	s := newSplitter(v)
	seen := make(map[[2]uint32]struct{})
	addRing := func(on []uint32) {
		if len(on) != 2 || on[0] == on[1] {
			return
		}
		k := [2]uint32{on[0], on[1]}
		if k[0] > k[1] {
			k[0], k[1] = k[1], k[0]
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		rings = append(rings, on[0], on[1])
	}
	for t := 0; t < len(idx)/3; t++ {
		poly := []uint32{idx[3*t], idx[3*t+1], idx[3*t+2]}
		for k, z := range zs {
			below, above, on := s.split(poly, k, HalfPlane{N: r3.Vec{Z: 1}, D: z})
			addRing(on)
			if len(above) < 3 {
				// Nothing reaches the higher planes.
				break
			}
			if len(below) >= 3 {
				n := len(idxOut)
				idxOut = fan(idxOut, below)
				for i := n; i < len(idxOut); i += 3 {
					parent = append(parent, t)
				}
			}
			poly = above
		}
		n := len(idxOut)
		idxOut = fan(idxOut, poly)
		for i := n; i < len(idxOut); i += 3 {
			parent = append(parent, t)
		}
	}
	return s.v, idxOut, rings, parent
}

// Clip keeps the parts of a mesh that lie inside every half-plane.
// It returns the new vertex buffer, the clipped triangles, and for every
// output triangle the input triangle it came from.
func Clip(v []r3.Vec, idx []uint32, planes []HalfPlane) (vOut []r3.Vec, idxOut []uint32, parent []int) {
	s := newSplitter(v)
	for t := 0; t < len(idx)/3; t++ {
		poly := []uint32{idx[3*t], idx[3*t+1], idx[3*t+2]}
		for k, h := range planes {
			below, _, _ := s.split(poly, k, h)
			poly = below
			if len(poly) < 3 {
				break
			}
		}
		if len(poly) < 3 {
			continue
		}
		n := len(idxOut)
		idxOut = fan(idxOut, poly)
		for i := n; i < len(idxOut); i += 3 {
			parent = append(parent, t)
		}
	}
	return s.v, idxOut, parent
}
