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

	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// levelTolerance is how far a vertex may be from a floor height and
// still belong to that floor.
const levelTolerance = 1e-6

// floorIndex holds the vertices of one floor.
type floorIndex struct {
	tree *rtree.Rtree
	n    int
}

// nearest returns the vertex of the floor closest to p in XY, or -1 if
// the floor is empty. Ties go to the lower index.
func (f *floorIndex) nearest(v []r3.Vec, p r3.Vec, r float64) int {
	if f.n == 0 {
		return -1
	}
	for {
		best, bestD := -1, math.Inf(1)
		for _, g := range f.tree.SearchIntersect(rtree.ToRect(xy(p), r)) {
			c := g.(*indexedPoint)
			d := math.Hypot(v[c.i].X-p.X, v[c.i].Y-p.Y)
			if d < bestD || (d == bestD && c.i < best) {
				best, bestD = c.i, d
			}
		}
		// A hit is only certain to be the nearest if it is within the
		// search radius; a point in the corner of the square may not be.
		if best >= 0 && bestD <= r {
			return best
		}
		r *= 2
	}
}

// AddStaircase connects each pair of consecutive floors of a stacked
// floor mesh with a ramp of two triangles. A floor is the set of
// vertices within a small tolerance of one of the heights in planes.
// The ramp starts at the floor edge of the lower floor whose corners,
// moved inward by one storey height, land closest to vertices of the
// upper floor. It returns idx with the ramp triangles appended; pairs
// of floors that cannot be connected are left as they are.
func AddStaircase(v []r3.Vec, idx []uint32, planes []float64) []uint32 {
	out := append([]uint32(nil), idx...)
	if len(planes) < 2 {
		return out
	}
	level := func(z float64) int {
		for k, p := range planes {
			if math.Abs(z-p) <= levelTolerance {
				return k
			}
		}
		return -1
	}
	floors := make([]floorIndex, len(planes))
	for k := range floors {
		floors[k].tree = rtree.NewTree(25, 50)
	}
	for i, p := range v {
		if k := level(p.Z); k >= 0 {
			floors[k].tree.Insert(&indexedPoint{Point: xy(p), i: i})
			floors[k].n++
		}
	}
	// Triangles lying on each floor.
	floorTris := make([][]int, len(planes))
	for t := 0; t < len(idx)/3; t++ {
		k := level(v[idx[3*t]].Z)
		if k >= 0 && level(v[idx[3*t+1]].Z) == k && level(v[idx[3*t+2]].Z) == k {
			floorTris[k] = append(floorTris[k], t)
		}
	}

	for k := 0; k+1 < len(planes); k++ {
		rise := planes[k+1] - planes[k]
		upper := &floors[k+1]
		found := false
		var bestScore float64
		var quad [4]uint32
		for _, t := range floorTris[k] {
			tri := idx[3*t : 3*t+3]
			c := centroid(v, tri)
			for e := 0; e < 3; e++ {
				a, b := tri[e], tri[(e+1)%3]
				dir := r3.Vec{X: v[b].X - v[a].X, Y: v[b].Y - v[a].Y}
				l := r3.Norm(dir)
				if l == 0 {
					continue
				}
				u := r3.Vec{X: -dir.Y / l, Y: dir.X / l}
				mid := r3.Scale(0.5, r3.Add(v[a], v[b]))
				if (c.X-mid.X)*u.X+(c.Y-mid.Y)*u.Y < 0 {
					u = r3.Scale(-1, u)
				}
				ta := r3.Add(v[a], r3.Scale(rise, u))
				tb := r3.Add(v[b], r3.Scale(rise, u))
				ci := upper.nearest(v, ta, rise)
				di := upper.nearest(v, tb, rise)
				if ci < 0 || di < 0 || ci == di {
					continue
				}
				score := math.Hypot(v[ci].X-ta.X, v[ci].Y-ta.Y) + math.Hypot(v[di].X-tb.X, v[di].Y-tb.Y)
				if !found || score < bestScore {
					found = true
					bestScore = score
					quad = [4]uint32{a, b, uint32(di), uint32(ci)}
				}
			}
		}
		if found {
			out = append(out, quad[0], quad[1], quad[2], quad[0], quad[2], quad[3])
		}
	}
	return out
}
