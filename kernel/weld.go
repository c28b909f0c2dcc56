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
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// indexedPoint is a vertex position stored in a spatial index.
type indexedPoint struct {
	geom.Point
	i int
}

// Weld merges vertices that are within eps of each other. remap[i] is
// the index of the surviving vertex for input vertex i. The first vertex
// of a cluster, in input order, is the survivor, and survivors are always
// more than eps apart, so welding an already welded buffer returns the
// identity.
func Weld(v []r3.Vec, eps float64) []uint32 {
	remap := make([]uint32, len(v))
	tree := rtree.NewTree(25, 50)
	for i, p := range v {
		rep := -1
		for _, g := range tree.SearchIntersect(rtree.ToRect(xy(p), eps)) {
			c := g.(*indexedPoint)
			if r3.Norm(r3.Sub(v[c.i], p)) <= eps && (rep < 0 || c.i < rep) {
				rep = c.i
			}
		}
		if rep < 0 {
			rep = i
			tree.Insert(&indexedPoint{Point: xy(p), i: i})
		}
		remap[i] = uint32(rep)
	}
	return remap
}

// DedupeTriangles removes triangles that repeat a corner, have no area,
// or cover the same three vertices as an earlier triangle. triRemap[j]
// is the input triangle that output triangle j came from.
func DedupeTriangles(v []r3.Vec, idx []uint32) (out []uint32, triRemap []int) {
	out = make([]uint32, 0, len(idx))
	seen := make(map[[3]uint32]struct{}, len(idx)/3)
	for t := 0; t < len(idx)/3; t++ {
		a, b, c := idx[3*t], idx[3*t+1], idx[3*t+2]
		if a == b || b == c || a == c {
			continue
		}
		if triangleArea(v[a], v[b], v[c]) <= degenerateArea {
			continue
		}
		k := [3]uint32{a, b, c}
		sort.Slice(k[:], func(i, j int) bool { return k[i] < k[j] })
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a, b, c)
		triRemap = append(triRemap, t)
	}
	return out, triRemap
}

// Compact renumbers idx in place so that it only refers to the vertices
// it uses, keeping their relative order. n is the number of vertices idx
// currently refers into. The returned lookup table gives, for every new
// vertex index, the old one.
func Compact(idx []uint32, n int) []int {
	used := make([]bool, n)
	for _, x := range idx {
		used[x] = true
	}
	newIndex := make([]int, n)
	var lut []int
	for i, u := range used {
		if u {
			newIndex[i] = len(lut)
			lut = append(lut, i)
		}
	}
	for i, x := range idx {
		idx[i] = uint32(newIndex[x])
	}
	return lut
}

// Cleanup welds, dedupes and compacts a mesh. tags, if not nil, holds one
// entry per triangle and is permuted along with the triangles. The input
// slices are not modified.
func Cleanup(v []r3.Vec, idx []uint32, tags []int32, eps float64) ([]r3.Vec, []uint32, []int32) {
	idx = append([]uint32(nil), idx...)
	Remap(idx, Weld(v, eps))
	idx, tri := DedupeTriangles(v, idx)
	tags = GatherTags(tags, tri)
	lut := Compact(idx, len(v))
	return Gather(v, lut), idx, tags
}
