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
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"gonum.org/v1/gonum/spatial/r3"
)

// segment is a cutting edge stored in a spatial index.
type segment struct {
	geom.LineString
	a, b r3.Vec
	id   int
}

// line returns the vertical plane through s. Points to the left of
// s, looking from a to b, are on its negative side.
func (s *segment) line() HalfPlane {
	n := r3.Vec{X: s.b.Y - s.a.Y, Y: -(s.b.X - s.a.X)}
	n = r3.Scale(1/r3.Norm(n), n)
	return HalfPlane{N: n, D: r3.Dot(n, s.a)}
}

// matches reports whether s is used for geometry at height z.
func (s *segment) matches(z, zTol float64) bool {
	return zTol <= 0 || math.Abs(s.a.Z-z) <= zTol
}

// segmentIndex is a set of cutting edges.
type segmentIndex struct {
	tree *rtree.Rtree
	maxX float64
}

func newSegmentIndex(v []r3.Vec, cuts []uint32) (*segmentIndex, error) {
	if len(cuts)%2 != 0 {
		return nil, fmt.Errorf("kernel: cut index count %d is not even", len(cuts))
	}
	si := &segmentIndex{tree: rtree.NewTree(25, 50), maxX: math.Inf(-1)}
	for i := 0; i < len(cuts); i += 2 {
		if int(cuts[i]) >= len(v) || int(cuts[i+1]) >= len(v) {
			return nil, fmt.Errorf("kernel: cut %d refers past the end of %d vertices", i/2, len(v))
		}
		a, b := v[cuts[i]], v[cuts[i+1]]
		if math.Hypot(b.X-a.X, b.Y-a.Y) < planeTolerance {
			continue
		}
		si.tree.Insert(&segment{
			LineString: geom.LineString{xy(a), xy(b)},
			a:          a,
			b:          b,
			id:         i / 2,
		})
		si.maxX = math.Max(si.maxX, math.Max(a.X, b.X))
	}
	return si, nil
}

// search returns the segments whose bounds overlap b, in input order.
func (si *segmentIndex) search(b *geom.Bounds) []*segment {
	var o []*segment
	for _, g := range si.tree.SearchIntersect(b) {
		o = append(o, g.(*segment))
	}
	sort.Slice(o, func(i, j int) bool { return o[i].id < o[j].id })
	return o
}

// inside reports whether p is enclosed by the segments at its height,
// counting how many of them a ray from p in the +X direction crosses.
func (si *segmentIndex) inside(p r3.Vec, zTol float64) bool {
	if math.IsInf(si.maxX, -1) || p.X > si.maxX {
		return false
	}
	ray := &geom.Bounds{Min: xy(p), Max: geom.Point{X: si.maxX + 1, Y: p.Y}}
	crossings := 0
	for _, s := range si.search(ray) {
		if !s.matches(p.Z, zTol) {
			continue
		}
		a, b := s.a, s.b
		if (a.Y > p.Y) == (b.Y > p.Y) {
			continue
		}
		x := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
		if p.X < x {
			crossings++
		}
	}
	return crossings%2 == 1
}

// crosses reports whether segment s passes through the interior of the
// convex polygon poly.
func crosses(v []r3.Vec, poly []uint32, s *segment, h HalfPlane) bool {
	var neg, pos bool
	d := make([]float64, len(poly))
	for i, p := range poly {
		d[i] = h.dist(v[p])
		neg = neg || d[i] < 0
		pos = pos || d[i] > 0
	}
	if !neg || !pos {
		return false
	}
	// Find where the line enters and leaves the polygon, measured along
	// the segment, and check that part overlaps the segment.
	dir := r3.Vec{X: s.b.X - s.a.X, Y: s.b.Y - s.a.Y}
	length := r3.Norm(dir)
	dir = r3.Scale(1/length, dir)
	tMin, tMax := math.Inf(1), math.Inf(-1)
	for i := range poly {
		j := (i + 1) % len(poly)
		if (d[i] < 0 && d[j] < 0) || (d[i] > 0 && d[j] > 0) {
			continue
		}
		pi, pj := v[poly[i]], v[poly[j]]
		var x r3.Vec
		if d[i] == d[j] {
			x = pi
		} else {
			f := d[i] / (d[i] - d[j])
			x = r3.Add(pi, r3.Scale(f, r3.Sub(pj, pi)))
		}
		t := (x.X-s.a.X)*dir.X + (x.Y-s.a.Y)*dir.Y
		tMin, tMax = math.Min(tMin, t), math.Max(tMax, t)
	}
	return tMax > planeTolerance && tMin < length-planeTolerance
}

// CutByLines splits the triangles of a mesh along the edges in cuts,
// which are index pairs into v, and sorts the pieces into those outside
// and those inside the regions the edges enclose. Cutting and sorting
// happen in the XY plane. If zTol is positive, a triangle is only cut
// and sorted by the edges within zTol of its mean height, so stacked
// layers can be cut by their own outlines in one call. The returned
// vertex buffer holds v followed by the vertices created by cutting.
func CutByLines(v []r3.Vec, idx []uint32, cuts []uint32, zTol float64) (vOut []r3.Vec, outside, inside []uint32, err error) {
	if err := Check(v, idx); err != nil {
		return nil, nil, nil, err
	}
	si, err := newSegmentIndex(v, cuts)
	if err != nil {
		return nil, nil, nil, err
	}
	s := newSplitter(v)
	for t := 0; t < len(idx)/3; t++ {
		tri := []uint32{idx[3*t], idx[3*t+1], idx[3*t+2]}
		z := centroid(s.v, tri).Z
		b := geom.NewBounds()
		for _, p := range tri {
			b.Extend(xy(s.v[p]).Bounds())
		}
		pieces := [][]uint32{tri}
		for _, seg := range si.search(b) {
			if !seg.matches(z, zTol) {
				continue
			}
			h := seg.line()
			var next [][]uint32
			for _, piece := range pieces {
				if !crosses(s.v, piece, seg, h) {
					next = append(next, piece)
					continue
				}
				below, above, _ := s.split(piece, seg.id, h)
				if len(below) >= 3 {
					next = append(next, below)
				}
				if len(above) >= 3 {
					next = append(next, above)
				}
			}
			pieces = next
		}
		for _, piece := range pieces {
			if si.inside(centroid(s.v, piece), zTol) {
				inside = fan(inside, piece)
			} else {
				outside = fan(outside, piece)
			}
		}
	}
	return s.v, outside, inside, nil
}

// ExtractEdges returns the edges that belong to exactly one triangle, as
// index pairs oriented the way their triangle lists them. For a welded
// mesh these are its boundary edges.
func ExtractEdges(idx []uint32) []uint32 {
	count := make(map[[2]uint32]int)
	key := func(a, b uint32) [2]uint32 {
		if a > b {
			a, b = b, a
		}
		return [2]uint32{a, b}
	}
	for t := 0; t < len(idx)/3; t++ {
		for e := 0; e < 3; e++ {
			count[key(idx[3*t+e], idx[3*t+(e+1)%3])]++
		}
	}
	var edges []uint32
	for t := 0; t < len(idx)/3; t++ {
		for e := 0; e < 3; e++ {
			a, b := idx[3*t+e], idx[3*t+(e+1)%3]
			if count[key(a, b)] == 1 {
				edges = append(edges, a, b)
			}
		}
	}
	return edges
}

// ExtractFootprint returns the triangles of a mesh whose three corners
// are all at or below zMax, as a triangle soup with its own vertices.
// Both results are empty if no triangle qualifies.
func ExtractFootprint(v []r3.Vec, idx []uint32, zMax float64) ([]r3.Vec, []uint32) {
	var fv []r3.Vec
	var fidx []uint32
	for t := 0; t < len(idx)/3; t++ {
		a, b, c := v[idx[3*t]], v[idx[3*t+1]], v[idx[3*t+2]]
		if a.Z > zMax || b.Z > zMax || c.Z > zMax {
			continue
		}
		n := uint32(len(fv))
		fv = append(fv, a, b, c)
		fidx = append(fidx, n, n+1, n+2)
	}
	return fv, fidx
}

// footprintTriangle is a footprint triangle stored in a spatial index.
type footprintTriangle struct {
	geom.Polygon
}

// footprintIndex answers whether a point is covered by a footprint.
type footprintIndex struct {
	tree *rtree.Rtree
}

func newFootprintIndex(fv []r3.Vec, fidx []uint32) *footprintIndex {
	tree := rtree.NewTree(25, 50)
	for t := 0; t < len(fidx)/3; t++ {
		tree.Insert(&footprintTriangle{geom.Polygon{{
			xy(fv[fidx[3*t]]), xy(fv[fidx[3*t+1]]), xy(fv[fidx[3*t+2]]),
		}}})
	}
	return &footprintIndex{tree: tree}
}

// covers reports whether the XY position of p is within or on the edge
// of any footprint triangle.
func (fi *footprintIndex) covers(p r3.Vec) bool {
	c := xy(p)
	for _, g := range fi.tree.SearchIntersect(c.Bounds()) {
		if c.Within(g.(*footprintTriangle).Polygon) != geom.Outside {
			return true
		}
	}
	return false
}

// SortByFootprints sorts the triangles of the mesh (v, idx) into those
// whose XY centroid is not covered by any triangle of the footprint mesh
// (fv, fidx) and those whose centroid is. Overlapping footprints cover
// their union.
func SortByFootprints(v []r3.Vec, idx []uint32, fv []r3.Vec, fidx []uint32) (outside, inside []uint32, err error) {
	if err := Check(v, idx); err != nil {
		return nil, nil, err
	}
	if err := Check(fv, fidx); err != nil {
		return nil, nil, fmt.Errorf("kernel: footprint: %v", err)
	}
	fi := newFootprintIndex(fv, fidx)
	for t := 0; t < len(idx)/3; t++ {
		tri := idx[3*t : 3*t+3]
		if fi.covers(centroid(v, tri)) {
			inside = append(inside, tri...)
		} else {
			outside = append(outside, tri...)
		}
	}
	return outside, inside, nil
}

// CutByFootprints returns the triangles of the mesh (v, idx) whose XY
// centroid is not covered by any triangle of the footprint mesh
// (fv, fidx). Triangles are kept or dropped whole.
func CutByFootprints(v []r3.Vec, idx []uint32, fv []r3.Vec, fidx []uint32) ([]uint32, error) {
	outside, _, err := SortByFootprints(v, idx, fv, fidx)
	return outside, err
}
