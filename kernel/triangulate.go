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

	"gonum.org/v1/gonum/spatial/r3"
)

// TriangulatePolygon triangulates a simple planar polygon by ear
// clipping. ring holds the corners in order, without repeating the first
// one at the end. The returned index triples point into ring and keep
// its winding.
func TriangulatePolygon(ring []r3.Vec) ([]uint32, error) {
	if len(ring) < 3 {
		return nil, fmt.Errorf("kernel: polygon has %d corners", len(ring))
	}
	// Newell's method gives the plane normal of a possibly non-convex ring.
	var n r3.Vec
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		n.X += (p.Y - q.Y) * (p.Z + q.Z)
		n.Y += (p.Z - q.Z) * (p.X + q.X)
		n.Z += (p.X - q.X) * (p.Y + q.Y)
	}
	if r3.Norm(n) == 0 {
		return nil, fmt.Errorf("kernel: polygon has no area")
	}
	// Project onto the coordinate plane the polygon is most parallel to,
	// oriented so that the polygon is counterclockwise there.
	project := func(p r3.Vec) (float64, float64) { return p.X, p.Y }
	switch ax, ay, az := math.Abs(n.X), math.Abs(n.Y), math.Abs(n.Z); {
	case ax >= ay && ax >= az:
		s := math.Copysign(1, n.X)
		project = func(p r3.Vec) (float64, float64) { return p.Y * s, p.Z }
	case ay >= az:
		s := math.Copysign(1, n.Y)
		project = func(p r3.Vec) (float64, float64) { return p.Z * s, p.X }
	default:
		s := math.Copysign(1, n.Z)
		project = func(p r3.Vec) (float64, float64) { return p.X * s, p.Y }
	}
	px := make([]float64, len(ring))
	py := make([]float64, len(ring))
	for i, p := range ring {
		px[i], py[i] = project(p)
	}
	cross := func(a, b, c int) float64 {
		return (px[b]-px[a])*(py[c]-py[a]) - (py[b]-py[a])*(px[c]-px[a])
	}

	work := make([]int, len(ring))
	for i := range work {
		work[i] = i
	}
	var idx []uint32
	for len(work) > 3 {
		ear := -1
		for i := range work {
			a, b, c := work[(i+len(work)-1)%len(work)], work[i], work[(i+1)%len(work)]
			if cross(a, b, c) <= 0 {
				continue
			}
			clear := true
			for _, p := range work {
				if p == a || p == b || p == c {
					continue
				}
				if cross(a, b, p) >= 0 && cross(b, c, p) >= 0 && cross(c, a, p) >= 0 {
					clear = false
					break
				}
			}
			if clear {
				ear = i
				break
			}
		}
		if ear < 0 {
			// Self-intersecting or degenerate remainder.
			for i := 1; i+1 < len(work); i++ {
				idx = append(idx, uint32(work[0]), uint32(work[i]), uint32(work[i+1]))
			}
			return idx, nil
		}
		a, b, c := work[(ear+len(work)-1)%len(work)], work[ear], work[(ear+1)%len(work)]
		idx = append(idx, uint32(a), uint32(b), uint32(c))
		work = append(work[:ear], work[ear+1:]...)
	}
	idx = append(idx, uint32(work[0]), uint32(work[1]), uint32(work[2]))
	return idx, nil
}
