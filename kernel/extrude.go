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

	"gonum.org/v1/gonum/spatial/r3"
)

// Extrude builds a prism by lifting the polygon ring by height. ring is
// the base outline, counterclockwise seen from above, without repeating
// the first corner. The roof is always closed; the floor only if bottom
// is true. The returned surface tags are 0 for walls, 1 for the roof and
// 2 for the floor.
func Extrude(ring []r3.Vec, height float64, bottom bool) ([]r3.Vec, []uint32, []int32, error) {
	if height <= 0 {
		return nil, nil, nil, fmt.Errorf("kernel: extrusion height must be positive, got %g", height)
	}
	n := len(ring)
	roof, err := TriangulatePolygon(ring)
	if err != nil {
		return nil, nil, nil, err
	}
	v := make([]r3.Vec, 0, 2*n)
	v = append(v, ring...)
	for _, p := range ring {
		v = append(v, r3.Vec{X: p.X, Y: p.Y, Z: p.Z + height})
	}
	var idx []uint32
	var tags []int32
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		bi, bj := uint32(i), uint32(j)
		ti, tj := uint32(i+n), uint32(j+n)
		idx = append(idx, bi, bj, tj, bi, tj, ti)
		tags = append(tags, 0, 0)
	}
	for t := 0; t < len(roof); t += 3 {
		idx = append(idx, roof[t]+uint32(n), roof[t+1]+uint32(n), roof[t+2]+uint32(n))
		tags = append(tags, 1)
	}
	if bottom {
		for t := 0; t < len(roof); t += 3 {
			idx = append(idx, roof[t], roof[t+2], roof[t+1])
			tags = append(tags, 2)
		}
	}
	return v, idx, tags, nil
}

// Rectangle returns the two counterclockwise triangles of the
// axis-aligned rectangle from lower to upper at height z.
func Rectangle(lower, upper r3.Vec, z float64) ([]r3.Vec, []uint32) {
	v := []r3.Vec{
		{X: lower.X, Y: lower.Y, Z: z},
		{X: upper.X, Y: lower.Y, Z: z},
		{X: upper.X, Y: upper.Y, Z: z},
		{X: lower.X, Y: upper.Y, Z: z},
	}
	return v, []uint32{0, 1, 2, 0, 2, 3}
}
