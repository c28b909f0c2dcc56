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

// maxTessellatePasses bounds the number of refinement passes.
const maxTessellatePasses = 48

// Tessellate refines a mesh until no triangle edge is longer than
// maxEdge. Each pass splits every long edge at its midpoint and
// re-triangulates the triangles that touch a split edge, so the result
// stays conforming. The input slices are not modified.
func Tessellate(v []r3.Vec, idx []uint32, maxEdge float64) ([]r3.Vec, []uint32, error) {
	if maxEdge <= 0 {
		return nil, nil, fmt.Errorf("kernel: maximum edge length must be positive, got %g", maxEdge)
	}
	if err := Check(v, idx); err != nil {
		return nil, nil, err
	}
	v = append([]r3.Vec(nil), v...)
	idx = append([]uint32(nil), idx...)

	for pass := 0; pass < maxTessellatePasses; pass++ {
		mids := make(map[[2]uint32]uint32)
		key := func(a, b uint32) [2]uint32 {
			if a > b {
				a, b = b, a
			}
			return [2]uint32{a, b}
		}
		for t := 0; t < len(idx)/3; t++ {
			for e := 0; e < 3; e++ {
				a, b := idx[3*t+e], idx[3*t+(e+1)%3]
				k := key(a, b)
				if _, ok := mids[k]; ok {
					continue
				}
				if r3.Norm(r3.Sub(v[a], v[b])) > maxEdge {
					v = append(v, r3.Scale(0.5, r3.Add(v[k[0]], v[k[1]])))
					mids[k] = uint32(len(v) - 1)
				}
			}
		}
		if len(mids) == 0 {
			return v, idx, nil
		}
		next := make([]uint32, 0, 2*len(idx))
		for t := 0; t < len(idx)/3; t++ {
			p := [3]uint32{idx[3*t], idx[3*t+1], idx[3*t+2]}
			var m [3]uint32
			var split [3]bool
			n := 0
			for e := 0; e < 3; e++ {
				m[e], split[e] = mids[key(p[e], p[(e+1)%3])]
				if split[e] {
					n++
				}
			}
			// Rotate the corners so that the pattern of split edges
			// starts at edge 0 (p0-p1).
			rot := 0
			switch n {
			case 1:
				for !split[rot] {
					rot++
				}
			case 2:
				for split[(rot+2)%3] {
					rot++
				}
			}
			p = [3]uint32{p[rot], p[(rot+1)%3], p[(rot+2)%3]}
			m = [3]uint32{m[rot], m[(rot+1)%3], m[(rot+2)%3]}
			switch n {
			case 0:
				next = append(next, p[0], p[1], p[2])
			case 1:
				next = append(next,
					p[0], m[0], p[2],
					m[0], p[1], p[2])
			case 2:
				next = append(next,
					m[0], p[1], m[1],
					p[0], m[0], m[1],
					p[0], m[1], p[2])
			case 3:
				next = append(next,
					p[0], m[0], m[2],
					m[0], p[1], m[1],
					m[2], m[1], p[2],
					m[0], m[1], m[2])
			}
		}
		idx = next
	}
	return v, idx, nil
}
