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

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// maxGridCells limits the number of cells in one layer of a grid.
const maxGridCells = 1 << 22

// Orientation returns the principal horizontal axes of the edges in
// edges, which are index pairs into v. origin is the length-weighted
// mean of the edge midpoints, e1 is the major axis and e2 is e1 rotated
// a quarter turn counterclockwise. If edges is empty, every vertex in v
// is used with equal weight.
func Orientation(v []r3.Vec, edges []uint32) (origin, e1, e2 r3.Vec) {
	type sample struct {
		p r3.Vec
		w float64
	}
	var samples []sample
	for i := 0; i+1 < len(edges); i += 2 {
		a, b := v[edges[i]], v[edges[i+1]]
		l := math.Hypot(b.X-a.X, b.Y-a.Y)
		if l == 0 {
			continue
		}
		samples = append(samples, sample{p: r3.Scale(0.5, r3.Add(a, b)), w: l})
	}
	if len(samples) == 0 {
		for _, p := range v {
			samples = append(samples, sample{p: p, w: 1})
		}
	}
	e1, e2 = r3.Vec{X: 1}, r3.Vec{Y: 1}
	if len(samples) == 0 {
		return
	}
	var w float64
	for _, s := range samples {
		origin.X += s.w * s.p.X
		origin.Y += s.w * s.p.Y
		w += s.w
	}
	origin.X /= w
	origin.Y /= w

	var sxx, sxy, syy float64
	for _, s := range samples {
		dx, dy := s.p.X-origin.X, s.p.Y-origin.Y
		sxx += s.w * dx * dx
		sxy += s.w * dx * dy
		syy += s.w * dy * dy
	}
	cov := mat.NewSymDense(2, []float64{sxx / w, sxy / w, sxy / w, syy / w})
	var es mat.EigenSym
	if !es.Factorize(cov, true) {
		return
	}
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	// Eigenvalues are in ascending order, so the last column is the
	// major axis.
	e1 = r3.Vec{X: vecs.At(0, 1), Y: vecs.At(1, 1)}
	if n := r3.Norm(e1); n > 0 {
		e1 = r3.Scale(1/n, e1)
	} else {
		e1 = r3.Vec{X: 1}
	}
	if e1.X < 0 || (e1.X == 0 && e1.Y < 0) {
		e1 = r3.Scale(-1, e1)
	}
	e2 = r3.Vec{X: -e1.Y, Y: e1.X}
	return
}

// Grid is a planar square lattice described in the frame of two
// horizontal axes.
type Grid struct {
	Origin r3.Vec
	E1, E2 r3.Vec

	// Min and Max are the extents of the grid along E1 and E2,
	// measured from Origin.
	Min, Max [2]float64

	// Cell is the side length of one grid cell.
	Cell float64
}

// OrientedGrid returns a grid aligned with the principal axes of edges
// (see Orientation) that covers every vertex the edges use with a margin
// of one cell on every side.
func OrientedGrid(v []r3.Vec, edges []uint32, cell float64) Grid {
	g := Grid{Cell: cell}
	g.Origin, g.E1, g.E2 = Orientation(v, edges)
	g.Min = [2]float64{math.Inf(1), math.Inf(1)}
	g.Max = [2]float64{math.Inf(-1), math.Inf(-1)}
	extend := func(p r3.Vec) {
		d := r3.Sub(p, g.Origin)
		u, w := d.X*g.E1.X+d.Y*g.E1.Y, d.X*g.E2.X+d.Y*g.E2.Y
		g.Min[0], g.Max[0] = math.Min(g.Min[0], u), math.Max(g.Max[0], u)
		g.Min[1], g.Max[1] = math.Min(g.Min[1], w), math.Max(g.Max[1], w)
	}
	if len(edges) == 0 {
		for _, p := range v {
			extend(p)
		}
	}
	for _, i := range edges {
		extend(v[i])
	}
	if math.IsInf(g.Min[0], 1) {
		g.Min, g.Max = [2]float64{}, [2]float64{}
	}
	for i := 0; i < 2; i++ {
		g.Min[i] = (math.Floor(g.Min[i]/cell) - 1) * cell
		g.Max[i] = (math.Ceil(g.Max[i]/cell) + 1) * cell
	}
	return g
}

// GridStack builds one copy of g at each height in planes. Every layer
// is triangulated with two counterclockwise triangles per cell.
func GridStack(g Grid, planes []float64) ([]r3.Vec, []uint32, error) {
	if g.Cell <= 0 {
		return nil, nil, fmt.Errorf("kernel: grid cell size must be positive, got %g", g.Cell)
	}
	nu := int(math.Round((g.Max[0] - g.Min[0]) / g.Cell))
	nw := int(math.Round((g.Max[1] - g.Min[1]) / g.Cell))
	if nu < 1 || nw < 1 {
		return nil, nil, fmt.Errorf("kernel: empty grid (%d×%d cells)", nu, nw)
	}
	if nu*nw > maxGridCells {
		return nil, nil, fmt.Errorf("kernel: grid of %d×%d cells is too large", nu, nw)
	}
	var v []r3.Vec
	var idx []uint32
	for _, z := range planes {
		base := uint32(len(v))
		for j := 0; j <= nw; j++ {
			for i := 0; i <= nu; i++ {
				u := g.Min[0] + float64(i)*g.Cell
				w := g.Min[1] + float64(j)*g.Cell
				p := r3.Add(g.Origin, r3.Add(r3.Scale(u, g.E1), r3.Scale(w, g.E2)))
				p.Z = z
				v = append(v, p)
			}
		}
		at := func(i, j int) uint32 { return base + uint32(j*(nu+1)+i) }
		for j := 0; j < nw; j++ {
			for i := 0; i < nu; i++ {
				idx = append(idx,
					at(i, j), at(i+1, j), at(i+1, j+1),
					at(i, j), at(i+1, j+1), at(i, j+1))
			}
		}
	}
	return v, idx, nil
}
