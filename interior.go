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

package cityscene

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene/kernel"
)

// layerTolerance is the height difference within which a storey outline
// belongs to a floor layer.
const layerTolerance = 1e-6

// Interiors returns a function that builds walkable floors inside every
// sliced building: a grid aligned with the building is stacked at the
// storey heights, cut along the storey outlines, and the parts inside
// the outlines are kept and joined by staircases. A building whose
// interior cannot be built keeps its exterior and gets no interior,
// unless Config.AbortOnInteriorFailure is set. Buildings are handled
// one at a time in input order.
func Interiors() SceneManipulator {
	return func(s *Scene) error {
		s.Interiors = s.Interiors[:0]
		if !s.Config.Interiors {
			return nil
		}
		for _, b := range s.buildings {
			if len(b.planes) == 0 || len(b.rings) == 0 {
				continue
			}
			m, err := s.interior(b)
			if err != nil {
				if s.Config.AbortOnInteriorFailure {
					return fmt.Errorf("cityscene: interior of %s: %w", b.feature.Name, err)
				}
				s.Log.WithField("feature", b.feature.Name).
					Warnf("interior generation failed for %s: %v", b.feature.Name, err)
				continue
			}
			s.Interiors = append(s.Interiors, m)
		}
		s.Log.WithField("interiors", len(s.Interiors)).Info("built interiors")
		return nil
	}
}

func (s *Scene) interior(b *building) (*Mesh, error) {
	ext := b.exterior
	g := kernel.OrientedGrid(ext.Vertices, b.rings, s.Config.GridSpacing)
	gv, gidx, err := kernel.GridStack(g, b.planes)
	if err != nil {
		return nil, err
	}
	all := kernel.Concat(
		kernel.Mesh{Vertices: gv, Indices: gidx},
		kernel.Mesh{Vertices: ext.Vertices},
	)
	cuts := make([]uint32, len(b.rings))
	for i, x := range b.rings {
		cuts[i] = x + uint32(len(gv))
	}
	v, _, inside, err := kernel.CutByLines(all.Vertices, all.Indices, cuts, layerTolerance)
	if err != nil {
		return nil, err
	}
	if len(inside) == 0 {
		return nil, fmt.Errorf("no floor area inside the storey outlines")
	}
	v, inside, _ = kernel.Cleanup(v, inside, nil, s.Config.WeldTolerance)
	if err := s.validateInterior(b.feature, v); err != nil {
		return nil, err
	}
	idx := kernel.AddStaircase(v, inside, b.planes)
	tags := make([]int32, len(idx)/3)
	for i := range tags {
		tags[i] = Indoor
	}
	return &Mesh{
		Name:       b.feature.Name + "_interior",
		ObjectType: ObjectInterior,
		Vertices:   v,
		Indices:    idx,
		Tags:       tags,
	}, nil
}

// validateInterior checks that no floor vertex lies further than
// Config.InteriorTolerance outside the horizontal bounds of f.
func (s *Scene) validateInterior(f *Feature, v []r3.Vec) error {
	tol := s.Config.InteriorTolerance
	for _, p := range v {
		if p.X < f.Lower.X-tol || p.X > f.Upper.X+tol || p.Y < f.Lower.Y-tol || p.Y > f.Upper.Y+tol {
			return fmt.Errorf("%w: vertex (%g, %g) outside [%g, %g]×[%g, %g]", ErrInteriorValidation,
				p.X, p.Y, f.Lower.X, f.Upper.X, f.Lower.Y, f.Upper.Y)
		}
	}
	return nil
}
