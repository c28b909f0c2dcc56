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

// Mobility returns a function that builds the mobility domain: the
// terrain with the building footprints removed, tagged Outdoor, joined
// with the interior floors, tagged Indoor. With the precise strategy the
// removed part of the terrain is kept as the scene's Remainder.
func Mobility() SceneManipulator {
	return func(s *Scene) error {
		if s.Terrain == nil {
			return fmt.Errorf("cityscene: mobility: terrain has not been built")
		}
		s.Remainder = nil
		t := s.Terrain
		if s.Config.MobilitySource == CopyTerrain {
			s.Mobility = tagged(ObjectMobility, "mobility_domain", t.Vertices, t.Indices, Outdoor)
			s.Log.Info("using the whole terrain as mobility domain")
			return nil
		}

		var v []r3.Vec
		var outside []uint32
		fp := s.Footprint
		switch {
		case fp == nil || len(fp.Indices) == 0:
			s.Log.Warn("empty footprint; the mobility domain is the whole terrain")
			v, outside = t.Vertices, t.Indices
		case s.Config.Strategy == Rough:
			var err error
			outside, err = kernel.CutByFootprints(t.Vertices, t.Indices, fp.Vertices, fp.Indices)
			if err != nil {
				return fmt.Errorf("cityscene: mobility: %v", err)
			}
			v = t.Vertices
		default:
			all := kernel.Concat(t.buffer(), kernel.Mesh{Vertices: fp.Vertices})
			edges := kernel.ExtractEdges(fp.Indices)
			for i := range edges {
				edges[i] += uint32(len(t.Vertices))
			}
			var pieces, inside []uint32
			var err error
			v, outside, inside, err = kernel.CutByLines(all.Vertices, all.Indices, edges, 0)
			if err != nil {
				return fmt.Errorf("cityscene: mobility: %v", err)
			}
			// Outline parity treats the overlap of two footprints as
			// outside, so the pieces are sorted again by coverage.
			pieces = append(outside, inside...)
			outside, inside, err = kernel.SortByFootprints(v, pieces, fp.Vertices, fp.Indices)
			if err != nil {
				return fmt.Errorf("cityscene: mobility: %v", err)
			}
			if len(inside) > 0 {
				s.Remainder = tagged(ObjectRemainder, "mobility_remainder", v, inside, Outdoor)
			}
		}

		parts := []*Mesh{tagged(ObjectMobility, "", v, outside, Outdoor)}
		parts = append(parts, s.Interiors...)
		s.Mobility = merge(ObjectMobility, "mobility_domain", parts...)
		s.Log.WithField("triangles", s.Mobility.NumTriangles()).
			WithField("strategy", s.Config.Strategy).
			Info("built mobility domain")
		return nil
	}
}

// tagged returns a compact copy of the triangles idx of v with every
// triangle tagged tag.
func tagged(ot ObjectType, name string, v []r3.Vec, idx []uint32, tag int32) *Mesh {
	idx = append([]uint32(nil), idx...)
	lut := kernel.Compact(idx, len(v))
	tags := make([]int32, len(idx)/3)
	for i := range tags {
		tags[i] = tag
	}
	return &Mesh{
		Name:       name,
		ObjectType: ot,
		Vertices:   kernel.Gather(v, lut),
		Indices:    idx,
		Tags:       tags,
	}
}

// merge joins meshes and their tags into one new mesh.
func merge(ot ObjectType, name string, meshes ...*Mesh) *Mesh {
	bufs := make([]kernel.Mesh, len(meshes))
	var tags []int32
	for i, m := range meshes {
		bufs[i] = m.buffer()
		tags = append(tags, m.Tags...)
	}
	all := kernel.Concat(bufs...)
	return &Mesh{
		Name:       name,
		ObjectType: ot,
		Vertices:   all.Vertices,
		Indices:    all.Indices,
		Tags:       tags,
	}
}
