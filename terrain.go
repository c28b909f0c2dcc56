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

// BuildTerrain returns a function that builds the ground mesh. Terrain
// features are clipped to Config.TerrainMargin around the buildings,
// merged and welded. If no terrain is left, a flat rectangle extending
// Config.FlatTerrainMargin beyond the buildings at their lowest height
// is used instead. The result is refined until no edge is longer than
// Config.MaxEdgeLength.
func BuildTerrain() SceneManipulator {
	return func(s *Scene) error {
		var parts []kernel.Mesh
		for _, f := range s.Features {
			if f.Kind != Terrain {
				continue
			}
			v, idx := f.Vertices, f.Indices
			if s.hasBuildings {
				v, idx, _ = kernel.Clip(v, idx, s.terrainBounds())
			}
			v, idx, _ = kernel.Cleanup(v, idx, nil, s.Config.WeldTolerance)
			if len(idx) == 0 {
				s.Log.WithField("feature", f.Name).Debug("terrain feature is outside the site")
				continue
			}
			parts = append(parts, kernel.Mesh{Vertices: v, Indices: idx})
		}
		ground := kernel.Concat(parts...)
		ground.Vertices, ground.Indices, _ = kernel.Cleanup(ground.Vertices, ground.Indices, nil, s.Config.WeldTolerance)

		s.flatTerrain = len(ground.Indices) == 0
		if s.flatTerrain {
			if !s.hasBuildings {
				return fmt.Errorf("cityscene: terrain: %w", ErrNoGeometry)
			}
			margin := r3.Vec{X: s.Config.FlatTerrainMargin, Y: s.Config.FlatTerrainMargin}
			s.Log.Warn("no terrain found; using a flat ground plane")
			ground.Vertices, ground.Indices = kernel.Rectangle(r3.Sub(s.lower, margin), r3.Add(s.upper, margin), s.lower.Z)
		}
		v, idx, err := kernel.Tessellate(ground.Vertices, ground.Indices, s.Config.MaxEdgeLength)
		if err != nil {
			return fmt.Errorf("cityscene: terrain: %v", err)
		}
		s.Terrain = &Mesh{
			Name:       "ground_plane",
			ObjectType: ObjectTerrain,
			Vertices:   v,
			Indices:    idx,
		}
		s.Log.WithField("triangles", s.Terrain.NumTriangles()).
			WithField("flat", s.flatTerrain).
			Info("built terrain")
		return nil
	}
}

// terrainBounds returns the half-planes that bound the site
// horizontally.
func (s *Scene) terrainBounds() []kernel.HalfPlane {
	m := s.Config.TerrainMargin
	return []kernel.HalfPlane{
		{N: r3.Vec{X: -1}, D: -(s.lower.X - m)},
		{N: r3.Vec{X: 1}, D: s.upper.X + m},
		{N: r3.Vec{Y: -1}, D: -(s.lower.Y - m)},
		{N: r3.Vec{Y: 1}, D: s.upper.Y + m},
	}
}
