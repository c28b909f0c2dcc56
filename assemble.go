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

// Assemble returns a function that moves the finished scene to its
// local origin and output units. The horizontal center of the buildings,
// or of the terrain if there are none, becomes the origin. When the
// ground was made up because the site had no terrain, the lowest
// building base is moved to height zero. The footprint is flattened onto
// z = 0. Finally every vertex is scaled by Config.UnitScale.
func Assemble() SceneManipulator {
	return func(s *Scene) error {
		lower, upper := s.lower, s.upper
		if !s.hasBuildings {
			if s.Terrain == nil {
				return fmt.Errorf("cityscene: assemble: %w", ErrNoGeometry)
			}
			lower, upper = kernel.Bounds(s.Terrain.Vertices)
		}
		s.Center = r3.Vec{X: (lower.X + upper.X) / 2, Y: (lower.Y + upper.Y) / 2}
		s.ZOffset = 0
		if s.flatTerrain && s.hasBuildings {
			s.ZOffset = lower.Z
		}
		offset := r3.Vec{X: -s.Center.X, Y: -s.Center.Y, Z: -s.ZOffset}
		for _, m := range s.Meshes() {
			kernel.Translate(m.Vertices, offset)
		}
		if s.Footprint != nil {
			for i := range s.Footprint.Vertices {
				s.Footprint.Vertices[i].Z = 0
			}
		}
		s.Rescale(s.Config.UnitScale())
		s.Metadata.MetersPerUnit = 1 / s.Config.UnitScale()
		s.Log.WithField("center", fmt.Sprintf("(%.3f, %.3f)", s.Center.X, s.Center.Y)).
			WithField("z_offset", s.ZOffset).
			WithField("scale", s.Scale).
			Info("assembled scene")
		return nil
	}
}
