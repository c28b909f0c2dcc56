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
	"github.com/spatialmodel/cityscene/kernel"
)

// Footprints returns a function that collects the ground-level
// triangles of every building in the configured range into one welded
// footprint mesh. If no building has any, the bounding rectangle of all
// buildings is used instead.
func Footprints() SceneManipulator {
	return func(s *Scene) error {
		var parts []kernel.Mesh
		for i, b := range s.buildings {
			if !s.Config.footprintInRange(i) {
				continue
			}
			f := b.feature
			v, idx := kernel.ExtractFootprint(f.Vertices, f.Indices, f.Lower.Z+s.Config.FootprintTolerance)
			if len(idx) > 0 {
				parts = append(parts, kernel.Mesh{Vertices: v, Indices: idx})
			}
		}
		fp := kernel.Concat(parts...)
		if len(fp.Indices) == 0 {
			if !s.hasBuildings {
				s.Footprint = nil
				return nil
			}
			s.Log.Warn("no footprint triangles found; using bbox rectangle fallback")
			fp.Vertices, fp.Indices = kernel.Rectangle(s.lower, s.upper, s.lower.Z)
		}
		v, idx, _ := kernel.Cleanup(fp.Vertices, fp.Indices, nil, s.Config.WeldTolerance)
		s.Footprint = &Mesh{
			Name:       "footprint",
			ObjectType: ObjectFootprint,
			Vertices:   v,
			Indices:    idx,
		}
		s.Log.WithField("triangles", s.Footprint.NumTriangles()).Info("built footprint")
		return nil
	}
}
