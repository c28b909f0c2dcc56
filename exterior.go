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

// Exteriors returns a function that slices every building shell at its
// storey heights. The sliced shells become the exterior meshes of the
// scene, and the edges where they meet each storey plane are kept for
// building interiors.
func Exteriors() SceneManipulator {
	return func(s *Scene) error {
		s.Exteriors = s.Exteriors[:0]
		for _, b := range s.buildings {
			f := b.feature
			b.planes = s.Config.slicePlanes(f.Lower.Z, f.Upper.Z)
			m := &Mesh{Name: f.Name, ObjectType: ObjectBuilding}
			if len(b.planes) == 0 {
				m.Vertices = append(m.Vertices, f.Vertices...)
				m.Indices = append(m.Indices, f.Indices...)
				m.Tags = append([]int32(nil), f.SurfaceTag...)
				b.rings = nil
			} else {
				var parent []int
				m.Vertices, m.Indices, b.rings, parent = kernel.SliceByPlanes(f.Vertices, f.Indices, b.planes)
				m.Tags = kernel.GatherTags(f.SurfaceTag, parent)
			}
			b.exterior = m
			s.Exteriors = append(s.Exteriors, m)
			s.Log.WithField("feature", f.Name).
				WithField("storeys", len(b.planes)).
				Debug("sliced exterior")
		}
		return nil
	}
}
