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

	"github.com/ctessum/geom/proj"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene/kernel"
)

// AddFeatures returns a function that appends features to the scene.
func AddFeatures(features ...*Feature) SceneManipulator {
	return func(s *Scene) error {
		s.Features = append(s.Features, features...)
		return nil
	}
}

// Normalize returns a function that brings every feature into the
// output reference system with t, which may be nil, and then welds,
// dedupes and compacts it. Features that are malformed or end up with no
// triangles are logged and dropped. It fails with ErrNoGeometry if no
// feature is left.
func Normalize(t proj.Transformer) SceneManipulator {
	return func(s *Scene) error {
		kept := s.Features[:0]
		for _, f := range s.Features {
			if err := s.normalize(f, t); err != nil {
				s.Log.WithField("feature", f.Name).Warnf("skipping feature: %v", err)
				continue
			}
			kept = append(kept, f)
		}
		for i := len(kept); i < len(s.Features); i++ {
			s.Features[i] = nil
		}
		s.Features = kept
		if len(s.Features) == 0 {
			return fmt.Errorf("cityscene: normalize: %w", ErrNoGeometry)
		}
		s.index()
		s.Log.WithField("buildings", len(s.buildings)).
			WithField("terrain", len(s.Features)-len(s.buildings)).
			Info("normalized input features")
		return nil
	}
}

func (s *Scene) normalize(f *Feature, t proj.Transformer) error {
	if err := f.Check(); err != nil {
		return err
	}
	if f.Kind == Building && f.SurfaceTag == nil {
		f.SurfaceTag = make([]int32, len(f.Indices)/3)
	}
	if t != nil {
		v := make([]r3.Vec, len(f.Vertices))
		for i, p := range f.Vertices {
			x, y, err := t(p.X, p.Y)
			if err != nil {
				return fmt.Errorf("transforming vertex %d: %v", i, err)
			}
			v[i] = r3.Vec{X: x, Y: y, Z: p.Z}
		}
		f.Vertices = v
	}
	f.Vertices, f.Indices, f.SurfaceTag = kernel.Cleanup(f.Vertices, f.Indices, f.SurfaceTag, s.Config.WeldTolerance)
	if len(f.Indices) == 0 {
		return fmt.Errorf("no triangles left after cleanup")
	}
	f.UpdateBounds()
	return nil
}
