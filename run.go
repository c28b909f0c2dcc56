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
	"io"
	"time"
)

// Stages returns the pipeline stages in the order they must run:
// footprints, exterior slicing, interiors, terrain, the mobility domain
// and final assembly. Each stage logs how long it took.
func Stages() []SceneManipulator {
	return []SceneManipulator{
		timed("footprints", Footprints()),
		timed("exteriors", Exteriors()),
		timed("interiors", Interiors()),
		timed("terrain", BuildTerrain()),
		timed("mobility", Mobility()),
		timed("assemble", Assemble()),
	}
}

func timed(name string, f SceneManipulator) SceneManipulator {
	return func(s *Scene) error {
		start := time.Now()
		if err := f(s); err != nil {
			return err
		}
		s.Log.WithField("stage", name).
			WithField("walltime", time.Since(start).Round(time.Millisecond)).
			Debug("stage finished")
		return nil
	}
}

// Writer writes a finished scene somewhere.
type Writer interface {
	WriteScene(s *Scene) error
}

// Write returns a function that hands the scene to each of the writers.
func Write(writers ...Writer) SceneManipulator {
	return func(s *Scene) error {
		for _, w := range writers {
			if err := w.WriteScene(s); err != nil {
				return err
			}
		}
		return nil
	}
}

// Log returns a function that writes a summary of the scene meshes
// to w.
func Log(w io.Writer) SceneManipulator {
	return func(s *Scene) error {
		for _, m := range s.Meshes() {
			if _, err := fmt.Fprintf(w, "%-18s %-30s vertices=%-8d triangles=%d\n",
				m.ObjectType, m.Name, len(m.Vertices), m.NumTriangles()); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintf(w, "center=(%.3f, %.3f) z_offset=%g scale=%g\n",
			s.Center.X, s.Center.Y, s.ZOffset, s.Scale)
		return err
	}
}
