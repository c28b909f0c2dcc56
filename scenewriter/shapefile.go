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

package scenewriter

import (
	"fmt"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/kernel"
)

// FootprintShapefile writes every footprint triangle as a polygon to the
// shapefile at Path, in scene coordinates.
type FootprintShapefile struct {
	Path string
}

type footprintRecord struct {
	geom.Polygon
	Area float64
}

// WriteScene implements cityscene.Writer.
func (f FootprintShapefile) WriteScene(s *cityscene.Scene) error {
	if s.Footprint == nil {
		logger(s).Warn("no building footprints to write")
		return nil
	}
	e, err := shp.NewEncoder(f.Path, footprintRecord{})
	if err != nil {
		return fmt.Errorf("scenewriter: creating footprint shapefile: %v", err)
	}
	defer e.Close()
	m := s.Footprint
	for t := 0; t < len(m.Indices); t += 3 {
		tri := m.Indices[t : t+3]
		var ring []geom.Point
		for _, i := range []uint32{tri[0], tri[1], tri[2], tri[0]} {
			ring = append(ring, geom.Point{X: m.Vertices[i].X, Y: m.Vertices[i].Y})
		}
		rec := footprintRecord{
			Polygon: geom.Polygon{ring},
			Area:    kernel.Area(m.Vertices, tri),
		}
		if err := e.Encode(rec); err != nil {
			return fmt.Errorf("scenewriter: writing footprint shapefile: %v", err)
		}
	}
	logger(s).WithField("file", f.Path).Info("wrote footprint shapefile")
	return nil
}
