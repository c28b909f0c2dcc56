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
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/spatialmodel/cityscene"
)

// Preview draws a plan view of the mobility domain and the building
// footprints. The image format follows the extension of Path.
type Preview struct {
	Path string

	// Width is the width of the image. The height follows from the
	// aspect ratio of the scene. 6 inches is used if it is zero.
	Width vg.Length
}

var (
	outdoorColor   = color.RGBA{R: 178, G: 223, B: 138, A: 255}
	indoorColor    = color.RGBA{R: 253, G: 191, B: 111, A: 255}
	footprintColor = color.RGBA{R: 99, G: 99, B: 99, A: 255}
)

// WriteScene implements cityscene.Writer.
func (pr Preview) WriteScene(s *cityscene.Scene) error {
	p, aspect, err := PlotScene(s)
	if err != nil {
		return err
	}
	w := pr.Width
	if w == 0 {
		w = 6 * vg.Inch
	}
	if err := p.Save(w, w*vg.Length(aspect), pr.Path); err != nil {
		return fmt.Errorf("scenewriter: saving preview: %v", err)
	}
	logger(s).WithField("file", pr.Path).Info("wrote preview")
	return nil
}

// PlotScene returns a plan view of s and its height to width ratio.
func PlotScene(s *cityscene.Scene) (*plot.Plot, float64, error) {
	p := plot.New()
	p.Title.Text = "Mobility domain"
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"

	var xs, ys []float64
	layer := func(name string, m *cityscene.Mesh, c color.Color, keep func(tri int) bool) error {
		var rings []plotter.XYer
		for t := 0; t < m.NumTriangles(); t++ {
			if keep != nil && !keep(t) {
				continue
			}
			ring := make(plotter.XYs, 3)
			for k := 0; k < 3; k++ {
				v := m.Vertices[m.Indices[3*t+k]]
				ring[k] = plotter.XY{X: v.X, Y: v.Y}
				xs = append(xs, v.X)
				ys = append(ys, v.Y)
			}
			rings = append(rings, ring)
		}
		if len(rings) == 0 {
			return nil
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return fmt.Errorf("scenewriter: preview: %v", err)
		}
		poly.Color = c
		poly.LineStyle.Width = vg.Points(0.1)
		p.Add(poly)
		p.Legend.Add(name, poly)
		return nil
	}

	if m := s.Mobility; m != nil {
		mobility := func(want int32) func(int) bool {
			return func(t int) bool { return t < len(m.Tags) && m.Tags[t] == want }
		}
		if err := layer("outdoor", m, outdoorColor, mobility(cityscene.Outdoor)); err != nil {
			return nil, 0, err
		}
		if err := layer("indoor", m, indoorColor, mobility(cityscene.Indoor)); err != nil {
			return nil, 0, err
		}
	}
	if s.Footprint != nil {
		if err := layer("footprint", s.Footprint, footprintColor, nil); err != nil {
			return nil, 0, err
		}
	}
	if len(xs) == 0 {
		return nil, 0, fmt.Errorf("scenewriter: preview: nothing to draw")
	}

	xmin, xmax := floats.Min(xs), floats.Max(xs)
	ymin, ymax := floats.Min(ys), floats.Max(ys)
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax
	aspect := 1.0
	if xmax > xmin && ymax > ymin {
		aspect = math.Max(0.25, math.Min(4, (ymax-ymin)/(xmax-xmin)))
	}
	return p, aspect, nil
}
