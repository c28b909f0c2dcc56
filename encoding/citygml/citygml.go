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

// Package citygml reads buildings and relief features from CityGML
// files. Elements are matched by local name, so CityGML 1.0 and 2.0
// files and arbitrary namespace prefixes are accepted.
package citygml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/kernel"
)

// Surface tags assigned from the thematic surface a polygon belongs to.
const (
	Wall   int32 = 0
	Roof   int32 = 1
	Ground int32 = 2
	Other  int32 = 3
)

// surfaceTags holds the CityGML boundary surfaces.
var surfaceTags = map[string]int32{
	"WallSurface":         Wall,
	"RoofSurface":         Roof,
	"GroundSurface":       Ground,
	"ClosureSurface":      Other,
	"FloorSurface":        Other,
	"OuterFloorSurface":   Other,
	"OuterCeilingSurface": Other,
	"CeilingSurface":      Other,
	"InteriorWallSurface": Other,
}

// Decoder reads CityGML files.
type Decoder struct {
	// Exclude holds the gml:id values of buildings to leave out.
	Exclude map[string]bool

	// SwapXY reads positions as latitude, longitude, the axis order of
	// geographic reference systems, so that X holds the longitude.
	SwapXY bool

	// Skipped counts the polygons that could not be triangulated by the
	// last call to Decode.
	Skipped int
}

// Decode reads the buildings and relief features in r.
func Decode(r io.Reader) ([]*cityscene.Feature, error) {
	var d Decoder
	return d.Decode(r)
}

// state is the position of the decoder within a city object.
type state struct {
	feature *cityscene.Feature
	depth   int // element depth of the city object
	skip    bool

	tags     []int32 // enclosing thematic surfaces
	interior int     // depth inside gml:interior rings
	ring     []r3.Vec
	dim      int
	text     *strings.Builder
}

// Decode reads the buildings and relief features in r. Each top-level
// Building or ReliefFeature becomes one feature named after its gml:id;
// building parts and TIN reliefs are merged into their parent. Only the
// exterior rings of polygons and triangles are used.
func (d *Decoder) Decode(r io.Reader) ([]*cityscene.Feature, error) {
	d.Skipped = 0
	dec := xml.NewDecoder(r)
	var features []*cityscene.Feature
	var st state
	depth := 0
	count := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("citygml: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			name := t.Name.Local
			if st.feature == nil {
				kind, ok := objectKind(name)
				if !ok {
					continue
				}
				count++
				id := attr(t, "id")
				if id == "" {
					id = fmt.Sprintf("%s%d", name, count)
				}
				st = state{
					feature: &cityscene.Feature{Name: id, Kind: kind},
					depth:   depth,
					skip:    kind == cityscene.Building && d.Exclude[id],
				}
				continue
			}
			if st.skip {
				continue
			}
			switch name {
			case "interior":
				st.interior++
			case "LinearRing":
				st.ring = st.ring[:0]
			case "posList", "pos":
				st.dim = 3
				if v := attr(t, "srsDimension"); v != "" {
					if st.dim, err = strconv.Atoi(v); err != nil || st.dim < 2 || st.dim > 3 {
						return nil, fmt.Errorf("citygml: %s: invalid srsDimension %q", st.feature.Name, v)
					}
				}
				st.text = new(strings.Builder)
			default:
				if tag, ok := surfaceTags[name]; ok {
					st.tags = append(st.tags, tag)
				}
			}
		case xml.CharData:
			if st.text != nil {
				st.text.Write(t)
			}
		case xml.EndElement:
			depth--
			if st.feature == nil {
				continue
			}
			if depth < st.depth {
				if !st.skip && len(st.feature.Indices) > 0 {
					features = append(features, st.feature)
				}
				st = state{}
				continue
			}
			if st.skip {
				continue
			}
			name := t.Name.Local
			switch name {
			case "interior":
				st.interior--
			case "posList", "pos":
				if st.interior == 0 {
					p, err := parseCoordinates(st.text.String(), st.dim)
					if err != nil {
						return nil, fmt.Errorf("citygml: %s: %v", st.feature.Name, err)
					}
					if d.SwapXY {
						for i := range p {
							p[i].X, p[i].Y = p[i].Y, p[i].X
						}
					}
					st.ring = append(st.ring, p...)
				}
				st.text = nil
			case "LinearRing":
				if st.interior == 0 {
					d.addRing(&st)
				}
			default:
				if _, ok := surfaceTags[name]; ok && len(st.tags) > 0 {
					st.tags = st.tags[:len(st.tags)-1]
				}
			}
		}
	}
	return features, nil
}

// addRing triangulates the collected ring and adds it to the feature.
func (d *Decoder) addRing(st *state) {
	ring := st.ring
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	idx, err := kernel.TriangulatePolygon(ring)
	if err != nil {
		d.Skipped++
		return
	}
	tag := Other
	if len(st.tags) > 0 {
		tag = st.tags[len(st.tags)-1]
	}
	f := st.feature
	base := uint32(len(f.Vertices))
	f.Vertices = append(f.Vertices, ring...)
	for _, i := range idx {
		f.Indices = append(f.Indices, base+i)
	}
	for i := 0; i < len(idx)/3; i++ {
		f.SurfaceTag = append(f.SurfaceTag, tag)
	}
}

func objectKind(name string) (cityscene.Kind, bool) {
	switch name {
	case "Building":
		return cityscene.Building, true
	case "ReliefFeature", "TINRelief":
		return cityscene.Terrain, true
	}
	return 0, false
}

func attr(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func parseCoordinates(s string, dim int) ([]r3.Vec, error) {
	fields := strings.Fields(s)
	if len(fields)%dim != 0 {
		return nil, fmt.Errorf("%d coordinates do not make %d-dimensional points", len(fields), dim)
	}
	p := make([]r3.Vec, len(fields)/dim)
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		switch i % dim {
		case 0:
			p[i/dim].X = x
		case 1:
			p[i/dim].Y = x
		case 2:
			p[i/dim].Z = x
		}
	}
	return p, nil
}
