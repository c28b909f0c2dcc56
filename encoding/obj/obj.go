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

// Package obj reads city models stored as Wavefront OBJ files. Every
// named object becomes one feature. Objects whose name mentions terrain
// or ground are terrain; all others are buildings.
package obj

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene"
)

// DefaultObject names the faces that come before any object statement.
const DefaultObject = "DefaultObject"

// Decoder reads OBJ files.
type Decoder struct {
	// Offset is added to every vertex.
	Offset r3.Vec
}

// Decode reads an OBJ file from r.
func Decode(r io.Reader) ([]*cityscene.Feature, error) {
	var d Decoder
	return d.Decode(r)
}

type object struct {
	name  string
	faces [][]int
}

// Decode reads an OBJ file from r. Statements other than o, v and f are
// ignored. Faces with more than three corners are split into a fan of
// triangles.
func (d *Decoder) Decode(r io.Reader) ([]*cityscene.Feature, error) {
	var vertices []r3.Vec
	var objects []*object
	var cur *object

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for s.Scan() {
		line++
		fields := strings.Fields(s.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "o":
			name := strings.TrimSpace(strings.Join(fields[1:], " "))
			if name == "" {
				name = fmt.Sprintf("object%d", len(objects))
			}
			cur = &object{name: name}
			objects = append(objects, cur)
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj: line %d: vertex has %d coordinates", line, len(fields)-1)
			}
			var p [3]float64
			for i := range p {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("obj: line %d: %v", line, err)
				}
				p[i] = f
			}
			vertices = append(vertices, r3.Add(r3.Vec{X: p[0], Y: p[1], Z: p[2]}, d.Offset))
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj: line %d: face has %d corners", line, len(fields)-1)
			}
			face := make([]int, len(fields)-1)
			for i, c := range fields[1:] {
				n, err := strconv.Atoi(strings.SplitN(c, "/", 2)[0])
				if err != nil {
					return nil, fmt.Errorf("obj: line %d: %v", line, err)
				}
				switch {
				case n > 0:
					n--
				case n < 0:
					n += len(vertices)
				default:
					return nil, fmt.Errorf("obj: line %d: vertex index 0", line)
				}
				if n < 0 || n >= len(vertices) {
					return nil, fmt.Errorf("obj: line %d: vertex %s is not defined", line, c)
				}
				face[i] = n
			}
			if cur == nil {
				cur = &object{name: DefaultObject}
				objects = append(objects, cur)
			}
			cur.faces = append(cur.faces, face)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("obj: %v", err)
	}

	var features []*cityscene.Feature
	for _, o := range objects {
		if len(o.faces) == 0 {
			continue
		}
		features = append(features, o.feature(vertices))
	}
	return features, nil
}

// feature gathers the vertices o uses into a feature of its own.
func (o *object) feature(vertices []r3.Vec) *cityscene.Feature {
	f := &cityscene.Feature{Name: o.name, Kind: kind(o.name)}
	local := make(map[int]uint32)
	at := func(i int) uint32 {
		if j, ok := local[i]; ok {
			return j
		}
		j := uint32(len(f.Vertices))
		f.Vertices = append(f.Vertices, vertices[i])
		local[i] = j
		return j
	}
	for _, face := range o.faces {
		for i := 1; i+1 < len(face); i++ {
			f.Indices = append(f.Indices, at(face[0]), at(face[i]), at(face[i+1]))
		}
	}
	return f
}

func kind(name string) cityscene.Kind {
	n := strings.ToLower(name)
	if strings.Contains(n, "terrain") || strings.Contains(n, "ground") {
		return cityscene.Terrain
	}
	return cityscene.Building
}
