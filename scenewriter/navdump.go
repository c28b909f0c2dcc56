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
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spatialmodel/cityscene"
)

// Names of the files written by NavDump.
const (
	VerticesFile = "vertices.bin"
	IndicesFile  = "indices.bin"
)

// NavDump writes the mobility domain as raw buffers into Dir:
// little-endian float32 x, y, z triples in VerticesFile and
// little-endian uint32 triangle indices in IndicesFile.
type NavDump struct {
	Dir string
}

// WriteScene implements cityscene.Writer.
func (n NavDump) WriteScene(s *cityscene.Scene) error {
	if s.Mobility == nil {
		return fmt.Errorf("scenewriter: the scene has no mobility domain")
	}
	if err := os.MkdirAll(n.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("scenewriter: %v", err)
	}
	if err := writeFile(filepath.Join(n.Dir, VerticesFile), func(w io.Writer) error {
		return EncodeVertices(w, s.Mobility)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(n.Dir, IndicesFile), func(w io.Writer) error {
		return EncodeIndices(w, s.Mobility)
	}); err != nil {
		return err
	}
	logger(s).WithField("dir", n.Dir).Info("wrote navigation buffers")
	return nil
}

// EncodeVertices writes the vertices of m as little-endian float32
// triples.
func EncodeVertices(w io.Writer, m *cityscene.Mesh) error {
	v := make([]float32, 0, 3*len(m.Vertices))
	for _, p := range m.Vertices {
		v = append(v, float32(p.X), float32(p.Y), float32(p.Z))
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// EncodeIndices writes the triangle indices of m as little-endian
// uint32 values.
func EncodeIndices(w io.Writer, m *cityscene.Mesh) error {
	return binary.Write(w, binary.LittleEndian, m.Indices)
}

func writeFile(path string, encode func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("scenewriter: %v", err)
	}
	b := bufio.NewWriter(f)
	if err := encode(b); err != nil {
		f.Close()
		return fmt.Errorf("scenewriter: writing %s: %v", path, err)
	}
	if err := b.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("scenewriter: writing %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("scenewriter: %v", err)
	}
	return nil
}
