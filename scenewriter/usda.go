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

// Package scenewriter writes finished scenes to files: an ASCII USD
// stage for the simulator, raw navigation buffers, a shapefile of the
// building footprints and a PNG preview.
package scenewriter

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/cityscene"
)

var (
	_ cityscene.Writer = USDA{}
	_ cityscene.Writer = NavDump{}
	_ cityscene.Writer = FootprintShapefile{}
	_ cityscene.Writer = Preview{}
)

// USDA writes a scene as an ASCII USD stage.
type USDA struct {
	Path string

	// Extras adds the mobility remainder and the building footprints to
	// the stage.
	Extras bool
}

// WriteScene implements cityscene.Writer.
func (u USDA) WriteScene(s *cityscene.Scene) error {
	f, err := os.Create(u.Path)
	if err != nil {
		return fmt.Errorf("scenewriter: %v", err)
	}
	if err := EncodeUSDA(f, s, u.Extras); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("scenewriter: %v", err)
	}
	logger(s).WithField("file", u.Path).Info("wrote USD stage")
	return nil
}

func logger(s *cityscene.Scene) logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// rfProperties control how the radio simulator treats a mesh.
type rfProperties struct {
	mesh, diffuse, diffraction, transmission bool
}

var (
	buildingRF = rfProperties{mesh: true, diffuse: true, diffraction: true}
	surfaceRF  = rfProperties{mesh: true}
)

// Material tags identify the radio material of a triangle.
const (
	Concrete int32 = iota
	Brick
	Glass
	Metal
	Wood
)

// DefaultMaterials maps surface tags (0 wall, 1 roof, 2 ground, 3
// other) to material tags. Surface tags missing from it get Concrete.
var DefaultMaterials = map[int32]int32{
	0: Concrete,
	1: Metal,
	2: Concrete,
	3: Wood,
}

// materialTags returns the material tag of every surface tag.
func materialTags(surface []int32) []int32 {
	m := make([]int32, len(surface))
	for i, t := range surface {
		if mt, ok := DefaultMaterials[t]; ok {
			m[i] = mt
		} else {
			m[i] = Concrete
		}
	}
	return m
}

// EncodeUSDA writes s to w as a USD stage. extras adds the mobility
// remainder and the building footprints.
func EncodeUSDA(w io.Writer, s *cityscene.Scene, extras bool) error {
	u := &usdaWriter{w: bufio.NewWriter(w)}
	md := s.Metadata
	upAxis := md.UpAxis
	if upAxis == "" {
		upAxis = "Z"
	}
	mpu := md.MetersPerUnit
	if mpu == 0 {
		mpu = 1
	}
	u.printf("#usda 1.0\n(\n")
	u.printf("    defaultPrim = \"Scenario\"\n")
	u.printf("    metersPerUnit = %s\n", formatFloat(mpu))
	u.printf("    upAxis = %q\n)\n\n", upAxis)

	u.open("Xform", "World")
	u.printf("double3 xformOp:translate = (0, 0, 0)\n")
	u.printf("float3 xformOp:rotateXYZ = (0, 0, 0)\n")
	u.printf("float3 xformOp:scale = (1, 1, 1)\n")
	u.printf("uniform token[] xformOpOrder = [\"xformOp:translate\", \"xformOp:rotateXYZ\", \"xformOp:scale\"]\n")

	u.open("Xform", "buildings")
	u.properties(buildingRF, cityscene.ObjectBuilding)
	u.open("Xform", "exterior")
	u.properties(buildingRF, cityscene.ObjectBuilding)
	names := newNamer()
	for _, m := range s.Exteriors {
		u.mesh(names.name(m.Name), m, &buildingRF, m.Tags, "")
	}
	u.close()
	if len(s.Interiors) > 0 {
		u.open("Xform", "interior")
		u.properties(buildingRF, cityscene.ObjectInterior)
		names := newNamer()
		for _, m := range s.Interiors {
			u.mesh(names.name(m.Name), m, &surfaceRF, nil, "")
		}
		u.close()
	}
	u.close()

	if s.Terrain != nil {
		u.mesh("ground_plane", s.Terrain, &surfaceRF, nil, "")
	}
	if s.Mobility != nil {
		u.mesh("mobility_domain", s.Mobility, nil, nil, "MobilityType")
	}
	if extras {
		if s.Remainder != nil {
			u.mesh("mobility_remainder", s.Remainder, nil, nil, "")
		}
		if s.Footprint != nil {
			u.mesh("building_footprints", s.Footprint, nil, nil, "")
		}
	}
	u.close()

	u.printf("\ndef Scenario \"Scenario\" (\n    kind = \"component\"\n)\n{\n")
	u.depth++
	for _, a := range md.Scenario {
		u.scenarioAttribute(a)
	}
	u.close()

	for _, scope := range []string{"Materials", "UEs", "RUs", "Panels", "DUs"} {
		u.printf("\ndef Scope %q\n{\n}\n", scope)
	}
	u.printf("\ndef DomeLight \"dome_light\"\n{\n    float inputs:intensity = 1000\n}\n")

	if u.err != nil {
		return fmt.Errorf("scenewriter: writing USD stage: %v", u.err)
	}
	if err := u.w.Flush(); err != nil {
		return fmt.Errorf("scenewriter: writing USD stage: %v", err)
	}
	return nil
}

// usdaWriter keeps the first write error and the indentation depth.
type usdaWriter struct {
	w     *bufio.Writer
	depth int
	err   error
}

func (u *usdaWriter) printf(format string, args ...interface{}) {
	if u.err != nil {
		return
	}
	if u.depth > 0 && format != "" && format[0] != '\n' {
		_, u.err = u.w.WriteString(strings.Repeat("    ", u.depth))
	}
	if u.err == nil {
		_, u.err = fmt.Fprintf(u.w, format, args...)
	}
}

func (u *usdaWriter) open(typ, name string) {
	if u.depth > 0 {
		u.printf("\n")
	}
	u.printf("def %s %q\n", typ, name)
	u.printf("{\n")
	u.depth++
}

func (u *usdaWriter) close() {
	u.depth--
	u.printf("}\n")
}

func (u *usdaWriter) properties(rf rfProperties, ot cityscene.ObjectType) {
	u.printf("custom bool AerialRFMesh = %s\n", formatBool(rf.mesh))
	u.printf("custom bool AerialRFDiffuse = %s\n", formatBool(rf.diffuse))
	u.printf("custom bool AerialRFDiffraction = %s\n", formatBool(rf.diffraction))
	u.printf("custom bool AerialRFTransmission = %s\n", formatBool(rf.transmission))
	u.printf("custom string ObjectType = %q\n", string(ot))
}

// mesh writes m as a Mesh prim. Meshes with rf properties also get
// surface and material tags, which are zero if tags is nil. typePrimvar
// names a primvar holding the per-triangle tags of m.
func (u *usdaWriter) mesh(name string, m *cityscene.Mesh, rf *rfProperties, tags []int32, typePrimvar string) {
	u.open("Mesh", name)
	n := m.NumTriangles()
	counts := make([]int32, n)
	for i := range counts {
		counts[i] = 3
	}
	u.intArray("int[] faceVertexCounts", counts, "")
	idx := make([]int32, len(m.Indices))
	for i, v := range m.Indices {
		idx[i] = int32(v)
	}
	u.intArray("int[] faceVertexIndices", idx, "")
	u.points(m)
	u.printf("uniform token subdivisionScheme = \"none\"\n")
	if rf != nil {
		u.properties(*rf, m.ObjectType)
		if tags == nil {
			tags = make([]int32, n)
		}
		u.primvar("SurfaceTag", tags)
		u.primvar("MaterialTag", materialTags(tags))
	}
	if typePrimvar != "" {
		t := m.Tags
		if t == nil {
			t = make([]int32, n)
		}
		u.primvar(typePrimvar, t)
	}
	u.close()
}

func (u *usdaWriter) primvar(name string, v []int32) {
	u.intArray("int[] primvars:"+name, v, ` (interpolation = "uniform")`)
}

func (u *usdaWriter) intArray(decl string, v []int32, meta string) {
	u.printf("%s = [", decl)
	if u.err != nil {
		return
	}
	buf := make([]byte, 0, 16)
	for i, x := range v {
		buf = buf[:0]
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = strconv.AppendInt(buf, int64(x), 10)
		if _, u.err = u.w.Write(buf); u.err != nil {
			return
		}
	}
	_, u.err = u.w.WriteString("]" + meta + "\n")
}

func (u *usdaWriter) points(m *cityscene.Mesh) {
	u.printf("point3f[] points = [")
	if u.err != nil {
		return
	}
	buf := make([]byte, 0, 64)
	for i, p := range m.Vertices {
		buf = buf[:0]
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = append(buf, '(')
		buf = strconv.AppendFloat(buf, p.X, 'g', -1, 32)
		buf = append(buf, ", "...)
		buf = strconv.AppendFloat(buf, p.Y, 'g', -1, 32)
		buf = append(buf, ", "...)
		buf = strconv.AppendFloat(buf, p.Z, 'g', -1, 32)
		buf = append(buf, ')')
		if _, u.err = u.w.Write(buf); u.err != nil {
			return
		}
	}
	_, u.err = u.w.WriteString("]\n")
}

func (u *usdaWriter) scenarioAttribute(a cityscene.Attribute) {
	decl := fmt.Sprintf("custom %s %s", a.Type, a.Name)
	if a.Value != nil {
		decl += " = " + formatValue(a.Value)
	}
	if a.Doc == "" {
		u.printf("%s\n", decl)
		return
	}
	u.printf("%s (\n", decl)
	u.printf("    doc = %q\n", a.Doc)
	u.printf(")\n")
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case bool:
		return formatBool(x)
	case float64:
		return formatFloat(x)
	case string:
		return strconv.Quote(x)
	default:
		return fmt.Sprint(x)
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// namer gives prims valid names that are unique among their siblings.
type namer map[string]bool

func newNamer() namer { return make(namer) }

func (n namer) name(s string) string {
	base := Sanitize(s)
	name := base
	for i := 1; n[name]; i++ {
		name = fmt.Sprintf("%s_%d", base, i)
	}
	n[name] = true
	return name
}

// Sanitize turns s into a valid USD prim name: characters other than
// ASCII letters, digits and underscores become underscores and a
// leading digit gets an underscore prefix.
func Sanitize(s string) string {
	if s == "" {
		return "_"
	}
	b := []rune(s)
	for i, r := range b {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			b[i] = '_'
		}
	}
	if unicode.IsDigit(b[0]) {
		return "_" + string(b)
	}
	return string(b)
}
