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

package cityutil

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/osm"
	"github.com/spatialmodel/cityscene/scenewriter"
)

const siteGML = "../encoding/citygml/testdata/site.gml"

// cubeOBJ is a single 10 x 10 x 6 building with outward facing quads.
const cubeOBJ = `o Building_1
v 0 0 0
v 10 0 0
v 10 10 0
v 0 10 0
v 0 0 6
v 10 0 6
v 10 10 6
v 0 10 6
f 1 4 3 2
f 5 6 7 8
f 1 2 6 5
f 2 3 7 6
f 3 4 8 7
f 4 1 5 8
`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "cityutil")
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func putBlob(t *testing.T, path string, data []byte) {
	bucketName, key, err := splitBlob(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	b, err := OpenBucket(ctx, bucketName)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WriteAll(ctx, key, data, nil); err != nil {
		t.Fatal(err)
	}
}

func getBlob(t *testing.T, path string) []byte {
	bucketName, key, err := splitBlob(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	b, err := OpenBucket(ctx, bucketName)
	if err != nil {
		t.Fatal(err)
	}
	data, err := b.ReadAll(ctx, key)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return data
}

func gmlJob(inputs ...string) Job {
	return Job{
		Kind:     GML,
		GML:      &GMLImport{Inputs: inputs},
		Pipeline: cityscene.DefaultConfig(),
		Output:   Output{Stage: "out.usda"},
	}
}

func TestJobValidate(t *testing.T) {
	osmJob := Job{
		Kind: OSM,
		OSM: &OSMImport{
			Bounds:        osm.Bounds{MinLon: 13.40, MinLat: 52.51, MaxLon: 13.41, MaxLat: 52.52},
			DefaultHeight: 10,
		},
		Pipeline: cityscene.DefaultConfig(),
		Output:   Output{Stage: "out.usda"},
	}
	if err := osmJob.Validate(); err != nil {
		t.Errorf("valid osm job: %v", err)
	}
	if err := gmlJob("a.gml").Validate(); err != nil {
		t.Errorf("valid gml job: %v", err)
	}

	tests := []struct {
		name   string
		modify func(j *Job)
		osm    bool
	}{
		{name: "no inputs", modify: func(j *Job) { j.GML.Inputs = nil }},
		{name: "empty input", modify: func(j *Job) { j.GML.Inputs = []string{" "} }},
		{name: "bad epsg", modify: func(j *Job) { j.GML.EPSGOut = "EPSG:nope" }},
		{name: "obj without epsg_in", modify: func(j *Job) { j.Kind = OBJ; j.GML.EPSGOut = "EPSG:3826" }},
		{name: "gml without import", modify: func(j *Job) { j.GML = nil }},
		{name: "invalid kind", modify: func(j *Job) { j.Kind = Kind(7) }},
		{name: "no output", modify: func(j *Job) { j.Output = Output{} }},
		{name: "bad slice interval", modify: func(j *Job) { j.Pipeline.SliceInterval = 0 }},
		{name: "unknown strategy", modify: func(j *Job) { j.Pipeline.Strategy = cityscene.Strategy(9) }},
		{name: "empty bbox", osm: true, modify: func(j *Job) { j.OSM.Bounds.MaxLat = j.OSM.Bounds.MinLat }},
		{name: "bbox off globe", osm: true, modify: func(j *Job) { j.OSM.Bounds.MaxLon = 200 }},
		{name: "zero height", osm: true, modify: func(j *Job) { j.OSM.DefaultHeight = 0 }},
		{name: "osm with inputs", osm: true, modify: func(j *Job) { j.GML = &GMLImport{Inputs: []string{"a.gml"}} }},
	}
	for _, test := range tests {
		j := gmlJob("a.gml")
		if test.osm {
			o := *osmJob.OSM
			j = osmJob
			j.OSM = &o
		}
		test.modify(&j)
		if err := j.Validate(); err == nil {
			t.Errorf("%s: expected an error", test.name)
		}
	}
}

func TestJobID(t *testing.T) {
	a, b := gmlJob("a.gml"), gmlJob("a.gml")
	if a.ID() != b.ID() {
		t.Errorf("identical jobs have different ids: %s, %s", a.ID(), b.ID())
	}
	if a.ID() == gmlJob("b.gml").ID() {
		t.Error("different jobs have the same id")
	}
	if len(a.ID()) != 12 {
		t.Errorf("id length: %d", len(a.ID()))
	}
}

func TestJobFromConfig(t *testing.T) {
	j, err := JobFromConfig(Cfg, GML, []string{"data/site.gml"})
	if err != nil {
		t.Fatal(err)
	}
	if j.Output.Stage != "site.usda" {
		t.Errorf("default stage: have %q, want site.usda", j.Output.Stage)
	}
	def := cityscene.DefaultConfig()
	if j.Pipeline != def {
		t.Errorf("pipeline settings differ from the defaults:\nhave %+v\nwant %+v", j.Pipeline, def)
	}
	if _, err := JobFromConfig(Cfg, OSM, nil); err == nil {
		t.Error("expected an error for an osm job without a bounding box")
	}
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/a.gml":  true,
		"s3://bucket/a.gml":  true,
		"mem://bucket/a.gml": true,
		"file:///tmp/a.gml":  true,
		"/tmp/a.gml":         false,
		"a.gml":              false,
	} {
		if have := IsBlob(path); have != want {
			t.Errorf("%s: have %v, want %v", path, have, want)
		}
	}
	for path, want := range map[string][2]string{
		"mem://bucket/dir/a.gml":             {"mem://bucket", "dir/a.gml"},
		"file:///tmp/x/a.gml":                {"file:///tmp/x/", "a.gml"},
		"s3://bucket/a.gml?region=eu-west-1": {"s3://bucket?region=eu-west-1", "a.gml"},
	} {
		b, k, err := splitBlob(path)
		if err != nil {
			t.Fatal(err)
		}
		if b != want[0] || k != want[1] {
			t.Errorf("%s: have (%s, %s), want (%s, %s)", path, b, k, want[0], want[1])
		}
	}
	if _, err := OpenBucket(context.Background(), "ftp://bucket"); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}

func TestS3Config(t *testing.T) {
	u, err := url.Parse("s3://bucket?region=eu-west-1&endpoint=http://localhost:9000")
	if err != nil {
		t.Fatal(err)
	}
	c := s3Config(u)
	if aws.StringValue(c.Region) != "eu-west-1" {
		t.Errorf("region: have %s", aws.StringValue(c.Region))
	}
	if aws.StringValue(c.Endpoint) != "http://localhost:9000" || !aws.BoolValue(c.S3ForcePathStyle) {
		t.Errorf("endpoint: have %s, path style %v", aws.StringValue(c.Endpoint), aws.BoolValue(c.S3ForcePathStyle))
	}
	u, _ = url.Parse("s3://bucket")
	if c := s3Config(u); c.Endpoint != nil || aws.StringValue(c.Region) == "" {
		t.Errorf("plain location: endpoint %v, region %q", c.Endpoint, aws.StringValue(c.Region))
	}
}

func TestConvertBlob(t *testing.T) {
	site, err := ioutil.ReadFile(siteGML)
	if err != nil {
		t.Fatal(err)
	}
	putBlob(t, "mem://inputs/site.gml", site)
	dir := tempDir(t)
	defer os.RemoveAll(dir)

	j := gmlJob("mem://inputs/site.gml")
	j.Pipeline.Centimeters = false
	j.Output = Output{
		Stage:      "mem://outputs/site.usda",
		NavDump:    "mem://outputs/nav",
		Checkpoint: filepath.Join(dir, "site.gob"),
	}
	var summary bytes.Buffer
	s, err := Convert(context.Background(), j, quietLogger(), &summary)
	if err != nil {
		t.Fatal(err)
	}

	stage := string(getBlob(t, "mem://outputs/site.usda"))
	for _, want := range []string{`def Mesh "BLDG_0001"`, `def Mesh "mobility_domain"`, `def Scenario "Scenario"`} {
		if !strings.Contains(stage, want) {
			t.Errorf("stage is missing %s", want)
		}
	}
	if n := len(getBlob(t, "mem://outputs/nav/"+scenewriter.VerticesFile)); n != 12*len(s.Mobility.Vertices) {
		t.Errorf("vertex buffer: have %d bytes, want %d", n, 12*len(s.Mobility.Vertices))
	}
	if n := len(getBlob(t, "mem://outputs/nav/"+scenewriter.IndicesFile)); n != 4*len(s.Mobility.Indices) {
		t.Errorf("index buffer: have %d bytes, want %d", n, 4*len(s.Mobility.Indices))
	}
	if !strings.Contains(summary.String(), "center=") {
		t.Errorf("summary: %s", summary.String())
	}

	f, err := os.Open(j.Output.Checkpoint)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	loaded := cityscene.NewScene(cityscene.DefaultConfig())
	if err := cityscene.Load(f)(loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.Mobility.NumTriangles() != s.Mobility.NumTriangles() {
		t.Errorf("checkpoint mobility triangles: have %d, want %d",
			loaded.Mobility.NumTriangles(), s.Mobility.NumTriangles())
	}
}

func TestConvertOBJ(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "cube.obj")
	if err := ioutil.WriteFile(path, []byte(cubeOBJ), 0644); err != nil {
		t.Fatal(err)
	}
	scenario := filepath.Join(dir, "scenario.toml")
	if err := ioutil.WriteFile(scenario, []byte("[sim]\nbatches = 4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	j := Job{
		Kind:     OBJ,
		GML:      &GMLImport{Inputs: []string{"file://" + filepath.ToSlash(path)}},
		Pipeline: cityscene.DefaultConfig(),
		Scenario: scenario,
		Output: Output{
			Stage:    filepath.Join(dir, "cube.usda"),
			DebugDir: filepath.Join(dir, "debug"),
		},
	}
	j.Pipeline.Interiors = false
	s, err := Convert(context.Background(), j, quietLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Exteriors) != 1 {
		t.Errorf("exteriors: have %d, want 1", len(s.Exteriors))
	}
	if a := s.Metadata.Attribute("sim:batches"); a == nil || a.Value != uint(4) {
		t.Errorf("scenario override was not applied: %+v", a)
	}
	for _, f := range []string{j.Output.Stage, filepath.Join(j.Output.DebugDir, FootprintFile), filepath.Join(j.Output.DebugDir, PreviewFile)} {
		if _, err := os.Stat(f); err != nil {
			t.Errorf("output was not written: %v", err)
		}
	}
}

func TestRewrite(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "cube.obj")
	if err := ioutil.WriteFile(path, []byte(cubeOBJ), 0644); err != nil {
		t.Fatal(err)
	}
	j := Job{
		Kind:     OBJ,
		GML:      &GMLImport{Inputs: []string{path}},
		Pipeline: cityscene.DefaultConfig(),
		Output:   Output{Checkpoint: filepath.Join(dir, "cube.gob")},
	}
	j.Pipeline.Interiors = false
	s, err := Convert(context.Background(), j, quietLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	putBlob(t, "mem://checkpoints/cube.gob", mustRead(t, j.Output.Checkpoint))
	putBlob(t, "mem://checkpoints/scenario.toml", []byte("[sim]\nbatches = 7\n"))

	if _, err := Rewrite(context.Background(), "mem://checkpoints/cube.gob", "", Output{}, quietLogger(), nil); err == nil {
		t.Error("expected an error without outputs")
	}
	r, err := Rewrite(context.Background(), "mem://checkpoints/cube.gob", "mem://checkpoints/scenario.toml",
		Output{Stage: "mem://rewritten/cube.usda"}, quietLogger(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.Mobility.NumTriangles() != s.Mobility.NumTriangles() || r.Scale != s.Scale {
		t.Errorf("rewritten scene differs: %d mobility triangles at scale %g, want %d at %g",
			r.Mobility.NumTriangles(), r.Scale, s.Mobility.NumTriangles(), s.Scale)
	}
	if a := r.Metadata.Attribute("sim:batches"); a == nil || a.Value != uint(7) {
		t.Errorf("scenario override was not applied: %+v", a)
	}
	stage := string(getBlob(t, "mem://rewritten/cube.usda"))
	if !strings.Contains(stage, `def Mesh "mobility_domain"`) {
		t.Error("rewritten stage is missing the mobility domain")
	}
}

func mustRead(t *testing.T, path string) []byte {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestConvertMixedReferenceSystems(t *testing.T) {
	site, err := ioutil.ReadFile(siteGML)
	if err != nil {
		t.Fatal(err)
	}
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	a, b := filepath.Join(dir, "a.gml"), filepath.Join(dir, "b.gml")
	if err := ioutil.WriteFile(a, site, 0644); err != nil {
		t.Fatal(err)
	}
	other := bytes.Replace(site, []byte("EPSG::3826"), []byte("EPSG::3825"), 1)
	if err := ioutil.WriteFile(b, other, 0644); err != nil {
		t.Fatal(err)
	}
	j := gmlJob(a, b)
	j.Output.Stage = filepath.Join(dir, "out.usda")
	if _, err := Convert(context.Background(), j, quietLogger(), nil); err == nil {
		t.Error("expected an error for inputs in different reference systems")
	}
	j.GML.EPSGIn = "EPSG:3826"
	f, tr, err := j.features(context.Background(), dir, quietLogger())
	if err != nil {
		t.Fatalf("with --epsg_in: %v", err)
	}
	if tr != nil {
		t.Error("inputs should not be reprojected without --epsg_out")
	}
	if len(f) != 6 {
		t.Errorf("features: have %d, want 6", len(f))
	}
}

func TestUploadRetry(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	local := filepath.Join(dir, "a.txt")
	if err := ioutil.WriteFile(local, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	u := &uploader{
		dir: dir,
		log: quietLogger(),
		newBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		},
	}
	u.files = [][2]string{{local, "ftp://bucket/a.txt"}}
	if err := u.upload(context.Background()); err == nil {
		t.Error("expected an error for an unknown provider")
	}

	u.files = [][2]string{
		{filepath.Join(dir, "missing.txt"), "mem://uploads/missing.txt"},
		{local, "mem://uploads/a.txt"},
	}
	if err := u.upload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if string(getBlob(t, "mem://uploads/a.txt")) != "a" {
		t.Error("uploaded file has the wrong contents")
	}
}

func TestNewLogger(t *testing.T) {
	dir := tempDir(t)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "log.txt")
	var b bytes.Buffer
	l, c, err := NewLogger(&b, "warning", path)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown")
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	file, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, out := range []string{b.String(), string(file)} {
		if !strings.Contains(out, "shown") || strings.Contains(out, "hidden") {
			t.Errorf("log output: %q", out)
		}
	}
	if _, _, err := NewLogger(&b, "loud", ""); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestVersionCommand(t *testing.T) {
	var b bytes.Buffer
	Root.SetOutput(&b)
	Root.SetArgs([]string{"version"})
	defer Root.SetOutput(nil)
	if err := Root.Execute(); err != nil {
		t.Fatal(err)
	}
	if want := "cityscene v" + cityscene.Version; !strings.Contains(b.String(), want) {
		t.Errorf("have %q, want %q", b.String(), want)
	}
}
