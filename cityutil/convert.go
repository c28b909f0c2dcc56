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
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/ctessum/geom/proj"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/encoding/citygml"
	"github.com/spatialmodel/cityscene/encoding/obj"
	"github.com/spatialmodel/cityscene/osm"
	"github.com/spatialmodel/cityscene/scenewriter"
)

// Names of the files written to Output.DebugDir.
const (
	FootprintFile = "footprints.shp"
	PreviewFile   = "preview.png"
)

// Convert runs job: it reads or downloads the city model, runs the
// pipeline stages and writes the requested outputs. A summary of the
// scene meshes is written to summary if it is not nil.
func Convert(ctx context.Context, j Job, log logrus.FieldLogger, summary io.Writer) (*cityscene.Scene, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("job", j.ID())

	dir, err := ioutil.TempDir("", "cityscene_"+j.ID())
	if err != nil {
		return nil, fmt.Errorf("cityutil: creating staging directory: %v", err)
	}
	defer os.RemoveAll(dir)

	features, t, err := j.features(ctx, dir, log)
	if err != nil {
		return nil, err
	}
	log.WithField("features", len(features)).Info("read city model")

	s := cityscene.NewScene(j.Pipeline)
	s.Log = log
	if j.Scenario != "" {
		if err := readScenario(ctx, s, j.Scenario, dir); err != nil {
			return nil, err
		}
	}

	u := &uploader{dir: dir, log: log}
	cleanup, err := j.Output.writers(u)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		cleanup = append(cleanup, cityscene.Log(summary))
	}

	s.InitFuncs = []cityscene.SceneManipulator{
		cityscene.AddFeatures(features...),
		cityscene.Normalize(t),
	}
	s.RunFuncs = cityscene.Stages()
	s.CleanupFuncs = cleanup

	if err := s.Init(); err != nil {
		return nil, err
	}
	if err := s.Run(); err != nil {
		return nil, err
	}
	if err := s.Cleanup(); err != nil {
		return nil, err
	}
	if err := u.upload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Rewrite loads the scene saved in checkpoint, which may be a blob
// location, and writes it to the outputs in o without running the
// pipeline again. If scenario is not empty its values replace the saved
// scenario settings first.
func Rewrite(ctx context.Context, checkpoint, scenario string, o Output, log logrus.FieldLogger, summary io.Writer) (*cityscene.Scene, error) {
	if o.Stage == "" && o.NavDump == "" && o.DebugDir == "" && o.Checkpoint == "" {
		return nil, fmt.Errorf("cityutil: no output requested")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("checkpoint", filepath.Base(checkpoint))

	dir, err := ioutil.TempDir("", "cityscene_rewrite")
	if err != nil {
		return nil, fmt.Errorf("cityutil: creating staging directory: %v", err)
	}
	defer os.RemoveAll(dir)

	path, err := fetch(ctx, checkpoint, dir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cityutil: opening checkpoint: %v", err)
	}
	defer f.Close()

	s := cityscene.NewScene(cityscene.DefaultConfig())
	s.Log = log
	s.InitFuncs = []cityscene.SceneManipulator{cityscene.Load(f)}
	if scenario != "" {
		s.InitFuncs = append(s.InitFuncs, func(s *cityscene.Scene) error {
			return readScenario(ctx, s, scenario, dir)
		})
	}
	u := &uploader{dir: dir, log: log}
	cleanup, err := o.writers(u)
	if err != nil {
		return nil, err
	}
	if summary != nil {
		cleanup = append(cleanup, cityscene.Log(summary))
	}
	s.CleanupFuncs = cleanup

	if err := s.Init(); err != nil {
		return nil, err
	}
	if err := s.Cleanup(); err != nil {
		return nil, err
	}
	if err := u.upload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// features reads the city model of j and returns it together with the
// transformation into the scene reference system.
func (j Job) features(ctx context.Context, dir string, log logrus.FieldLogger) ([]*cityscene.Feature, proj.Transformer, error) {
	if j.Kind == OSM {
		f, err := osm.Import(ctx, j.OSM.Bounds, osm.Options{
			Endpoint:      j.OSM.Endpoint,
			DefaultHeight: j.OSM.DefaultHeight,
			Log:           log,
		})
		return f, nil, err
	}

	exclude := make(map[string]bool)
	for _, id := range j.GML.Exclude {
		exclude[id] = true
	}
	epsgIn := j.GML.EPSGIn
	var features []*cityscene.Feature
	for _, in := range j.GML.Inputs {
		path, err := fetch(ctx, in, dir)
		if err != nil {
			return nil, nil, err
		}
		f, epsg, err := j.decode(path, exclude, log)
		if err != nil {
			return nil, nil, fmt.Errorf("cityutil: reading %s: %v", in, err)
		}
		if j.GML.EPSGIn == "" && epsg != "" {
			if epsgIn != "" && epsg != epsgIn {
				return nil, nil, fmt.Errorf("cityutil: %s is in %s but earlier inputs are in %s; set --epsg_in", in, epsg, epsgIn)
			}
			epsgIn = epsg
		}
		features = append(features, f...)
	}
	if epsgIn == "" && j.GML.EPSGOut != "" {
		log.Warnf("the reference system of the inputs is unknown; not reprojecting to %s", j.GML.EPSGOut)
	}
	t, err := cityscene.Transformer(epsgIn, j.GML.EPSGOut)
	if err != nil {
		return nil, nil, err
	}
	return features, t, nil
}

// decode reads the file at path. For CityGML files it also returns the
// reference system given in the file envelope.
func (j Job) decode(path string, exclude map[string]bool, log logrus.FieldLogger) ([]*cityscene.Feature, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	if j.Kind == OBJ {
		features, err := obj.Decode(f)
		return features, "", err
	}
	e, err := citygml.ReadEnvelope(f)
	if err != nil {
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}
	code := j.GML.EPSGIn
	if code == "" {
		code = e.EPSG()
	}
	d := citygml.Decoder{Exclude: exclude, SwapXY: citygml.LatitudeFirst(code)}
	features, err := d.Decode(f)
	if d.Skipped > 0 {
		log.WithField("file", filepath.Base(path)).Warnf("skipped %d polygons that could not be triangulated", d.Skipped)
	}
	return features, e.EPSG(), err
}

func readScenario(ctx context.Context, s *cityscene.Scene, path, dir string) error {
	local, err := fetch(ctx, path, dir)
	if err != nil {
		return err
	}
	f, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("cityutil: opening scenario: %v", err)
	}
	defer f.Close()
	return s.Metadata.ReadTOML(f)
}

// writers returns the cleanup functions that write the outputs in o.
// Outputs bound for blob storage are staged by u.
func (o Output) writers(u *uploader) ([]cityscene.SceneManipulator, error) {
	var w []cityscene.Writer
	if o.Stage != "" {
		w = append(w, scenewriter.USDA{Path: u.maybeUpload(o.Stage), Extras: o.Extras})
	}
	if o.NavDump != "" {
		w = append(w, scenewriter.NavDump{
			Dir: u.maybeUploadDir(o.NavDump, scenewriter.VerticesFile, scenewriter.IndicesFile),
		})
	}
	if o.DebugDir != "" {
		base := FootprintFile[:len(FootprintFile)-len(filepath.Ext(FootprintFile))]
		d := u.maybeUploadDir(o.DebugDir, FootprintFile, base+".shx", base+".dbf", PreviewFile)
		if err := os.MkdirAll(d, os.ModePerm); err != nil {
			return nil, fmt.Errorf("cityutil: %v", err)
		}
		w = append(w,
			scenewriter.FootprintShapefile{Path: filepath.Join(d, FootprintFile)},
			scenewriter.Preview{Path: filepath.Join(d, PreviewFile)},
		)
	}
	funcs := []cityscene.SceneManipulator{cityscene.Write(w...)}
	if o.Checkpoint != "" {
		path := u.maybeUpload(o.Checkpoint)
		funcs = append(funcs, func(s *cityscene.Scene) error {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("cityutil: creating checkpoint: %v", err)
			}
			if err := cityscene.Save(f)(s); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		})
	}
	return funcs, nil
}
