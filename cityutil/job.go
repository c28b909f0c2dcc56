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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/internal/hash"
	"github.com/spatialmodel/cityscene/osm"
)

// Kind is the source of a job's city model.
type Kind int

const (
	// GML jobs read CityGML files.
	GML Kind = iota
	// OBJ jobs read Wavefront OBJ files.
	OBJ
	// OSM jobs download building outlines from OpenStreetMap.
	OSM
)

func (k Kind) String() string {
	switch k {
	case GML:
		return "gml"
	case OBJ:
		return "obj"
	case OSM:
		return "osm"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// GMLImport describes a job that reads city model files. It is used for
// both CityGML and OBJ sources.
type GMLImport struct {
	// Inputs are local paths or blob storage URLs.
	Inputs []string

	// EPSGIn is the reference system of the inputs. For CityGML it is
	// read from the file envelope if empty. EPSGOut is the reference
	// system of the scene; no reprojection happens if it is empty or
	// equal to EPSGIn.
	EPSGIn, EPSGOut string

	// Exclude holds the ids of buildings to leave out.
	Exclude []string
}

// OSMImport describes a job that downloads buildings from the Overpass API.
type OSMImport struct {
	Bounds        osm.Bounds
	Endpoint      string
	DefaultHeight float64
}

// Output says where the results of a job go. Every field is a local path
// or a blob storage URL. Empty fields are not written.
type Output struct {
	// Stage is the USDA scene file.
	Stage string

	// NavDump is a directory for the binary mobility mesh.
	NavDump string

	// DebugDir receives the footprint shapefile and a preview image.
	DebugDir string

	// Checkpoint receives a gob file of the finished scene.
	Checkpoint string

	// Extras adds the mobility remainder and footprints to the stage.
	Extras bool
}

// Job is a validated conversion request. Exactly one of GML and OSM is
// set, according to Kind.
type Job struct {
	Kind     Kind
	GML      *GMLImport
	OSM      *OSMImport
	Pipeline cityscene.Config

	// Scenario is an optional TOML file that overrides scenario
	// metadata.
	Scenario string

	Output Output
}

// Validate checks that the job can be run.
func (j Job) Validate() error {
	switch j.Kind {
	case GML, OBJ:
		if j.GML == nil {
			return fmt.Errorf("cityutil: %v job without an import description", j.Kind)
		}
		if j.OSM != nil {
			return fmt.Errorf("cityutil: %v job with an OSM description", j.Kind)
		}
		if len(j.GML.Inputs) == 0 {
			return fmt.Errorf("cityutil: no input files")
		}
		for _, in := range j.GML.Inputs {
			if strings.TrimSpace(in) == "" {
				return fmt.Errorf("cityutil: empty input file name")
			}
		}
		if j.Kind == OBJ && j.GML.EPSGOut != "" && j.GML.EPSGIn == "" {
			return fmt.Errorf("cityutil: OBJ inputs need --epsg_in to be reprojected")
		}
		for _, code := range []string{j.GML.EPSGIn, j.GML.EPSGOut} {
			if code == "" {
				continue
			}
			if _, err := cityscene.SpatialReference(code); err != nil {
				return fmt.Errorf("cityutil: %v", err)
			}
		}
	case OSM:
		if j.OSM == nil {
			return fmt.Errorf("cityutil: osm job without a bounding box")
		}
		if j.GML != nil {
			return fmt.Errorf("cityutil: osm job with input files")
		}
		if err := j.OSM.Bounds.Validate(); err != nil {
			return err
		}
		if !(j.OSM.DefaultHeight > 0) {
			return fmt.Errorf("cityutil: default building height must be positive, got %g", j.OSM.DefaultHeight)
		}
	default:
		return fmt.Errorf("cityutil: invalid job kind %v", j.Kind)
	}
	if err := j.Pipeline.Validate(); err != nil {
		return err
	}
	if j.Output.Stage == "" && j.Output.NavDump == "" && j.Output.Checkpoint == "" {
		return fmt.Errorf("cityutil: no output requested")
	}
	return nil
}

// ID returns a short identifier that is the same for identical jobs.
func (j Job) ID() string {
	return hash.Short(j, 12)
}

// JobFromConfig builds a job of the given kind from cfg. args are the
// input files of GML and OBJ jobs.
func JobFromConfig(cfg *viper.Viper, kind Kind, args []string) (Job, error) {
	pipeline, err := PipelineConfig(cfg)
	if err != nil {
		return Job{}, err
	}
	j := Job{
		Kind:     kind,
		Pipeline: pipeline,
		Scenario: os.ExpandEnv(cfg.GetString("scenario")),
		Output:   OutputFromConfig(cfg),
	}
	switch kind {
	case GML, OBJ:
		exclude, err := cast.ToStringSliceE(cfg.Get("exclude"))
		if err != nil {
			return Job{}, fmt.Errorf("cityutil: reading exclude: %v", err)
		}
		j.GML = &GMLImport{
			Inputs:  expandStringSlice(args),
			EPSGIn:  cfg.GetString("epsg_in"),
			EPSGOut: cfg.GetString("epsg_out"),
			Exclude: exclude,
		}
	case OSM:
		j.OSM = &OSMImport{
			Bounds: osm.Bounds{
				MinLon: cfg.GetFloat64("min_lon"),
				MinLat: cfg.GetFloat64("min_lat"),
				MaxLon: cfg.GetFloat64("max_lon"),
				MaxLat: cfg.GetFloat64("max_lat"),
			},
			Endpoint:      cfg.GetString("overpass_url"),
			DefaultHeight: cfg.GetFloat64("default_height"),
		}
	}
	if j.Output.Stage == "" && j.Output.NavDump == "" && j.Output.Checkpoint == "" {
		// Default to a stage in the working directory named after the input.
		if j.GML != nil && len(j.GML.Inputs) > 0 {
			j.Output.Stage = stageName(j.GML.Inputs[0])
		} else if j.OSM != nil {
			j.Output.Stage = "osm_" + j.ID() + ".usda"
		}
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}

// OutputFromConfig reads the output locations from cfg.
func OutputFromConfig(cfg *viper.Viper) Output {
	return Output{
		Stage:      os.ExpandEnv(cfg.GetString("output_stage")),
		NavDump:    os.ExpandEnv(cfg.GetString("navdump")),
		DebugDir:   os.ExpandEnv(cfg.GetString("debug_dir")),
		Checkpoint: os.ExpandEnv(cfg.GetString("checkpoint")),
		Extras:     cfg.GetBool("extras"),
	}
}

// PipelineConfig reads the conversion settings from cfg.
func PipelineConfig(cfg *viper.Viper) (cityscene.Config, error) {
	c := cityscene.DefaultConfig()
	c.WeldTolerance = cfg.GetFloat64("weld_tolerance")
	c.FootprintTolerance = cfg.GetFloat64("footprint_tolerance")
	c.SliceInterval = cfg.GetFloat64("slice_interval")
	c.SliceOffset = cfg.GetFloat64("slice_offset")
	c.SliceClearance = cfg.GetFloat64("slice_clearance")
	c.GridSpacing = cfg.GetFloat64("grid_spacing")
	c.InteriorTolerance = cfg.GetFloat64("interior_tolerance")
	c.TerrainMargin = cfg.GetFloat64("terrain_margin")
	c.FlatTerrainMargin = cfg.GetFloat64("flat_terrain_margin")
	c.MaxEdgeLength = cfg.GetFloat64("max_edge_length")
	c.Interiors = !cfg.GetBool("disable_interiors")
	c.Centimeters = cfg.GetBool("cm")
	c.AbortOnInteriorFailure = cfg.GetBool("abort_on_interior_failure")
	c.FootprintStart = cfg.GetInt("footprint_start")
	c.FootprintStop = cfg.GetInt("footprint_stop")
	if cfg.GetBool("rough") {
		c.Strategy = cityscene.Rough
	}
	var err error
	if c.MobilitySource, err = cityscene.ParseMobilitySource(cfg.GetString("mobility_source")); err != nil {
		return c, err
	}
	return c, c.Validate()
}

// expandStringSlice expands environment variables in the elements of s.
func expandStringSlice(s []string) []string {
	o := make([]string, len(s))
	for i, ss := range s {
		o[i] = os.ExpandEnv(ss)
	}
	return o
}

// stageName returns the default stage path for a job with the given
// first input.
func stageName(input string) string {
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".usda"
}
