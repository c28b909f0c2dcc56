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

// Package cityutil holds the command-line interface of cityscene and the
// job layer that downloads inputs, runs conversions and uploads outputs.
package cityutil

import (
	"context"
	"fmt"
	"os"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/osm"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	def := cityscene.DefaultConfig()
	convert := func() []*pflag.FlagSet {
		return []*pflag.FlagSet{gmlCmd.Flags(), objCmd.Flags(), osmCmd.Flags()}
	}
	outputs := func() []*pflag.FlagSet {
		return append(convert(), rewriteCmd.Flags())
	}
	files := func() []*pflag.FlagSet {
		return []*pflag.FlagSet{gmlCmd.Flags(), objCmd.Flags()}
	}

	// Options are the configuration options available to cityscene.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log_level",
			usage: `
              log_level is the lowest level of log messages that are shown:
              debug, info, warning or error.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "log_file",
			usage: `
              log_file is a file that receives a copy of the log messages.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "epsg_in",
			usage: `
              epsg_in is the coordinate reference system of the input files,
              for example EPSG:3826. For CityGML files it is read from the
              file envelope if it is not given.`,
			defaultVal: "",
			flagsets:   files(),
		},
		{
			name: "epsg_out",
			usage: `
              epsg_out is the coordinate reference system of the scene. If it is
              empty the input coordinates are kept.`,
			defaultVal: "",
			flagsets:   files(),
		},
		{
			name: "exclude",
			usage: `
              exclude lists the ids of buildings to leave out.`,
			defaultVal: []string{},
			flagsets:   files(),
		},
		{
			name: "output_stage",
			usage: `
              output_stage is the USDA scene file to write. It can be a local
              path or a gs://, s3://, file:// or mem:// location. The default
              is named after the first input file.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   outputs(),
		},
		{
			name: "navdump",
			usage: `
              navdump is a directory that receives the mobility domain as raw
              vertex and index buffers.`,
			defaultVal: "",
			flagsets:   outputs(),
		},
		{
			name: "debug_dir",
			usage: `
              debug_dir is a directory that receives a shapefile of the building
              footprints and a preview image of the mobility domain.`,
			defaultVal: "",
			flagsets:   outputs(),
		},
		{
			name: "checkpoint",
			usage: `
              checkpoint is a file that receives the finished scene in gob format.`,
			defaultVal: "",
			flagsets:   outputs(),
		},
		{
			name: "scenario",
			usage: `
              scenario is a TOML file whose values override the default
              simulation settings stored in the scene.`,
			defaultVal: "",
			flagsets:   outputs(),
		},
		{
			name: "extras",
			usage: `
              extras adds the terrain under the buildings and the building
              footprints to the scene.`,
			defaultVal: false,
			flagsets:   outputs(),
		},
		{
			name: "cm",
			usage: `
              cm makes the scene use centimeters instead of meters.`,
			defaultVal: def.Centimeters,
			flagsets:   convert(),
		},
		{
			name: "disable_interiors",
			usage: `
              disable_interiors turns off the generation of walkable
              building floors.`,
			defaultVal: !def.Interiors,
			flagsets:   convert(),
		},
		{
			name: "abort_on_interior_failure",
			usage: `
              abort_on_interior_failure makes a building interior that cannot be
              built fail the whole conversion instead of only being left out.`,
			defaultVal: def.AbortOnInteriorFailure,
			flagsets:   convert(),
		},
		{
			name: "rough",
			usage: `
              rough removes whole terrain triangles under buildings instead
              of cutting them along the footprint outlines.`,
			defaultVal: def.Strategy == cityscene.Rough,
			flagsets:   convert(),
		},
		{
			name: "mobility_source",
			usage: `
              mobility_source selects what the mobility domain is built from:
              cut-terrain (terrain minus footprints plus interior floors) or
              copy-terrain (the whole terrain).`,
			defaultVal: def.MobilitySource.String(),
			flagsets:   convert(),
		},
		{
			name: "weld_tolerance",
			usage: `
              weld_tolerance is the distance within which vertices are merged.`,
			defaultVal: def.WeldTolerance,
			flagsets:   convert(),
		},
		{
			name: "footprint_tolerance",
			usage: `
              footprint_tolerance is the height above the base of a building
              below which its triangles belong to the footprint.`,
			defaultVal: def.FootprintTolerance,
			flagsets:   convert(),
		},
		{
			name: "footprint_start",
			usage: `
              footprint_start is the position of the first building that
              contributes a footprint.`,
			defaultVal: def.FootprintStart,
			flagsets:   convert(),
		},
		{
			name: "footprint_stop",
			usage: `
              footprint_stop is the position after the last building that
              contributes a footprint. -1 means all remaining buildings.`,
			defaultVal: def.FootprintStop,
			flagsets:   convert(),
		},
		{
			name: "slice_interval",
			usage: `
              slice_interval is the storey height.`,
			defaultVal: def.SliceInterval,
			flagsets:   convert(),
		},
		{
			name: "slice_offset",
			usage: `
              slice_offset is the height of the first floor above the base
              of a building.`,
			defaultVal: def.SliceOffset,
			flagsets:   convert(),
		},
		{
			name: "slice_clearance",
			usage: `
              slice_clearance is the minimum distance between the top floor
              and the top of a building.`,
			defaultVal: def.SliceClearance,
			flagsets:   convert(),
		},
		{
			name: "grid_spacing",
			usage: `
              grid_spacing is the cell size of the interior floor grids.`,
			defaultVal: def.GridSpacing,
			flagsets:   convert(),
		},
		{
			name: "interior_tolerance",
			usage: `
              interior_tolerance is how far interior floors may extend past
              the bounding box of their building.`,
			defaultVal: def.InteriorTolerance,
			flagsets:   convert(),
		},
		{
			name: "terrain_margin",
			usage: `
              terrain_margin is how far the terrain is kept beyond the buildings.`,
			defaultVal: def.TerrainMargin,
			flagsets:   convert(),
		},
		{
			name: "flat_terrain_margin",
			usage: `
              flat_terrain_margin is how far the flat ground made up for sites
              without terrain extends beyond the buildings.`,
			defaultVal: def.FlatTerrainMargin,
			flagsets:   convert(),
		},
		{
			name: "max_edge_length",
			usage: `
              max_edge_length is the longest edge allowed in the terrain mesh.`,
			defaultVal: def.MaxEdgeLength,
			flagsets:   convert(),
		},
		{
			name: "min_lon",
			usage: `
              min_lon is the western edge of the area to download, in degrees.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
		{
			name: "min_lat",
			usage: `
              min_lat is the southern edge of the area to download, in degrees.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
		{
			name: "max_lon",
			usage: `
              max_lon is the eastern edge of the area to download, in degrees.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
		{
			name: "max_lat",
			usage: `
              max_lat is the northern edge of the area to download, in degrees.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
		{
			name: "overpass_url",
			usage: `
              overpass_url is the Overpass API interpreter to download
              buildings from.`,
			defaultVal: osm.DefaultEndpoint,
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
		{
			name: "default_height",
			usage: `
              default_height is the height of buildings without height or
              level tags.`,
			defaultVal: float64(osm.DefaultHeight),
			flagsets:   []*pflag.FlagSet{osmCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("CITYSCENE")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(gmlCmd)
	Root.AddCommand(objCmd)
	Root.AddCommand(osmCmd)
	Root.AddCommand(rewriteCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("cityscene: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "cityscene",
	Short: "Convert city models into simulation scenes.",
	Long: `cityscene converts 3D city models into scenes for radio propagation and
mobility simulation. Use the subcommands specified below to choose the source
of the city model.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'CITYSCENE_var' where 'var' is the
name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of cityscene.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("cityscene v%s\n", cityscene.Version)
	},
	DisableAutoGenTag: true,
}

var gmlCmd = &cobra.Command{
	Use:   "gml [files...]",
	Short: "Convert CityGML files.",
	Long: `gml converts one or more CityGML files into a scene. The buildings and
relief features of all files are combined.`,
	Args:              cobra.MinimumNArgs(1),
	RunE:              runJob(GML),
	DisableAutoGenTag: true,
}

var objCmd = &cobra.Command{
	Use:   "obj [files...]",
	Short: "Convert Wavefront OBJ files.",
	Long: `obj converts one or more OBJ files into a scene. Objects whose names
contain "terrain" or "ground" become terrain; all others become buildings.`,
	Args:              cobra.MinimumNArgs(1),
	RunE:              runJob(OBJ),
	DisableAutoGenTag: true,
}

var osmCmd = &cobra.Command{
	Use:   "osm",
	Short: "Convert OpenStreetMap buildings.",
	Long: `osm downloads the building outlines inside a longitude-latitude box from
the Overpass API, extrudes them to their tagged heights and converts them into
a scene on flat ground.`,
	Args:              cobra.NoArgs,
	RunE:              runJob(OSM),
	DisableAutoGenTag: true,
}

var rewriteCmd = &cobra.Command{
	Use:   "rewrite checkpoint",
	Short: "Write a saved scene again.",
	Long: `rewrite loads a scene saved with --checkpoint and writes it to the
requested outputs without converting the city model again. A --scenario file
replaces the saved simulation settings.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, closer, err := NewLogger(cmd.OutOrStderr(), Cfg.GetString("log_level"), Cfg.GetString("log_file"))
		if err != nil {
			return err
		}
		defer closer.Close()
		_, err = Rewrite(context.Background(), os.ExpandEnv(args[0]), os.ExpandEnv(Cfg.GetString("scenario")),
			OutputFromConfig(Cfg), log, cmd.OutOrStdout())
		return err
	},
	DisableAutoGenTag: true,
}

func runJob(kind Kind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log, closer, err := NewLogger(cmd.OutOrStderr(), Cfg.GetString("log_level"), Cfg.GetString("log_file"))
		if err != nil {
			return err
		}
		defer closer.Close()
		j, err := JobFromConfig(Cfg, kind, args)
		if err != nil {
			return err
		}
		_, err = Convert(context.Background(), j, log, cmd.OutOrStdout())
		return err
	}
}
