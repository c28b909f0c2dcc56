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

package cityscene

import (
	"fmt"
	"strings"
)

// Strategy selects how the terrain is cut against building footprints.
type Strategy int

const (
	// Precise cuts the terrain along the outline of the footprints and
	// keeps both the outside and the covered parts.
	Precise Strategy = iota

	// Rough drops every terrain triangle whose centroid lies under a
	// footprint. It only produces the outside part.
	Rough
)

func (s Strategy) String() string {
	switch s {
	case Precise:
		return "precise"
	case Rough:
		return "rough"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy returns the strategy called name.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "precise":
		return Precise, nil
	case "rough":
		return Rough, nil
	}
	return 0, fmt.Errorf("cityscene: invalid cutting strategy %q", name)
}

// MobilitySource selects what the mobility domain is built from.
type MobilitySource int

const (
	// CutTerrain builds the mobility domain from the terrain minus the
	// building footprints plus the interior floors.
	CutTerrain MobilitySource = iota

	// CopyTerrain uses the whole terrain as the outdoor mobility domain
	// and leaves out interior floors.
	CopyTerrain
)

func (m MobilitySource) String() string {
	switch m {
	case CutTerrain:
		return "cut-terrain"
	case CopyTerrain:
		return "copy-terrain"
	default:
		return fmt.Sprintf("MobilitySource(%d)", int(m))
	}
}

// ParseMobilitySource returns the mobility source called name.
func ParseMobilitySource(name string) (MobilitySource, error) {
	switch strings.ToLower(name) {
	case "cut-terrain", "cut":
		return CutTerrain, nil
	case "copy-terrain", "copy", "groundplane":
		return CopyTerrain, nil
	}
	return 0, fmt.Errorf("cityscene: invalid mobility source %q", name)
}

// Config holds the settings of a conversion run. Lengths are in the
// units of the target coordinate reference system, usually meters.
type Config struct {
	// WeldTolerance is the distance within which vertices are merged.
	WeldTolerance float64

	// FootprintTolerance is the height above the base of a building
	// below which triangles belong to its footprint.
	FootprintTolerance float64

	// SliceInterval is the storey height. The first slice is SliceOffset
	// above the base of a building and the last one at least
	// SliceClearance below its top.
	SliceInterval, SliceOffset, SliceClearance float64

	// GridSpacing is the cell size of interior floor grids.
	GridSpacing float64

	// InteriorTolerance is how far interior floor vertices may extend
	// past the bounding box of their building.
	InteriorTolerance float64

	// TerrainMargin is how far terrain is kept beyond the buildings.
	TerrainMargin float64

	// FlatTerrainMargin is how far the terrain made up for sites
	// without terrain extends beyond the buildings.
	FlatTerrainMargin float64

	// MaxEdgeLength bounds the edge length of the terrain triangles.
	MaxEdgeLength float64

	// Interiors turns interior floor generation on.
	Interiors bool

	Strategy       Strategy
	MobilitySource MobilitySource

	// Centimeters makes the output scene use centimeters instead of
	// meters.
	Centimeters bool

	// AbortOnInteriorFailure makes a failed interior fail the whole run
	// instead of only dropping that interior.
	AbortOnInteriorFailure bool

	// FootprintStart and FootprintStop select the buildings, by position,
	// that contribute footprints. A negative FootprintStop means all
	// buildings from FootprintStart on.
	FootprintStart, FootprintStop int
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		WeldTolerance:      1e-4,
		FootprintTolerance: 0.1,
		SliceInterval:      3,
		SliceOffset:        0.1,
		SliceClearance:     2,
		GridSpacing:        1,
		InteriorTolerance:  0.5,
		TerrainMargin:      100,
		FlatTerrainMargin:  10,
		MaxEdgeLength:      4,
		Interiors:          true,
		Strategy:           Precise,
		MobilitySource:     CutTerrain,
		Centimeters:        true,
		FootprintStop:      -1,
	}
}

// Validate returns an error if a setting is out of range.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"WeldTolerance", c.WeldTolerance},
		{"SliceInterval", c.SliceInterval},
		{"GridSpacing", c.GridSpacing},
		{"MaxEdgeLength", c.MaxEdgeLength},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return fmt.Errorf("cityscene: %s must be positive, got %g", p.name, p.v)
		}
	}
	nonNegative := []struct {
		name string
		v    float64
	}{
		{"FootprintTolerance", c.FootprintTolerance},
		{"SliceOffset", c.SliceOffset},
		{"SliceClearance", c.SliceClearance},
		{"InteriorTolerance", c.InteriorTolerance},
		{"TerrainMargin", c.TerrainMargin},
		{"FlatTerrainMargin", c.FlatTerrainMargin},
	}
	for _, p := range nonNegative {
		if !(p.v >= 0) {
			return fmt.Errorf("cityscene: %s must not be negative, got %g", p.name, p.v)
		}
	}
	switch c.Strategy {
	case Precise, Rough:
	default:
		return fmt.Errorf("cityscene: invalid cutting strategy %v", c.Strategy)
	}
	switch c.MobilitySource {
	case CutTerrain, CopyTerrain:
	default:
		return fmt.Errorf("cityscene: invalid mobility source %v", c.MobilitySource)
	}
	if c.FootprintStart < 0 {
		return fmt.Errorf("cityscene: FootprintStart must not be negative, got %d", c.FootprintStart)
	}
	if c.FootprintStop >= 0 && c.FootprintStop < c.FootprintStart {
		return fmt.Errorf("cityscene: FootprintStop (%d) is before FootprintStart (%d)", c.FootprintStop, c.FootprintStart)
	}
	return nil
}

// UnitScale returns the factor that converts scene lengths to output
// units.
func (c Config) UnitScale() float64 {
	if c.Centimeters {
		return 100
	}
	return 1
}

// slicePlanes returns the slice heights for a building spanning the
// heights lower to upper.
func (c Config) slicePlanes(lower, upper float64) []float64 {
	var zs []float64
	for k := 0; ; k++ {
		z := lower + c.SliceOffset + float64(k)*c.SliceInterval
		if z >= upper-c.SliceClearance {
			return zs
		}
		zs = append(zs, z)
	}
}

// footprintInRange reports whether building i contributes a footprint.
func (c Config) footprintInRange(i int) bool {
	return i >= c.FootprintStart && (c.FootprintStop < 0 || i < c.FootprintStop)
}
