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
	"math"
	"reflect"
	"sort"
	"strings"
	"testing"
)

func TestSlicePlanes(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		lower, upper float64
		want         []float64
	}{
		{lower: 0, upper: 6, want: []float64{0.1, 3.1}},
		{lower: 10, upper: 22, want: []float64{10.1, 13.1, 16.1, 19.1}},
		{lower: 0, upper: 2, want: nil},
		{lower: 0, upper: 2.2, want: []float64{0.1}},
	}
	for _, test := range tests {
		have := cfg.slicePlanes(test.lower, test.upper)
		if len(have) != len(test.want) {
			t.Errorf("%g–%g: have %v, want %v", test.lower, test.upper, have, test.want)
			continue
		}
		for i := range have {
			if math.Abs(have[i]-test.want[i]) > 1e-9 {
				t.Errorf("%g–%g: have %v, want %v", test.lower, test.upper, have, test.want)
				break
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		change func(*Config)
	}{
		{"weld", func(c *Config) { c.WeldTolerance = 0 }},
		{"interval", func(c *Config) { c.SliceInterval = -3 }},
		{"margin", func(c *Config) { c.TerrainMargin = -1 }},
		{"nan", func(c *Config) { c.MaxEdgeLength = math.NaN() }},
		{"strategy", func(c *Config) { c.Strategy = 7 }},
		{"source", func(c *Config) { c.MobilitySource = -1 }},
		{"range", func(c *Config) { c.FootprintStart, c.FootprintStop = 4, 2 }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := DefaultConfig()
			test.change(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFootprintInRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FootprintStart, cfg.FootprintStop = 1, 3
	var have []int
	for i := 0; i < 5; i++ {
		if cfg.footprintInRange(i) {
			have = append(have, i)
		}
	}
	if !reflect.DeepEqual(have, []int{1, 2}) {
		t.Errorf("have %v, want [1 2]", have)
	}
}

func TestParse(t *testing.T) {
	if s, err := ParseStrategy("Rough"); err != nil || s != Rough {
		t.Errorf("have %v, %v", s, err)
	}
	if _, err := ParseStrategy("fast"); err == nil {
		t.Error("expected an error")
	}
	for _, name := range []string{"copy-terrain", "groundplane"} {
		if m, err := ParseMobilitySource(name); err != nil || m != CopyTerrain {
			t.Errorf("%s: have %v, %v", name, m, err)
		}
	}
	if Precise.String() != "precise" || CutTerrain.String() != "cut-terrain" {
		t.Error("wrong names")
	}
}

func TestDefaultMetadata(t *testing.T) {
	m := DefaultMetadata(true)
	if m.MetersPerUnit != 0.01 || m.UpAxis != "Z" {
		t.Errorf("stage settings: %+v", m)
	}
	if !sort.SliceIsSorted(m.Scenario, func(i, j int) bool { return m.Scenario[i].Name < m.Scenario[j].Name }) {
		t.Error("scenario settings are not sorted")
	}
	want := map[string]interface{}{
		"sim:em:rays":          uint(500),
		"sim:ue:height":        1.5,
		"sim:gnb:panel_type":   "panel_02",
		"sim:enable_wideband":  true,
		"pathViz:raysSparsity": 1,
		"sim:seed":             nil,
	}
	for name, v := range want {
		a := m.Attribute(name)
		if a == nil {
			t.Errorf("missing %s", name)
			continue
		}
		if a.Value != v {
			t.Errorf("%s: have %v, want %v", name, a.Value, v)
		}
	}
}

func TestMetadataSet(t *testing.T) {
	m := DefaultMetadata(false)
	if err := m.Set("sim:seed", "42"); err != nil {
		t.Fatal(err)
	}
	if v := m.Attribute("sim:seed").Value; v != uint(42) {
		t.Errorf("seed: have %#v", v)
	}
	if err := m.Set("sim:num_users", -1); err == nil {
		t.Error("expected an error for a negative count")
	}
	if err := m.Set("sim:nothing", 1); err == nil {
		t.Error("expected an error for an unknown setting")
	}
}

func TestMetadataReadTOML(t *testing.T) {
	m := DefaultMetadata(false)
	doc := `
"sim:em:rays" = 100
"pathViz:raysWidth" = 4

[sim.ue]
height = 2
panel_type = "panel_03"
`
	if err := m.ReadTOML(strings.NewReader(doc)); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"sim:em:rays":       uint(100),
		"pathViz:raysWidth": 4.0,
		"sim:ue:height":     2.0,
		"sim:ue:panel_type": "panel_03",
	}
	for name, v := range want {
		if have := m.Attribute(name).Value; have != v {
			t.Errorf("%s: have %#v, want %#v", name, have, v)
		}
	}
	if err := m.ReadTOML(strings.NewReader(`bogus = 1`)); err == nil {
		t.Error("expected an error for an unknown setting")
	}
}
