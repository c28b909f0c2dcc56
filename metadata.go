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
	"io"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"
)

// Attribute is one scenario setting written to the scene.
type Attribute struct {
	Name string

	// Type is the scene type of the value: bool, int, uint, float or
	// token.
	Type string

	// Value is nil for settings that are declared without a value.
	Value interface{}

	Doc string
}

// Metadata describes the output scene as a whole.
type Metadata struct {
	// MetersPerUnit is 0.01 for centimeter scenes and 1 otherwise.
	MetersPerUnit float64
	UpAxis        string

	// Scenario holds the simulation defaults, sorted by name.
	Scenario []Attribute
}

// DefaultMetadata returns the default scene description.
func DefaultMetadata(centimeters bool) Metadata {
	m := Metadata{MetersPerUnit: 1, UpAxis: "Z"}
	if centimeters {
		m.MetersPerUnit = 0.01
	}
	m.Scenario = []Attribute{
		{"pathViz:enableTemperatureColor", "bool", true, "Color propagation paths by received power"},
		{"pathViz:maxDynamicRangeDB", "uint", uint(200), "Dynamic range of displayed paths, dB"},
		{"pathViz:maxNumPaths", "uint", uint(1000), "Maximum number of displayed paths"},
		{"pathViz:raysSparsity", "int", 1, "Display every nth ray"},
		{"pathViz:raysWidth", "float", 8.0, "Width of displayed rays"},
		{"sim:batches", "uint", uint(1), "Number of batches"},
		{"sim:duration", "float", 0.0, "Simulation duration, s"},
		{"sim:em:diffuse_type", "uint", uint(0), "Diffuse scattering model"},
		{"sim:em:interactions", "uint", uint(5), "Maximum number of ray interactions"},
		{"sim:em:rays", "uint", uint(500), "Number of emitted rays, thousands"},
		{"sim:em:sphere_radius", "float", 2.0, "Reception sphere radius"},
		{"sim:enable_training", "bool", nil, "Enable training mode"},
		{"sim:enable_wideband", "bool", true, "Enable wideband CFRs"},
		{"sim:gnb:panel_type", "token", "panel_02", "Antenna panel of the base stations"},
		{"sim:interval", "float", 0.0, "Sampling interval, s"},
		{"sim:is_full", "bool", nil, "Full simulation"},
		{"sim:is_seeded", "bool", false, "Use a fixed seed"},
		{"sim:ml_example", "uint", nil, "Machine learning example"},
		{"sim:mobility", "uint", uint(1), "Mobility model"},
		{"sim:num_procedural_ues", "uint", uint(0), "Number of procedural users"},
		{"sim:num_users", "uint", uint(0), "Number of users"},
		{"sim:pause", "bool", false, "Paused"},
		{"sim:play", "bool", false, "Playing"},
		{"sim:samples_per_slot", "uint", uint(0), "Samples per slot"},
		{"sim:seed", "uint", nil, "Random seed"},
		{"sim:slots_per_batch", "uint", uint(0), "Slots per batch"},
		{"sim:stop", "bool", true, "Stopped"},
		{"sim:ue:batch_drop_radius", "float", 10.0, "User drop radius per batch"},
		{"sim:ue:height", "float", 1.5, "User height, m"},
		{"sim:ue:panel_type", "token", "panel_01", "Antenna panel of the users"},
		{"sim:ueMaxSpeed", "float", 2.5, "Maximum user speed, m/s"},
		{"sim:ueMinSpeed", "float", 1.5, "Minimum user speed, m/s"},
	}
	return m
}

// Attribute returns the scenario setting called name, or nil.
func (m *Metadata) Attribute(name string) *Attribute {
	i := sort.Search(len(m.Scenario), func(i int) bool { return m.Scenario[i].Name >= name })
	if i < len(m.Scenario) && m.Scenario[i].Name == name {
		return &m.Scenario[i]
	}
	return nil
}

// Set changes the scenario setting called name to value, converted to
// the type of the setting.
func (m *Metadata) Set(name string, value interface{}) error {
	a := m.Attribute(name)
	if a == nil {
		return fmt.Errorf("cityscene: unknown scenario setting %q", name)
	}
	var err error
	var v interface{}
	switch a.Type {
	case "bool":
		v, err = cast.ToBoolE(value)
	case "int":
		v, err = cast.ToIntE(value)
	case "uint":
		var i int
		i, err = cast.ToIntE(value)
		if err == nil && i < 0 {
			err = fmt.Errorf("negative value %d", i)
		}
		v = uint(i)
	case "float":
		v, err = cast.ToFloat64E(value)
	default:
		v, err = cast.ToStringE(value)
	}
	if err != nil {
		return fmt.Errorf("cityscene: scenario setting %s: %v", name, err)
	}
	a.Value = v
	return nil
}

// ReadTOML overrides scenario settings from a TOML document. Keys may be
// given in full, such as "sim:em:rays" = 100, or as nested tables whose
// names are joined by colons.
func (m *Metadata) ReadTOML(r io.Reader) error {
	var doc map[string]interface{}
	if _, err := toml.DecodeReader(r, &doc); err != nil {
		return fmt.Errorf("cityscene: reading scenario settings: %v", err)
	}
	return m.setAll("", doc)
}

func (m *Metadata) setAll(prefix string, doc map[string]interface{}) error {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + ":" + k
		}
		if table, ok := doc[k].(map[string]interface{}); ok {
			if err := m.setAll(name, table); err != nil {
				return err
			}
			continue
		}
		if err := m.Set(name, doc[k]); err != nil {
			return err
		}
	}
	return nil
}
