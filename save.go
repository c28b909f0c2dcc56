package cityscene

import (
	"encoding/gob"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"
)

// checkpoint is the part of a Scene that Save writes.
type checkpoint struct {
	Config   Config
	Metadata Metadata

	Exteriors, Interiors                    []*Mesh
	Footprint, Terrain, Mobility, Remainder *Mesh

	Center  r3.Vec
	ZOffset float64
	Scale   float64
}

// Save returns a function that saves the output meshes of the scene to
// a gob file (format description at https://golang.org/pkg/encoding/gob/).
func Save(w io.Writer) SceneManipulator {
	return func(s *Scene) error {
		c := checkpoint{
			Config:    s.Config,
			Metadata:  s.Metadata,
			Exteriors: s.Exteriors,
			Interiors: s.Interiors,
			Footprint: s.Footprint,
			Terrain:   s.Terrain,
			Mobility:  s.Mobility,
			Remainder: s.Remainder,
			Center:    s.Center,
			ZOffset:   s.ZOffset,
			Scale:     s.Scale,
		}
		if err := gob.NewEncoder(w).Encode(c); err != nil {
			return fmt.Errorf("cityscene.Scene.Save: %v", err)
		}
		return nil
	}
}

// Load returns a function that loads the output meshes of a previously
// Saved scene, so that they can be written again without rerunning the
// pipeline.
func Load(r io.Reader) SceneManipulator {
	return func(s *Scene) error {
		var c checkpoint
		if err := gob.NewDecoder(r).Decode(&c); err != nil {
			return fmt.Errorf("cityscene.Scene.Load: %v", err)
		}
		s.Config = c.Config
		s.Metadata = c.Metadata
		s.Exteriors = c.Exteriors
		s.Interiors = c.Interiors
		s.Footprint = c.Footprint
		s.Terrain = c.Terrain
		s.Mobility = c.Mobility
		s.Remainder = c.Remainder
		s.Center = c.Center
		s.ZOffset = c.ZOffset
		s.Scale = c.Scale
		return nil
	}
}
