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

// Package osm builds city features from OpenStreetMap building outlines
// downloaded from an Overpass API server.
package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/spatialmodel/cityscene"
	"github.com/spatialmodel/cityscene/kernel"
)

const (
	// DefaultEndpoint is the public Overpass API interpreter.
	DefaultEndpoint = "https://overpass-api.de/api/interpreter"

	// DefaultHeight is the height in meters given to buildings without
	// height or level tags.
	DefaultHeight = 10.0

	// LevelHeight is the height in meters of one building level.
	LevelHeight = 3.0

	// TerrainName is the name of the flat terrain feature.
	TerrainName = "osm_terrain"

	// MaxArea is the largest box in square kilometers that is sent to
	// the Overpass server.
	MaxArea = 100.0
)

// Bounds is a longitude-latitude box in degrees.
type Bounds struct {
	MinLon, MinLat, MaxLon, MaxLat float64
}

// Validate returns an error if b is not a valid box.
func (b Bounds) Validate() error {
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("osm: bounds %+v are outside of the globe", b)
	}
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return fmt.Errorf("osm: bounds %+v are empty", b)
	}
	a, err := b.Area()
	if err != nil {
		return err
	}
	if a > MaxArea {
		return fmt.Errorf("osm: bounds %+v cover %.1f km², more than the %g km² limit", b, a, MaxArea)
	}
	return nil
}

// Area returns the area of b in square kilometers, measured in the UTM
// zone given by b.UTM.
func (b Bounds) Area() (float64, error) {
	tr, err := cityscene.Transformer("EPSG:4326", b.UTM())
	if err != nil {
		return 0, fmt.Errorf("osm: %v", err)
	}
	corners := [][2]float64{
		{b.MinLon, b.MinLat}, {b.MaxLon, b.MinLat}, {b.MaxLon, b.MaxLat}, {b.MinLon, b.MaxLat},
	}
	var x, y [4]float64
	for i, c := range corners {
		if x[i], y[i], err = tr(c[0], c[1]); err != nil {
			return 0, fmt.Errorf("osm: projecting bounds: %v", err)
		}
	}
	var a float64
	for i := range x {
		j := (i + 1) % len(x)
		a += x[i]*y[j] - x[j]*y[i]
	}
	return math.Abs(a) / 2 / 1e6, nil
}

// UTM returns the EPSG code of the UTM zone the features of b are
// projected into.
func (b Bounds) UTM() string {
	return fmt.Sprintf("EPSG:%d", cityscene.UTMZone((b.MinLon+b.MaxLon)/2, (b.MinLat+b.MaxLat)/2))
}

// Options configure Import.
type Options struct {
	// Endpoint is the URL of the Overpass interpreter. DefaultEndpoint is
	// used if it is empty.
	Endpoint string

	// DefaultHeight replaces the package default if it is positive.
	DefaultHeight float64

	// Client performs the requests. http.DefaultClient is used if it is
	// nil.
	Client *http.Client

	// BackOff controls retries of failed requests. An exponential
	// backoff giving up after two minutes is used if it is nil.
	BackOff backoff.BackOff

	Log logrus.FieldLogger
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"geometry"`
}

// Query returns the Overpass QL query for the buildings in b.
func Query(b Bounds) string {
	return fmt.Sprintf(`[out:json][timeout:60];way["building"](%g,%g,%g,%g);out geom;`,
		b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Import downloads the buildings inside b and returns them as closed
// shells, projected into the UTM zone given by b.UTM, followed by a flat
// terrain feature covering b at height zero.
func Import(ctx context.Context, b Bounds, o Options) ([]*cityscene.Feature, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	r, err := download(ctx, b, o)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var resp response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("osm: decoding response: %v", err)
	}
	return features(b, resp.Elements, o)
}

func download(ctx context.Context, b Bounds, o Options) (io.ReadCloser, error) {
	endpoint := o.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	bo := o.BackOff
	if bo == nil {
		e := backoff.NewExponentialBackOff()
		e.MaxElapsedTime = 2 * time.Minute
		bo = e
	}
	form := url.Values{"data": {Query(b)}}.Encode()

	var body io.ReadCloser
	err := backoff.RetryNotify(
		func() error {
			req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form))
			if err != nil {
				return backoff.Permanent(err)
			}
			req = req.WithContext(ctx)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp, err := client.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				return err
			}
			if resp.StatusCode != http.StatusOK {
				msg, _ := ioutil.ReadAll(io.LimitReader(resp.Body, 512))
				resp.Body.Close()
				err = fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg)))
				// Only overload and server errors are worth another try.
				if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
					return err
				}
				return backoff.Permanent(err)
			}
			body = resp.Body
			return nil
		},
		backoff.WithContext(bo, ctx),
		func(err error, d time.Duration) {
			o.Log.Warnf("osm: %v: retrying in %v", err, d)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("osm: downloading %s: %v", endpoint, err)
	}
	return body, nil
}

func features(b Bounds, elements []element, o Options) ([]*cityscene.Feature, error) {
	tr, err := cityscene.Transformer("EPSG:4326", b.UTM())
	if err != nil {
		return nil, err
	}
	defaultHeight := DefaultHeight
	if o.DefaultHeight > 0 {
		defaultHeight = o.DefaultHeight
	}

	var out []*cityscene.Feature
	for _, e := range elements {
		if e.Type != "way" || len(e.Geometry) < 4 {
			continue
		}
		log := o.Log.WithField("feature", e.ID)
		ring := make([]r3.Vec, 0, len(e.Geometry))
		for _, g := range e.Geometry {
			x, y, err := tr(g.Lon, g.Lat)
			if err != nil {
				return nil, fmt.Errorf("osm: projecting way %d: %v", e.ID, err)
			}
			ring = append(ring, r3.Vec{X: x, Y: y})
		}
		if ring[0] != ring[len(ring)-1] {
			log.Warn("skipping building with an open outline")
			continue
		}
		ring = ring[:len(ring)-1]
		if signedArea(ring) < 0 {
			for i, j := 0, len(ring)-1; i < j; i, j = i+1, j-1 {
				ring[i], ring[j] = ring[j], ring[i]
			}
		}
		v, idx, tags, err := kernel.Extrude(ring, height(e.Tags, defaultHeight), true)
		if err != nil {
			log.Warnf("skipping building: %v", err)
			continue
		}
		name := e.Tags["name"]
		if name == "" {
			name = "building"
		}
		out = append(out, &cityscene.Feature{
			Name:       fmt.Sprintf("%s_%d", name, e.ID),
			Kind:       cityscene.Building,
			Vertices:   v,
			Indices:    idx,
			SurfaceTag: tags,
		})
	}
	o.Log.Infof("osm: imported %d buildings", len(out))

	var corners []r3.Vec
	for _, c := range [][2]float64{{b.MinLon, b.MinLat}, {b.MaxLon, b.MinLat}, {b.MaxLon, b.MaxLat}, {b.MinLon, b.MaxLat}} {
		x, y, err := tr(c[0], c[1])
		if err != nil {
			return nil, fmt.Errorf("osm: projecting bounds: %v", err)
		}
		corners = append(corners, r3.Vec{X: x, Y: y})
	}
	lower, upper := kernel.Bounds(corners)
	v, idx := kernel.Rectangle(lower, upper, 0)
	out = append(out, &cityscene.Feature{
		Name:     TerrainName,
		Kind:     cityscene.Terrain,
		Vertices: v,
		Indices:  idx,
	})
	return out, nil
}

// height returns the height of a building from its tags.
func height(tags map[string]string, def float64) float64 {
	if h, ok := parseLength(tags["height"]); ok && h > 0 {
		return h
	}
	if l, err := strconv.ParseFloat(strings.TrimSpace(tags["building:levels"]), 64); err == nil && l > 0 {
		return l * LevelHeight
	}
	return def
}

// parseLength parses an OSM length such as "12", "12.5 m" or "40'".
func parseLength(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	scale := 1.0
	switch {
	case strings.HasSuffix(s, "ft"):
		s, scale = strings.TrimSuffix(s, "ft"), 0.3048
	case strings.HasSuffix(s, "'"):
		s, scale = strings.TrimSuffix(s, "'"), 0.3048
	case strings.HasSuffix(s, "m"):
		s = strings.TrimSuffix(s, "m")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v * scale, true
}

func signedArea(ring []r3.Vec) float64 {
	var a float64
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		a += p.X*q.Y - q.X*p.Y
	}
	return a / 2
}
