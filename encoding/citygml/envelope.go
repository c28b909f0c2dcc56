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

package citygml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Envelope is the extent a CityGML file declares for its contents.
type Envelope struct {
	Lower, Upper r3.Vec

	// SRS is the srsName of the envelope, such as
	// "urn:ogc:def:crs:EPSG::3826".
	SRS string
}

// EPSG returns the EPSG code in the envelope's srsName in the form
// "EPSG:nnnn", or "" if there is none. Both the URN form
// "urn:ogc:def:crs:EPSG::3826" and the URL form
// "http://www.opengis.net/def/crs/EPSG/0/3826" are understood.
func (e Envelope) EPSG() string {
	i := strings.LastIndex(strings.ToUpper(e.SRS), "EPSG")
	if i < 0 {
		return ""
	}
	parts := strings.FieldsFunc(e.SRS[i+4:], func(r rune) bool { return r == ':' || r == '/' })
	if len(parts) == 0 {
		return ""
	}
	code := parts[len(parts)-1]
	for _, r := range code {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return "EPSG:" + code
}

// latitudeFirst holds the geographic reference systems whose
// coordinates GML lists as latitude, longitude.
var latitudeFirst = map[string]bool{
	"EPSG:4326": true, // WGS 84
	"EPSG:4979": true,
	"EPSG:4258": true, // ETRS89
	"EPSG:4612": true, // JGD2000
	"EPSG:6668": true, // JGD2011
	"EPSG:6697": true,
}

// LatitudeFirst reports whether positions in the reference system code,
// given as "EPSG:nnnn", are written latitude first.
func LatitudeFirst(code string) bool {
	return latitudeFirst[strings.ToUpper(strings.TrimSpace(code))]
}

// ReadEnvelope returns the envelope of the city model in r. It stops
// reading at the first city object, so it is cheap for large files.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	dec := xml.NewDecoder(r)
	var e Envelope
	var text *strings.Builder
	var found int
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		} else if err != nil {
			return e, fmt.Errorf("citygml: envelope: %v", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "Envelope":
				e.SRS = attr(t, "srsName")
			case "lowerCorner", "upperCorner":
				text = new(strings.Builder)
			case "cityObjectMember", "featureMember":
				return e, fmt.Errorf("citygml: no envelope before the first city object")
			}
		case xml.CharData:
			if text != nil {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local != "lowerCorner" && t.Name.Local != "upperCorner" {
				continue
			}
			n := len(strings.Fields(text.String()))
			if n < 2 || n > 3 {
				return e, fmt.Errorf("citygml: invalid %s %q", t.Name.Local, text.String())
			}
			p, err := parseCoordinates(text.String(), n)
			if err != nil {
				return e, fmt.Errorf("citygml: invalid %s %q", t.Name.Local, text.String())
			}
			if t.Name.Local == "lowerCorner" {
				e.Lower = p[0]
			} else {
				e.Upper = p[0]
			}
			found++
			text = nil
			if found == 2 {
				return e, nil
			}
		}
	}
	if found < 2 {
		return e, fmt.Errorf("citygml: no envelope")
	}
	return e, nil
}
