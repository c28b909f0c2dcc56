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
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
)

// epsg holds Proj4 definitions of the coordinate reference systems
// city models commonly come in. UTM zones are handled separately.
var epsg = map[int]string{
	4326:  "+proj=longlat +datum=WGS84 +no_defs",
	4258:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	6668:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	6697:  "+proj=longlat +ellps=GRS80 +towgs84=0,0,0,0,0,0,0 +no_defs",
	3857:  "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs",
	3826:  "+proj=tmerc +lat_0=0 +lon_0=121 +k=0.9999 +x_0=250000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
	3825:  "+proj=tmerc +lat_0=0 +lon_0=119 +k=0.9999 +x_0=250000 +y_0=0 +ellps=GRS80 +units=m +no_defs",
	25832: "+proj=utm +zone=32 +ellps=GRS80 +units=m +no_defs",
	25833: "+proj=utm +zone=33 +ellps=GRS80 +units=m +no_defs",
}

// SpatialReference returns the Proj4 definition of the coordinate
// reference system code. code may be an EPSG number with or without an
// "EPSG:" prefix, or a Proj4 or WKT definition, which is returned as is.
func SpatialReference(code string) (string, error) {
	c := strings.TrimSpace(code)
	if strings.HasPrefix(c, "+") || strings.Contains(c, "PROJCS") || strings.Contains(c, "GEOGCS") {
		return c, nil
	}
	c = strings.TrimPrefix(strings.ToUpper(c), "EPSG:")
	n, err := strconv.Atoi(c)
	if err != nil {
		return "", fmt.Errorf("cityscene: invalid coordinate reference system %q", code)
	}
	if def, ok := epsg[n]; ok {
		return def, nil
	}
	switch {
	case n > 32600 && n <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", n-32600), nil
	case n > 32700 && n <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", n-32700), nil
	}
	return "", fmt.Errorf("cityscene: unsupported EPSG code %d; give a Proj4 definition instead", n)
}

// UTMZone returns the EPSG code of the WGS84 UTM zone containing the
// given longitude and latitude.
func UTMZone(lon, lat float64) int {
	zone := int((lon+180)/6) + 1
	if zone > 60 {
		zone = 60
	}
	if lat < 0 {
		return 32700 + zone
	}
	return 32600 + zone
}

// Transformer returns a function that converts horizontal coordinates
// from the reference system src to dst. It returns nil if either is
// empty or both are the same, in which case no conversion is needed.
func Transformer(src, dst string) (proj.Transformer, error) {
	if src == "" || dst == "" || strings.EqualFold(strings.TrimSpace(src), strings.TrimSpace(dst)) {
		return nil, nil
	}
	srcDef, err := SpatialReference(src)
	if err != nil {
		return nil, err
	}
	dstDef, err := SpatialReference(dst)
	if err != nil {
		return nil, err
	}
	srcSR, err := proj.Parse(srcDef)
	if err != nil {
		return nil, fmt.Errorf("cityscene: while parsing input reference system: %v", err)
	}
	dstSR, err := proj.Parse(dstDef)
	if err != nil {
		return nil, fmt.Errorf("cityscene: while parsing output reference system: %v", err)
	}
	t, err := srcSR.NewTransform(dstSR)
	if err != nil {
		return nil, fmt.Errorf("cityscene: while creating coordinate transform: %v", err)
	}
	return t, nil
}
