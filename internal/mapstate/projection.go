package mapstate

import "strings"

// CanonicalProjection maps known aliases onto EPSG:3857 or EPSG:4326. Other
// codes come back upper cased and trimmed; ok reports whether the code is known.
func CanonicalProjection(code string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(code))
	switch c {
	case EPSG3857, "EPSG:900913", "EPSG:102100", "EPSG:102113", "EPSG:3785", "OSGEO:41001",
		"URN:OGC:DEF:CRS:EPSG::3857":
		return EPSG3857, true
	case EPSG4326, "CRS:84", "WGS84", "URN:OGC:DEF:CRS:EPSG::4326", "URN:OGC:DEF:CRS:OGC:1.3:CRS84":
		return EPSG4326, true
	}
	return c, false
}
