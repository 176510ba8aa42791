package mapstate

import (
	"fmt"
	"net/url"
	"strings"
)

// reservedWFSParams are owned by WFSGetFeatureURL and cannot be overridden.
var reservedWFSParams = map[string]struct{}{
	"service": {}, "version": {}, "request": {}, "typenames": {}, "typename": {}, "outputformat": {}, "srsname": {},
}

// WFSGetFeatureURL builds a WFS 2.0 GetFeature request returning GeoJSON.
// A base without a query gets "/ows" appended, as GeoServer serves it.
// Extra params such as cql_filter or count are passed through.
func WFSGetFeatureURL(base, typeName, srsName string, extra map[string]string) (string, error) {
	if strings.TrimSpace(typeName) == "" {
		return "", fmt.Errorf("%w: wfs source needs a layer (typeNames)", ErrInvalidDocument)
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: wfs url %q", ErrInvalidDocument, base)
	}
	if u.RawQuery == "" && !strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/ows") &&
		!strings.HasSuffix(strings.TrimRight(u.Path, "/"), "/wfs") {
		u.Path = strings.TrimRight(u.Path, "/") + "/ows"
	}

	params := u.Query()
	for k, v := range extra {
		if _, reserved := reservedWFSParams[strings.ToLower(k)]; reserved {
			continue
		}
		params.Set(k, v)
	}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", typeName)
	params.Set("outputFormat", "application/json")
	if srsName != "" {
		params.Set("srsName", srsName)
	}
	u.RawQuery = params.Encode()
	return u.String(), nil
}
