package encoder

import "errors"

var (
	// ErrUnsupportedLayer aborts the whole encode: a print silently missing a
	// layer is worse than no print.
	ErrUnsupportedLayer = errors.New("unsupported layer kind")
	// ErrInvalidLayer reports a known layer kind whose source lacks required fields.
	ErrInvalidLayer = errors.New("invalid layer")
	// ErrUnsupportedGeometry is feature scoped; the feature is skipped.
	ErrUnsupportedGeometry = errors.New("unsupported geometry kind")
	ErrProjection          = errors.New("unsupported reprojection")
	// ErrPropertyCollision means caller data already uses the reserved style attribute.
	ErrPropertyCollision = errors.New("reserved property already in use")
	// ErrStyleResolution is feature scoped; the layer style is tried next.
	ErrStyleResolution = errors.New("style resolution failed")
	ErrInvalidOptions  = errors.New("invalid encode options")
)
