package models

import "errors"

var (
	ErrNegativeSurface    = errors.New("surface must not be negative")
	ErrUnknownSurfaceType = errors.New("unknown surface type")
	ErrNegativeDays       = errors.New("days on market must not be negative")
)
