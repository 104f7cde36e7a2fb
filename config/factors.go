package config

import "tasaciones/server/internal/models"

// SurfaceFactors is the default homogenization factor applied to the
// uncovered surface of each surface type
var SurfaceFactors = map[models.SurfaceType]float64{
	models.SurfaceGarden:  0.20,
	models.SurfacePatio:   0.50,
	models.SurfaceTerrace: 0.30,
	models.SurfaceBalcony: 0.10,
	models.SurfaceNone:    1,
}

// DefaultFactor returns the table factor for t, or 1 for unknown types
func DefaultFactor(t models.SurfaceType) float64 {
	if f, ok := SurfaceFactors[t]; ok {
		return f
	}
	return 1
}
