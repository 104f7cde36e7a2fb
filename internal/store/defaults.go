package store

import (
	"tasaciones/server/config"
	"tasaciones/server/internal/models"
)

// DefaultTarget is the blank target of a new valuation
func DefaultTarget() models.TargetProperty {
	return models.TargetProperty{
		PropertyCharacteristics: models.PropertyCharacteristics{Images: []string{}},
		SurfaceType:             models.SurfaceBalcony,
		HomogenizationFactor:    config.DefaultFactor(models.SurfaceBalcony),
	}
}

// DefaultComparable is the placeholder row created by AddComparable
func DefaultComparable() models.Comparable {
	c := models.Comparable{
		Price:        100000,
		DaysOnMarket: 0,
	}
	c.Address = "Nueva Propiedad"
	c.CoveredSurface = 50
	c.SurfaceType = models.SurfaceNone
	c.HomogenizationFactor = config.DefaultFactor(models.SurfaceNone)
	c.Images = []string{}
	return c
}

// DefaultState is what a session looks like before its first edit
func DefaultState() State {
	return State{
		Target:          DefaultTarget(),
		Comparables:     []models.Comparable{},
		SavedValuations: []models.SavedValuation{},
	}
}
