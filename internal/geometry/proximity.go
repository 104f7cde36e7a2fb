// Package geometry places the target and its comparables on the map and
// measures how far each comparable lies from the target.
package geometry

import (
	"context"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"tasaciones/server/internal/models"
)

// Locator resolves an address to coordinates
type Locator interface {
	Locate(ctx context.Context, address string) (lat, lon float64, err error)
}

type Proximity struct {
	ComparableID string     `json:"comparableId"`
	Address      string     `json:"address"`
	Location     *orb.Point `json:"location,omitempty"`
	// DistanceKm is nil when either address could not be located
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

type Report struct {
	Target      *orb.Point                 `json:"target,omitempty"`
	Comparables []Proximity                `json:"comparables"`
	Features    *geojson.FeatureCollection `json:"features"`
}

func locate(ctx context.Context, locator Locator, address string, logger *logrus.Logger) *orb.Point {
	lat, lon, err := locator.Locate(ctx, address)
	if err != nil {
		logger.WithError(err).WithField("address", address).Debug("Could not locate address")
		return nil
	}
	p := orb.Point{lon, lat}
	return &p
}

// DistanceKm is the great-circle distance between two points
func DistanceKm(a, b orb.Point) float64 {
	return math.Round(geo.DistanceHaversine(a, b)) / 1000
}

// Distances locates the target and every comparable and reports each
// comparable's distance to the target
func Distances(ctx context.Context, locator Locator, target models.TargetProperty, comparables []models.Comparable, logger *logrus.Logger) Report {
	if logger == nil {
		logger = logrus.New()
	}

	report := Report{
		Target:      locate(ctx, locator, target.Address, logger),
		Comparables: make([]Proximity, 0, len(comparables)),
		Features:    geojson.NewFeatureCollection(),
	}

	if report.Target != nil {
		f := geojson.NewFeature(*report.Target)
		f.Properties["role"] = "target"
		f.Properties["address"] = target.Address
		report.Features.Append(f)
	}

	var points orb.MultiPoint
	if report.Target != nil {
		points = append(points, *report.Target)
	}

	for _, c := range comparables {
		if ctx.Err() != nil {
			break
		}
		p := Proximity{ComparableID: c.ID, Address: c.Address}
		p.Location = locate(ctx, locator, c.Address, logger)
		if p.Location != nil {
			points = append(points, *p.Location)

			f := geojson.NewFeature(*p.Location)
			f.ID = c.ID
			f.Properties["role"] = "comparable"
			f.Properties["address"] = c.Address
			f.Properties["price"] = c.Price

			if report.Target != nil {
				d := DistanceKm(*report.Target, *p.Location)
				p.DistanceKm = &d
				f.Properties["distanceKm"] = d
			}
			report.Features.Append(f)
		}
		report.Comparables = append(report.Comparables, p)
	}

	if len(points) > 0 {
		report.Features.BBox = geojson.NewBBox(points.Bound())
	}

	return report
}
