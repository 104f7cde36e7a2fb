package models

import "strings"

// SurfaceType classifies the uncovered part of a property
type SurfaceType string

const (
	SurfaceGarden  SurfaceType = "Garden"
	SurfacePatio   SurfaceType = "Patio"
	SurfaceTerrace SurfaceType = "Terrace"
	SurfaceBalcony SurfaceType = "Balcony"
	SurfaceNone    SurfaceType = "None"
)

// SurfaceTypes lists every valid surface type in display order
var SurfaceTypes = []SurfaceType{SurfaceGarden, SurfacePatio, SurfaceTerrace, SurfaceBalcony, SurfaceNone}

var surfaceAliases = map[string]SurfaceType{
	"garden":  SurfaceGarden,
	"jardín":  SurfaceGarden,
	"jardin":  SurfaceGarden,
	"patio":   SurfacePatio,
	"terrace": SurfaceTerrace,
	"terraza": SurfaceTerrace,
	"balcony": SurfaceBalcony,
	"balcón":  SurfaceBalcony,
	"balcon":  SurfaceBalcony,
	"none":    SurfaceNone,
	"ninguno": SurfaceNone,
}

// ParseSurfaceType accepts English and Spanish names, case-insensitive.
func ParseSurfaceType(s string) (SurfaceType, bool) {
	t, ok := surfaceAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// Valid reports whether t is one of the known surface types
func (t SurfaceType) Valid() bool {
	for _, known := range SurfaceTypes {
		if t == known {
			return true
		}
	}
	return false
}

type PropertyCharacteristics struct {
	Rooms                int      `json:"rooms"`
	Bedrooms             int      `json:"bedrooms"`
	Bathrooms            int      `json:"bathrooms"`
	Age                  int      `json:"age"`
	Garage               bool     `json:"garage"`
	SemiCoveredSurface   float64  `json:"semiCoveredSurface"`
	Toilettes            int      `json:"toilettes"`
	FloorType            string   `json:"floorType"`
	ApartmentsInBuilding int      `json:"apartmentsInBuilding"`
	IsCreditEligible     bool     `json:"isCreditEligible"`
	IsProfessional       bool     `json:"isProfessional"`
	HasFinancing         bool     `json:"hasFinancing"`
	Images               []string `json:"images"`
}

type TargetProperty struct {
	PropertyCharacteristics
	Address              string      `json:"address"`
	CoveredSurface       float64     `json:"coveredSurface"`
	UncoveredSurface     float64     `json:"uncoveredSurface"`
	SurfaceType          SurfaceType `json:"surfaceType"`
	HomogenizationFactor float64     `json:"homogenizationFactor"`
}

// Comparable is a market listing used to price the target. The id is owned
// by the persistence layer and never changes after creation.
type Comparable struct {
	ID string `json:"id,omitempty"`
	TargetProperty
	Price        float64 `json:"price"`
	DaysOnMarket int     `json:"daysOnMarket"`
}

// ProcessedComparable carries the derived values computed at read time.
// They are never persisted.
type ProcessedComparable struct {
	Comparable
	HSurface float64 `json:"hSurface"`
	HPrice   float64 `json:"hPrice"`
}

// SavedValuation is a full snapshot of a target and its comparables
type SavedValuation struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Date        int64          `json:"date"` // epoch milliseconds
	Target      TargetProperty `json:"target"`
	Comparables []Comparable   `json:"comparables"`
}

// MaxSavedValuations is the per-user snapshot cap
const MaxSavedValuations = 30
