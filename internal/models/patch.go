package models

// CharacteristicsPatch holds optional updates for the shared characteristics.
// A nil field leaves the current value untouched.
type CharacteristicsPatch struct {
	Rooms                *int      `json:"rooms,omitempty"`
	Bedrooms             *int      `json:"bedrooms,omitempty"`
	Bathrooms            *int      `json:"bathrooms,omitempty"`
	Age                  *int      `json:"age,omitempty"`
	Garage               *bool     `json:"garage,omitempty"`
	SemiCoveredSurface   *float64  `json:"semiCoveredSurface,omitempty"`
	Toilettes            *int      `json:"toilettes,omitempty"`
	FloorType            *string   `json:"floorType,omitempty"`
	ApartmentsInBuilding *int      `json:"apartmentsInBuilding,omitempty"`
	IsCreditEligible     *bool     `json:"isCreditEligible,omitempty"`
	IsProfessional       *bool     `json:"isProfessional,omitempty"`
	HasFinancing         *bool     `json:"hasFinancing,omitempty"`
	Images               *[]string `json:"images,omitempty"`
}

type TargetPatch struct {
	CharacteristicsPatch
	Address              *string      `json:"address,omitempty"`
	CoveredSurface       *float64     `json:"coveredSurface,omitempty"`
	UncoveredSurface     *float64     `json:"uncoveredSurface,omitempty"`
	SurfaceType          *SurfaceType `json:"surfaceType,omitempty"`
	HomogenizationFactor *float64     `json:"homogenizationFactor,omitempty"`
}

type ComparablePatch struct {
	TargetPatch
	Price        *float64 `json:"price,omitempty"`
	DaysOnMarket *int     `json:"daysOnMarket,omitempty"`
}

// Apply merges the patch into c
func (p CharacteristicsPatch) Apply(c *PropertyCharacteristics) {
	if p.Rooms != nil {
		c.Rooms = *p.Rooms
	}
	if p.Bedrooms != nil {
		c.Bedrooms = *p.Bedrooms
	}
	if p.Bathrooms != nil {
		c.Bathrooms = *p.Bathrooms
	}
	if p.Age != nil {
		c.Age = *p.Age
	}
	if p.Garage != nil {
		c.Garage = *p.Garage
	}
	if p.SemiCoveredSurface != nil {
		c.SemiCoveredSurface = *p.SemiCoveredSurface
	}
	if p.Toilettes != nil {
		c.Toilettes = *p.Toilettes
	}
	if p.FloorType != nil {
		c.FloorType = *p.FloorType
	}
	if p.ApartmentsInBuilding != nil {
		c.ApartmentsInBuilding = *p.ApartmentsInBuilding
	}
	if p.IsCreditEligible != nil {
		c.IsCreditEligible = *p.IsCreditEligible
	}
	if p.IsProfessional != nil {
		c.IsProfessional = *p.IsProfessional
	}
	if p.HasFinancing != nil {
		c.HasFinancing = *p.HasFinancing
	}
	if p.Images != nil {
		c.Images = append([]string(nil), (*p.Images)...)
	}
}

// Apply merges the patch into t. When the surface type changes and no
// factor is supplied, the factor is reset with defaultFactor.
func (p TargetPatch) Apply(t *TargetProperty, defaultFactor func(SurfaceType) float64) {
	p.CharacteristicsPatch.Apply(&t.PropertyCharacteristics)
	if p.Address != nil {
		t.Address = *p.Address
	}
	if p.CoveredSurface != nil {
		t.CoveredSurface = *p.CoveredSurface
	}
	if p.UncoveredSurface != nil {
		t.UncoveredSurface = *p.UncoveredSurface
	}
	if p.SurfaceType != nil {
		t.SurfaceType = *p.SurfaceType
		if p.HomogenizationFactor == nil && defaultFactor != nil {
			t.HomogenizationFactor = defaultFactor(*p.SurfaceType)
		}
	}
	if p.HomogenizationFactor != nil {
		t.HomogenizationFactor = *p.HomogenizationFactor
	}
}

// Apply merges the patch into c. The id is never touched.
func (p ComparablePatch) Apply(c *Comparable, defaultFactor func(SurfaceType) float64) {
	p.TargetPatch.Apply(&c.TargetProperty, defaultFactor)
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.DaysOnMarket != nil {
		c.DaysOnMarket = *p.DaysOnMarket
	}
}

// Validate rejects values outside the data model's ranges
func (p TargetPatch) Validate() error {
	if p.CoveredSurface != nil && *p.CoveredSurface < 0 {
		return ErrNegativeSurface
	}
	if p.UncoveredSurface != nil && *p.UncoveredSurface < 0 {
		return ErrNegativeSurface
	}
	if p.SurfaceType != nil && !p.SurfaceType.Valid() {
		return ErrUnknownSurfaceType
	}
	return nil
}

func (p ComparablePatch) Validate() error {
	if err := p.TargetPatch.Validate(); err != nil {
		return err
	}
	if p.DaysOnMarket != nil && *p.DaysOnMarket < 0 {
		return ErrNegativeDays
	}
	return nil
}
