package models

type Statistics struct {
	Avg      float64    `json:"avg"`
	Min      float64    `json:"min"`
	Max      float64    `json:"max"`
	Terciles [3]float64 `json:"terciles"`
}

type ValuationRange struct {
	Low    float64 `json:"low"`
	Market float64 `json:"market"`
	High   float64 `json:"high"`
}

// Summary bundles everything derived from the current target and comparables
type Summary struct {
	TargetHomogenizedSurface float64               `json:"targetHomogenizedSurface"`
	Comparables              []ProcessedComparable `json:"processedComparables"`
	Stats                    Statistics            `json:"stats"`
	Valuation                ValuationRange        `json:"valuation"`
}
