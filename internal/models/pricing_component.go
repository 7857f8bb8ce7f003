package models

import "fmt"

// PricingUnit is the unit a ModelPrice is quoted in.
type PricingUnit string

const (
	PricingUnitToken   PricingUnit = "token"
	PricingUnitImage   PricingUnit = "image"
	PricingUnitRequest PricingUnit = "request"
)

// UnitFor returns the billing unit used for a capability.
func UnitFor(c Capability) PricingUnit {
	switch c {
	case CapabilityImage:
		return PricingUnitImage
	case CapabilityModeration:
		return PricingUnitRequest
	default:
		return PricingUnitToken
	}
}

// ModelPrice is the per-unit price of one model.
type ModelPrice struct {
	Model       string      `json:"model" db:"model"`
	CostPerUnit float64     `json:"cost_per_unit" db:"cost_per_unit"`
	Unit        PricingUnit `json:"unit" db:"unit"`
}

// IsFree reports whether the model costs nothing.
func (p ModelPrice) IsFree() bool {
	return p.CostPerUnit == 0
}

// Cost returns the price of quantity units. Negative quantities cost nothing.
func (p ModelPrice) Cost(quantity int64) float64 {
	if quantity <= 0 {
		return 0
	}
	return p.CostPerUnit * float64(quantity)
}

// Validate checks the price is usable for the given capability.
func (p ModelPrice) Validate(c Capability) error {
	if p.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if p.CostPerUnit < 0 {
		return fmt.Errorf("model %s: cost per unit must be non-negative, got %v", p.Model, p.CostPerUnit)
	}
	if want := UnitFor(c); p.Unit != want {
		return fmt.Errorf("model %s: unit %q does not match capability %s (want %q)", p.Model, p.Unit, c, want)
	}
	return nil
}
