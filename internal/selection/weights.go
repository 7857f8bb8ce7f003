package selection

import (
	"fmt"
	"time"
)

// Weights are the tunable constants of the scoring function.
type Weights struct {
	// FreeBonus is added when the provider's unit cost is zero.
	FreeBonus float64
	// CostScale converts a paid unit cost into a penalty: max(0, 1 - cost*CostScale).
	CostScale float64
	// PrioritizeFreeBonus is added to free providers when the caller asks for free first.
	PrioritizeFreeBonus float64
	// SpeedMultiplier scales the performance weight when speed is prioritized.
	SpeedMultiplier float64
	// BudgetFreeBonus and BudgetPaidPenalty apply while the tenant is over budget.
	BudgetFreeBonus   float64
	BudgetPaidPenalty float64
	// Usage balancing over UsageWindow.
	UnusedBonus         float64
	LightUsageBonus     float64
	HeavyUsagePenalty   float64
	LightUsageThreshold int64
	UsageWindow         time.Duration
	// NominalQuantity is the quantity quoted when the caller gives none.
	NominalQuantity int64
}

// DefaultWeights returns the production scoring constants.
func DefaultWeights() Weights {
	return Weights{
		FreeBonus:           2.0,
		CostScale:           1000,
		PrioritizeFreeBonus: 1.5,
		SpeedMultiplier:     1.5,
		BudgetFreeBonus:     3.0,
		BudgetPaidPenalty:   -2.0,
		UnusedBonus:         0.5,
		LightUsageBonus:     0.2,
		HeavyUsagePenalty:   -0.1,
		LightUsageThreshold: 10,
		UsageWindow:         7 * 24 * time.Hour,
		NominalQuantity:     1000,
	}
}

// Validate rejects weights that would make the ranking meaningless.
func (w Weights) Validate() error {
	if w.CostScale < 0 {
		return fmt.Errorf("scoring cost scale must be non-negative, got %v", w.CostScale)
	}
	if w.SpeedMultiplier < 0 {
		return fmt.Errorf("scoring speed multiplier must be non-negative, got %v", w.SpeedMultiplier)
	}
	if w.LightUsageThreshold < 1 {
		return fmt.Errorf("scoring light usage threshold must be at least 1, got %d", w.LightUsageThreshold)
	}
	if w.UsageWindow <= 0 {
		return fmt.Errorf("scoring usage window must be positive, got %s", w.UsageWindow)
	}
	if w.NominalQuantity <= 0 {
		return fmt.Errorf("scoring nominal quantity must be positive, got %d", w.NominalQuantity)
	}
	return nil
}
