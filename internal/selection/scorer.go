package selection

import (
	"math"

	"ai_selector/internal/models"
)

// ScoreInput is everything the scoring function looks at for one provider.
type ScoreInput struct {
	Profile         models.ProviderCapabilityProfile
	PrioritizeFree  bool
	PrioritizeSpeed bool
	// BudgetExceeded is true when the tenant is over its daily or monthly limit.
	BudgetExceeded bool
	// RecentRequests is the tenant's request count on the provider over the
	// usage window.
	RecentRequests int64
}

// Scorer ranks providers with an additive score. It is a pure function of its
// input and weights.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score returns the provider's score, never below zero.
func (s *Scorer) Score(in ScoreInput) float64 {
	w := s.weights
	p := in.Profile
	free := p.IsFree()

	score := p.BaseWeight

	if free {
		score += w.FreeBonus
	} else {
		score += math.Max(0, 1-p.CostPerUnit*w.CostScale)
	}

	if in.PrioritizeFree && free {
		score += w.PrioritizeFreeBonus
	}

	if in.PrioritizeSpeed {
		score += p.PerformanceWeight * w.SpeedMultiplier
	} else {
		score += p.PerformanceWeight
	}

	if in.BudgetExceeded {
		if free {
			score += w.BudgetFreeBonus
		} else {
			score += w.BudgetPaidPenalty
		}
	}

	switch {
	case in.RecentRequests <= 0:
		score += w.UnusedBonus
	case in.RecentRequests < w.LightUsageThreshold:
		score += w.LightUsageBonus
	default:
		score += w.HeavyUsagePenalty
	}

	score += p.ReliabilityWeight

	return math.Max(0, score)
}
