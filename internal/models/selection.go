package models

// ProviderScore is the ranking entry produced by the scorer.
type ProviderScore struct {
	Provider ProviderID `json:"provider"`
	Model    string     `json:"model"`
	Score    float64    `json:"score"`
	UnitCost float64    `json:"unit_cost"`
	Cost     float64    `json:"cost"`
	IsFree   bool       `json:"is_free"`
}

// Selection is the outcome of choosing a provider for a request.
type Selection struct {
	Provider  ProviderID `json:"provider"`
	Model     string     `json:"model"`
	Cost      float64    `json:"cost"`
	IsFree    bool       `json:"is_free"`
	Score     float64    `json:"score"`
	Preferred bool       `json:"preferred"`
}

// CostQuote is the estimated cost of a quantity on one provider model.
type CostQuote struct {
	Provider   ProviderID `json:"provider"`
	Model      string     `json:"model"`
	Capability Capability `json:"capability"`
	Quantity   int64      `json:"quantity"`
	UnitCost   float64    `json:"unit_cost"`
	TotalCost  float64    `json:"total_cost"`
	IsFree     bool       `json:"is_free"`
}

// RecommendationType classifies an optimization recommendation.
type RecommendationType string

const (
	RecommendationExpensiveProvider     RecommendationType = "expensive_provider"
	RecommendationDailyBudgetExceeded   RecommendationType = "daily_budget_exceeded"
	RecommendationMonthlyBudgetExceeded RecommendationType = "monthly_budget_exceeded"
	RecommendationBudgetNearlyExhausted RecommendationType = "budget_nearly_exhausted"
	RecommendationUnusedFreeProvider    RecommendationType = "unused_free_provider"
)

// Severity of a recommendation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Recommendation is advisory output; it never changes selection behaviour.
type Recommendation struct {
	Type             RecommendationType `json:"type"`
	Severity         Severity           `json:"severity"`
	Provider         ProviderID         `json:"provider,omitempty"`
	Capability       Capability         `json:"capability,omitempty"`
	Message          string             `json:"message"`
	EstimatedSavings float64            `json:"estimated_savings,omitempty"`
}
