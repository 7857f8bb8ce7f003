package models

import (
	"time"
)

// UsageDateLayout is the wire and storage format of a usage day.
const UsageDateLayout = "2006-01-02"

// UsageDate truncates t to its UTC calendar day.
func UsageDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// UsageKey identifies one aggregated usage row.
type UsageKey struct {
	TenantID   string     `json:"tenant_id"`
	Provider   ProviderID `json:"provider"`
	Model      string     `json:"model"`
	Capability Capability `json:"capability"`
	Date       time.Time  `json:"date"`
}

// UsageDelta is a single increment applied to a UsageRecord. Each delta counts as
// one request.
type UsageDelta struct {
	Key   UsageKey
	Units int64
	Cost  float64
}

// UsageRecord aggregates usage per tenant, provider, model, capability and day.
type UsageRecord struct {
	TenantID   string     `db:"tenant_id" json:"tenant_id"`
	Provider   ProviderID `db:"provider" json:"provider"`
	Model      string     `db:"model" json:"model"`
	Capability Capability `db:"capability" json:"capability"`
	Date       time.Time  `db:"usage_date" json:"date"`
	Units      int64      `db:"units" json:"units"`
	Cost       float64    `db:"cost" json:"cost"`
	Requests   int64      `db:"requests" json:"requests"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// Key returns the aggregation key of the record.
func (r *UsageRecord) Key() UsageKey {
	return UsageKey{
		TenantID:   r.TenantID,
		Provider:   r.Provider,
		Model:      r.Model,
		Capability: r.Capability,
		Date:       r.Date,
	}
}

// UsageQuery filters usage records. Since is inclusive, Until exclusive; zero
// values leave the bound open.
type UsageQuery struct {
	TenantID string
	Provider ProviderID
	Since    time.Time
	Until    time.Time
}

// UsageBucket is one group of a UsageSummary.
type UsageBucket struct {
	Key      string  `json:"key"`
	Units    int64   `json:"units"`
	Cost     float64 `json:"cost"`
	Requests int64   `json:"requests"`
}

// UsageSummary aggregates usage over a period.
type UsageSummary struct {
	TenantID      string        `json:"tenant_id"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	TotalUnits    int64         `json:"total_units"`
	TotalCost     float64       `json:"total_cost"`
	TotalRequests int64         `json:"total_requests"`
	ByProvider    []UsageBucket `json:"by_provider"`
	ByCapability  []UsageBucket `json:"by_capability"`
	ByDay         []UsageBucket `json:"by_day"`
}
