package httpapi

import (
	"net/http"

	"ai_selector/internal/billing"
	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

type estimateResponse struct {
	Provider   models.ProviderID `json:"provider"`
	Model      string            `json:"model,omitempty"`
	Capability models.Capability `json:"capability"`
	Quantity   int64             `json:"quantity"`
	UnitCost   float64           `json:"unit_cost"`
	TotalCost  float64           `json:"total_cost"`
}

type recordRequest struct {
	UserID     string       `json:"user_id,omitempty"`
	Capability string       `json:"capability"`
	Provider   string       `json:"provider"`
	Model      string       `json:"model"`
	Prompt     string       `json:"prompt,omitempty"`
	Result     string       `json:"result,omitempty"`
	Units      int64        `json:"units"`
	Cost       *float64     `json:"cost,omitempty"`
	Metadata   models.JSONB `json:"metadata,omitempty"`
}

// requireTenant writes 400 and returns false when the request has no tenant.
func requireTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := tenantID(r)
	if id == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
		return "", false
	}
	return id, true
}

func (d *Dependencies) handleCostComparison(w http.ResponseWriter, r *http.Request) {
	capability, err := capabilityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity, err := quantityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	quotes, err := d.Billing.CostComparison(r.Context(), capability, quantity)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, quotes)
}

// handleCostEstimate prices one provider model. An empty model means the
// provider's default; unknown pairs are quoted at zero.
func (d *Dependencies) handleCostEstimate(w http.ResponseWriter, r *http.Request) {
	capability, err := capabilityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	quantity, err := quantityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider := providerID(r.URL.Query().Get("provider"))
	if provider == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "provider is required")
		return
	}
	model := r.URL.Query().Get("model")

	unit, err := d.Billing.CostPerUnit(r.Context(), provider, capability, model)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	total, err := d.Billing.Cost(r.Context(), provider, capability, model, quantity)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, estimateResponse{
		Provider:   provider,
		Model:      model,
		Capability: capability,
		Quantity:   quantity,
		UnitCost:   unit,
		TotalCost:  total,
	})
}

func (d *Dependencies) handleBudget(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	status, err := d.Billing.BudgetStatus(r.Context(), tenant)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, status)
}

// handleUpdateBudget stores the tenant's limits and returns the new status.
func (d *Dependencies) handleUpdateBudget(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var limits models.BudgetLimits
	if err := utils.DecodeJSON(r, &limits); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if d.Budgets == nil {
		utils.RespondWithError(w, http.StatusMethodNotAllowed, "budget configuration is read-only")
		return
	}
	if err := d.Budgets.Upsert(r.Context(), tenant, limits); err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}

	d.handleBudget(w, r)
}

func (d *Dependencies) handleUsage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}
	start, err := dateParam(r, "start")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := dateParam(r, "end")
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		utils.RespondWithError(w, http.StatusBadRequest, "end must not be before start")
		return
	}

	summary, err := d.Billing.UsageSummary(r.Context(), tenant, start, end)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, summary)
}

func (d *Dependencies) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	recs, err := d.Billing.OptimizationRecommendations(r.Context(), tenant)
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	utils.RespondWithJSON(w, http.StatusOK, recs)
}

// handleRecordGeneration records a generation the caller completed itself.
// A record that cannot be persisted fails the request with 500.
func (d *Dependencies) handleRecordGeneration(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var body recordRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	capability, err := models.ParseCapability(body.Capability)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := d.Billing.RecordGeneration(r.Context(), billing.GenerationInput{
		TenantID:   tenant,
		UserID:     body.UserID,
		Capability: capability,
		Provider:   providerID(body.Provider),
		Model:      body.Model,
		Prompt:     body.Prompt,
		Result:     body.Result,
		Units:      body.Units,
		Cost:       body.Cost,
		Metadata:   body.Metadata,
	})
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, rec)
}
