package httpapi

import (
	"net/http"

	"ai_selector/internal/models"
	"ai_selector/internal/selection"
	"ai_selector/internal/utils"
)

type selectRequest struct {
	Capability        string `json:"capability"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
	PrioritizeFree    bool   `json:"prioritize_free,omitempty"`
	PrioritizeSpeed   bool   `json:"prioritize_speed,omitempty"`
	Quantity          int64  `json:"quantity,omitempty"`
}

type chainResponse struct {
	Capability models.Capability      `json:"capability"`
	Providers  []models.ProviderScore `json:"providers"`
}

type providersResponse struct {
	Capability models.Capability   `json:"capability"`
	Providers  []models.ProviderID `json:"providers"`
}

// handleSelect picks the provider for one request. No available provider is
// reported as 503 rather than an empty success.
func (d *Dependencies) handleSelect(w http.ResponseWriter, r *http.Request) {
	var body selectRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	capability, err := models.ParseCapability(body.Capability)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Quantity < 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "quantity must be non-negative")
		return
	}

	sel, ok := d.Selection.SelectProvider(r.Context(), selection.Request{
		Capability:        capability,
		TenantID:          tenantID(r),
		PreferredProvider: providerID(body.PreferredProvider),
		PrioritizeFree:    body.PrioritizeFree,
		PrioritizeSpeed:   body.PrioritizeSpeed,
		Quantity:          body.Quantity,
	})
	if !ok {
		utils.RespondWithError(w, http.StatusServiceUnavailable, errServiceUnavailable)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, sel)
}

func (d *Dependencies) handleFallback(w http.ResponseWriter, r *http.Request) {
	capability, err := capabilityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	chain, err := d.Selection.FallbackChain(r.Context(), capability, tenantID(r))
	if err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, errServiceUnavailable)
		return
	}
	if chain == nil {
		chain = []models.ProviderScore{}
	}
	utils.RespondWithJSON(w, http.StatusOK, chainResponse{Capability: capability, Providers: chain})
}

func (d *Dependencies) handleProviders(w http.ResponseWriter, r *http.Request) {
	capability, err := capabilityParam(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ids, err := d.Selection.AvailableProviders(r.Context(), capability)
	if err != nil {
		utils.RespondWithError(w, http.StatusServiceUnavailable, errServiceUnavailable)
		return
	}
	if ids == nil {
		ids = []models.ProviderID{}
	}
	utils.RespondWithJSON(w, http.StatusOK, providersResponse{Capability: capability, Providers: ids})
}
