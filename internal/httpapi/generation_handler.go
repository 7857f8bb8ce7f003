package httpapi

import (
	"net/http"

	"ai_selector/internal/generation"
	"ai_selector/internal/models"
	"ai_selector/internal/utils"
)

type generateRequest struct {
	UserID            string         `json:"user_id,omitempty"`
	Capability        string         `json:"capability"`
	Prompt            string         `json:"prompt"`
	PreferredProvider string         `json:"preferred_provider,omitempty"`
	PrioritizeFree    bool           `json:"prioritize_free,omitempty"`
	PrioritizeSpeed   bool           `json:"prioritize_speed,omitempty"`
	Quantity          int64          `json:"quantity,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
	Metadata          models.JSONB   `json:"metadata,omitempty"`
}

func (d *Dependencies) handleGenerate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := requireTenant(w, r)
	if !ok {
		return
	}

	var body generateRequest
	if err := utils.DecodeJSON(r, &body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	capability, err := models.ParseCapability(body.Capability)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := d.Generation.Generate(r.Context(), generation.Request{
		TenantID:          tenant,
		UserID:            body.UserID,
		Capability:        capability,
		Prompt:            body.Prompt,
		PreferredProvider: providerID(body.PreferredProvider),
		PrioritizeFree:    body.PrioritizeFree,
		PrioritizeSpeed:   body.PrioritizeSpeed,
		Quantity:          body.Quantity,
		Options:           body.Options,
		Metadata:          body.Metadata,
	})
	if err != nil {
		d.respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, result)
}
