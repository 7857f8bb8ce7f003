package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ai_selector/internal/middleware"
	"ai_selector/internal/models"
)

const (
	defaultQuantity = 1000
	dateLayout      = "2006-01-02"
)

func capabilityParam(r *http.Request) (models.Capability, error) {
	raw := r.URL.Query().Get("capability")
	if raw == "" {
		return "", fmt.Errorf("capability is required")
	}
	return models.ParseCapability(raw)
}

// quantityParam reads a non-negative quantity, defaulting to 1000.
func quantityParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("quantity")
	if raw == "" {
		return defaultQuantity, nil
	}
	q, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || q < 0 {
		return 0, fmt.Errorf("quantity must be a non-negative integer, got %q", raw)
	}
	return q, nil
}

// dateParam parses YYYY-MM-DD as a UTC day. Missing means zero time.
func dateParam(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD, got %q", key, raw)
	}
	return t, nil
}

func intParam(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}

func providerID(raw string) models.ProviderID {
	return models.ProviderID(strings.ToLower(strings.TrimSpace(raw)))
}

func tenantID(r *http.Request) string {
	return middleware.GetTenantID(r.Context())
}
