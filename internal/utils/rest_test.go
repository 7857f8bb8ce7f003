package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{
			name:    "bad request",
			code:    http.StatusBadRequest,
			message: "invalid capability",
		},
		{
			name:    "service unavailable",
			code:    http.StatusServiceUnavailable,
			message: "service temporarily unavailable",
		},
		{
			name:    "internal server error",
			code:    http.StatusInternalServerError,
			message: "failed to record generation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			RespondWithError(w, tt.code, tt.message)

			if w.Code != tt.code {
				t.Errorf("RespondWithError() status = %d, want %d", w.Code, tt.code)
			}

			contentType := w.Header().Get("Content-Type")
			if contentType != "application/json" {
				t.Errorf("RespondWithError() Content-Type = %s, want application/json", contentType)
			}

			var response ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}

			if response.Error != tt.message {
				t.Errorf("RespondWithError() message = %s, want %s", response.Error, tt.message)
			}
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()

	payload := map[string]any{
		"provider": "local",
		"is_free":  true,
	}

	if err := RespondWithJSON(w, http.StatusOK, payload); err != nil {
		t.Errorf("RespondWithJSON() error = %v, want nil", err)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["provider"] != "local" || response["is_free"] != true {
		t.Errorf("RespondWithJSON() body = %v", response)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Capability string `json:"capability"`
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"capability":"text"}`, false},
		{"unknown field", `{"capability":"text","extra":1}`, true},
		{"trailing data", `{"capability":"text"} {}`, true},
		{"malformed", `{"capability":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.input))
			var dst body
			err := DecodeJSON(r, &dst)
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
