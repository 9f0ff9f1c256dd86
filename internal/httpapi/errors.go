// Package httpapi registers the HTTP surface spec.md §6 names and wires
// it to the governance core (C7 budget, C8 router, C9 rate limiter, C10
// auth, C12 cross-app). Grounded on the teacher's gorilla/mux route
// registration and JSON-envelope handler shape.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is spec.md §6's error-response shape.
type ErrorEnvelope struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	ResetAt    string `json:"resetAt,omitempty"`
	UpgradeURL string `json:"upgradeUrl,omitempty"`
}

// statusForKind is spec.md §7's kind -> HTTP code table.
func statusForKind(kind string) int {
	switch kind {
	case "unauthorized":
		return http.StatusUnauthorized
	case "upgrade_required", "feature_not_available", "permission_denied", "insufficient_privileges":
		return http.StatusForbidden
	case "ai_quota_exceeded", "rate_limit_exceeded", "ai_budget_exhausted":
		return http.StatusTooManyRequests
	case "request_too_expensive":
		return http.StatusRequestEntityTooLarge
	case "invalid_request":
		return http.StatusBadRequest
	case "budget_check_failed":
		return http.StatusInternalServerError
	case "provider_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: kind, Message: message})
}

func writeErrorWithResetAt(w http.ResponseWriter, kind, message, resetAt string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusForKind(kind))
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{Error: kind, Message: message, ResetAt: resetAt})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
