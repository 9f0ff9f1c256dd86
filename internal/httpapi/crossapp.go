package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aegis-run/governor/internal/auth"
)

type crossAppTokenRequest struct {
	TargetApp string `json:"targetApp"`
}

// handleCrossAppToken is C12: mints a short-TTL SSO token for the caller
// to redeem in targetApp, per spec.md §6's "Cross-app: POST
// /auth/cross-app-token {targetApp} -> {token}".
func (d *Dependencies) handleCrossAppToken(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	var req crossAppTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetApp == "" {
		writeError(w, "invalid_request", "targetApp is required")
		return
	}
	token, err := d.CrossApp.Mint(uid, req.TargetApp)
	if err != nil {
		writeError(w, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
