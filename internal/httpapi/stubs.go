package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aegis-run/governor/internal/auth"
	"github.com/aegis-run/governor/internal/store"
)

func storeTier(t auth.Tier) store.Tier { return store.Tier(t) }

// stubCollaborators holds just enough in-memory state for the routes
// spec.md §1 names as external collaborators (billing, sharing, export)
// to return a stable, spec-shaped response without a real backing
// service. Every handler here satisfies the HTTP contract — status codes
// and JSON shape — while delegating the actual business logic (payment
// processing, signed-archive generation, email delivery) to whatever
// production replaces this stub.
type stubCollaborators struct {
	mu          sync.Mutex
	shares      map[string]shareRecord      // id -> share
	invitations map[string]invitationRecord // id -> invitation
}

func newStubCollaborators() *stubCollaborators {
	return &stubCollaborators{
		shares:      map[string]shareRecord{},
		invitations: map[string]invitationRecord{},
	}
}

type shareRecord struct {
	ID        string `json:"id"`
	OwnerUID  string `json:"ownerUid"`
	TargetUID string `json:"targetUid,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
}

type invitationRecord struct {
	ID       string `json:"id"`
	OwnerUID string `json:"ownerUid"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Status   string `json:"status"` // pending, accepted, declined
}

func (s *stubCollaborators) deleteAllFor(uid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sh := range s.shares {
		if sh.OwnerUID == uid || sh.TargetUID == uid {
			delete(s.shares, id)
		}
	}
	for id, inv := range s.invitations {
		if inv.OwnerUID == uid {
			delete(s.invitations, id)
		}
	}
}

// --- Billing (Stripe) ---

func (d *Dependencies) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		writeError(w, "invalid_request", "planId is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": "https://billing.stub.invalid/checkout/" + uuid.NewString()})
}

func (d *Dependencies) handlePortal(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": "https://billing.stub.invalid/portal/" + uuid.NewString()})
}

// handleStripeWebhook acknowledges the webhook with the 200 Stripe retries
// against; it does not verify the HMAC signature or apply the plan
// mapping — that belongs to the billing collaborator spec.md §1 excludes.
func (d *Dependencies) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// --- Sharing ---

func (d *Dependencies) handleListShares(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	d.stubs.mu.Lock()
	defer d.stubs.mu.Unlock()
	out := []shareRecord{}
	for _, sh := range d.stubs.shares {
		if sh.OwnerUID == uid || sh.TargetUID == uid {
			out = append(out, sh)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shares": out})
}

type createShareRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (d *Dependencies) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	var req createShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, "invalid_request", "email is required")
		return
	}
	inv := invitationRecord{ID: uuid.NewString(), OwnerUID: uid, Email: req.Email, Role: req.Role, Status: "pending"}
	d.stubs.mu.Lock()
	d.stubs.invitations[inv.ID] = inv
	d.stubs.mu.Unlock()
	writeJSON(w, http.StatusCreated, inv)
}

func (d *Dependencies) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	d.resolveInvitation(w, r, "accepted")
}

func (d *Dependencies) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	d.resolveInvitation(w, r, "declined")
}

func (d *Dependencies) resolveInvitation(w http.ResponseWriter, r *http.Request, status string) {
	uid, ok := auth.UIDFromContext(r.Context())
	if !ok {
		writeError(w, "unauthorized", "missing authenticated user")
		return
	}
	id := mux.Vars(r)["id"]
	d.stubs.mu.Lock()
	defer d.stubs.mu.Unlock()
	inv, ok := d.stubs.invitations[id]
	if !ok {
		writeError(w, "invalid_request", "unknown invitation")
		return
	}
	inv.Status = status
	d.stubs.invitations[id] = inv
	if status == "accepted" {
		share := shareRecord{ID: uuid.NewString(), OwnerUID: inv.OwnerUID, TargetUID: uid, Role: inv.Role}
		d.stubs.shares[share.ID] = share
	}
	writeJSON(w, http.StatusOK, inv)
}

func (d *Dependencies) handleDeleteShared(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d.stubs.mu.Lock()
	delete(d.stubs.shares, id)
	d.stubs.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// --- GDPR export ---

func (d *Dependencies) handleExport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"url": "https://export.stub.invalid/archive/" + uuid.NewString()})
}
