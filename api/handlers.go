/*
handlers.go - HTTP API handlers for the claims engine

PURPOSE:
  Exposes the entitlement ledger and claim adjudicator via REST. Handles
  HTTP request/response and JSON serialization, delegating every business
  decision to the domain packages.

ENDPOINTS:
  Users:
    GET    /api/users                  List users (admin)
    POST   /api/users                  Create user
    GET    /api/users/{id}             Get user
    DELETE /api/users/{id}             Delete user (admin)
    GET    /api/users/{id}/policies    Catalog annotated with holdings
    GET    /api/users/{id}/entitlements  The user's entitlements
    GET    /api/users/{id}/claims      The user's claims

  Policies:
    GET    /api/policies               List catalog
    POST   /api/policies               Create policy (admin)
    GET    /api/policies/{id}          Get policy
    PUT    /api/policies/{id}          Update policy (admin)
    DELETE /api/policies/{id}          Delete policy (admin)

  Purchases:
    POST   /api/purchases              Buy a policy
    DELETE /api/purchases/{policyID}   Withdraw a purchase

  Claims:
    POST   /api/claims                 Submit a claim
    GET    /api/claims                 List all claims (admin)
    GET    /api/claims/{id}            Get claim
    PUT    /api/claims/{id}            Update claim amount
    PUT    /api/claims/{id}/status     Set claim status (admin)
    DELETE /api/claims/{id}            Delete claim

ERROR HANDLING:
  Domain errors map to statuses in statusFor: not-found to 404, ownership
  and capability failures to 403, conflicts and locks to 409, validation to
  400. Anything else is a 500.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/coverline/claims-engine/catalog"
	"github.com/coverline/claims-engine/claims"
	"github.com/coverline/claims-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       ledger.TxStore
	Catalog     *catalog.Service
	Manager     *ledger.Manager
	Adjudicator *claims.Adjudicator
}

// NewHandler wires the domain services over a single transactional store.
func NewHandler(store ledger.TxStore) *Handler {
	return &Handler{
		Store:       store,
		Catalog:     catalog.NewService(store),
		Manager:     ledger.NewManager(store),
		Adjudicator: claims.NewAdjudicator(store),
	}
}

// =============================================================================
// USER ENDPOINTS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin {
		writeError(w, http.StatusForbidden, "Admin capability required", nil)
		return
	}
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	dtos := make([]UserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	user := ledger.User{
		ID:        ledger.UserID(req.ID),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(user))
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := ledger.UserID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActFor(id) {
		writeError(w, http.StatusForbidden, "Cannot view another user", nil)
		return
	}
	user, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if !actorFrom(r).IsAdmin {
		writeError(w, http.StatusForbidden, "Admin capability required", nil)
		return
	}
	id := ledger.UserID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteUser(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to delete user", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

func (h *Handler) ListUserPolicies(w http.ResponseWriter, r *http.Request) {
	id := ledger.UserID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActFor(id) {
		writeError(w, http.StatusForbidden, "Cannot view another user's holdings", nil)
		return
	}
	holdings, err := h.Catalog.ListForUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, 0, len(holdings))
	for _, o := range holdings {
		dtos = append(dtos, toOwnershipDTO(o))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListUserEntitlements(w http.ResponseWriter, r *http.Request) {
	id := ledger.UserID(chi.URLParam(r, "id"))
	if !actorFrom(r).CanActFor(id) {
		writeError(w, http.StatusForbidden, "Cannot view another user's entitlements", nil)
		return
	}
	ents, err := h.Manager.ListByUser(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list entitlements", err)
		return
	}
	now := time.Now().UTC()
	dtos := make([]EntitlementDTO, 0, len(ents))
	for _, e := range ents {
		dtos = append(dtos, toEntitlementDTO(e, now))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ListUserClaims(w http.ResponseWriter, r *http.Request) {
	id := ledger.UserID(chi.URLParam(r, "id"))
	list, err := h.Adjudicator.ListByUser(r.Context(), actorFrom(r), id)
	if err != nil {
		h.writeDomainError(w, "Failed to list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTOs(list))
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}
	dtos := make([]PolicyDTO, 0, len(policies))
	for _, p := range policies {
		dtos = append(dtos, toPolicyDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodePolicyInput(w, r)
	if !ok {
		return
	}
	policy, err := h.Catalog.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		h.writeDomainError(w, "Failed to create policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(*policy))
}

func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Catalog.Get(r.Context(), ledger.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*policy))
}

func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodePolicyInput(w, r)
	if !ok {
		return
	}
	policy, err := h.Catalog.Update(r.Context(), actorFrom(r), ledger.PolicyID(chi.URLParam(r, "id")), in)
	if err != nil {
		h.writeDomainError(w, "Failed to update policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(*policy))
}

func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	err := h.Catalog.Delete(r.Context(), actorFrom(r), ledger.PolicyID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to delete policy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Policy deleted"})
}

func (h *Handler) decodePolicyInput(w http.ResponseWriter, r *http.Request) (catalog.PolicyInput, bool) {
	var req PolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return catalog.PolicyInput{}, false
	}
	total, err := ledger.ParseAmount(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_amount", err)
		return catalog.PolicyInput{}, false
	}
	premium, err := ledger.ParseAmount(req.Premium)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid premium", err)
		return catalog.PolicyInput{}, false
	}
	return catalog.PolicyInput{
		Name:          req.Name,
		TotalAmount:   total,
		Premium:       premium,
		DurationYears: req.DurationYears,
	}, true
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PolicyID == "" {
		writeError(w, http.StatusBadRequest, "policy_id is required", nil)
		return
	}

	actor := actorFrom(r)
	userID := actor.UserID
	if req.UserID != "" {
		userID = ledger.UserID(req.UserID)
	}
	if !actor.CanActFor(userID) {
		writeError(w, http.StatusForbidden, "Cannot purchase for another user", nil)
		return
	}

	ent, err := h.Manager.Purchase(r.Context(), userID, ledger.PolicyID(req.PolicyID))
	if err != nil {
		h.writeDomainError(w, "Failed to purchase policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntitlementDTO(*ent, time.Now().UTC()))
}

func (h *Handler) WithdrawPurchase(w http.ResponseWriter, r *http.Request) {
	policyID := ledger.PolicyID(chi.URLParam(r, "policyID"))

	actor := actorFrom(r)
	userID := actor.UserID
	if q := r.URL.Query().Get("user_id"); q != "" {
		userID = ledger.UserID(q)
	}
	if !actor.CanActFor(userID) {
		writeError(w, http.StatusForbidden, "Cannot withdraw for another user", nil)
		return
	}

	if err := h.Manager.Withdraw(r.Context(), userID, policyID); err != nil {
		h.writeDomainError(w, "Failed to withdraw policy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Policy withdrawn"})
}

// =============================================================================
// CLAIM ENDPOINTS
// =============================================================================

func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	actor := actorFrom(r)
	userID := actor.UserID
	if req.UserID != "" {
		userID = ledger.UserID(req.UserID)
	}

	claim, err := h.Adjudicator.Submit(r.Context(), actor, userID, ledger.PolicyID(req.PolicyID), amount)
	if err != nil {
		h.writeDomainError(w, "Failed to submit claim", err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimDTO(*claim))
}

func (h *Handler) ListAllClaims(w http.ResponseWriter, r *http.Request) {
	list, err := h.Adjudicator.ListAll(r.Context(), actorFrom(r))
	if err != nil {
		h.writeDomainError(w, "Failed to list claims", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTOs(list))
}

func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Adjudicator.Get(r.Context(), actorFrom(r), ledger.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to get claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

func (h *Handler) SetClaimStatus(w http.ResponseWriter, r *http.Request) {
	var req SetClaimStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status, err := ledger.ParseClaimStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid status value", err)
		return
	}

	claim, err := h.Adjudicator.SetStatus(r.Context(), actorFrom(r), ledger.ClaimID(chi.URLParam(r, "id")), status)
	if err != nil {
		h.writeDomainError(w, "Failed to set claim status", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

func (h *Handler) UpdateClaimAmount(w http.ResponseWriter, r *http.Request) {
	var req UpdateClaimAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	claim, err := h.Adjudicator.UpdateAmount(r.Context(), actorFrom(r), ledger.ClaimID(chi.URLParam(r, "id")), amount)
	if err != nil {
		h.writeDomainError(w, "Failed to update claim", err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimDTO(*claim))
}

func (h *Handler) DeleteClaim(w http.ResponseWriter, r *http.Request) {
	err := h.Adjudicator.Delete(r.Context(), actorFrom(r), ledger.ClaimID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, "Failed to delete claim", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Claim deleted"})
}

// =============================================================================
// HELPERS
// =============================================================================

func toClaimDTOs(list []ledger.Claim) []ClaimDTO {
	dtos := make([]ClaimDTO, 0, len(list))
	for _, c := range list {
		dtos = append(dtos, toClaimDTO(c))
	}
	return dtos
}

// writeDomainError translates domain errors into HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrAlreadyOwned),
		errors.Is(err, ledger.ErrClaimLocked),
		errors.Is(err, ledger.ErrPolicyInUse),
		errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
