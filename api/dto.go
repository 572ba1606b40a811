/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Amounts arrive as JSON strings and are parsed with ledger.ParseAmount in
  the handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/coverline/claims-engine/catalog"
	"github.com/coverline/claims-engine/ledger"
)

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toUserDTO(u ledger.User) UserDTO {
	return UserDTO{ID: string(u.ID), Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin}
}

// =============================================================================
// POLICIES
// =============================================================================

type PolicyDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	TotalAmount   string `json:"total_amount"`
	Premium       string `json:"premium"`
	DurationYears int    `json:"duration_years"`
	Bought        *bool  `json:"bought,omitempty"`
}

type PolicyRequest struct {
	Name          string `json:"name"`
	TotalAmount   string `json:"total_amount"`
	Premium       string `json:"premium"`
	DurationYears int    `json:"duration_years"`
}

func toPolicyDTO(p ledger.Policy) PolicyDTO {
	return PolicyDTO{
		ID:            string(p.ID),
		Name:          p.Name,
		TotalAmount:   p.TotalAmount.String(),
		Premium:       p.Premium.String(),
		DurationYears: p.DurationYears,
	}
}

func toOwnershipDTO(o catalog.PolicyOwnership) PolicyDTO {
	dto := toPolicyDTO(o.Policy)
	bought := o.Bought
	dto.Bought = &bought
	return dto
}

// =============================================================================
// ENTITLEMENTS
// =============================================================================

type EntitlementDTO struct {
	UserID    string `json:"user_id"`
	PolicyID  string `json:"policy_id"`
	Total     string `json:"total"`
	Remaining string `json:"remaining"`
	ExpiresOn string `json:"expires_on"`
	Expired   bool   `json:"expired"`
}

func toEntitlementDTO(e ledger.Entitlement, at time.Time) EntitlementDTO {
	return EntitlementDTO{
		UserID:    string(e.UserID),
		PolicyID:  string(e.PolicyID),
		Total:     e.Total.String(),
		Remaining: e.Remaining.String(),
		ExpiresOn: e.ExpiresOn.UTC().Format(time.RFC3339),
		Expired:   e.ExpiredAt(at),
	}
}

type PurchaseRequest struct {
	PolicyID string `json:"policy_id"`
	// UserID is optional; admins may purchase on behalf of a user.
	UserID string `json:"user_id,omitempty"`
}

// =============================================================================
// CLAIMS
// =============================================================================

type ClaimDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	PolicyID  string `json:"policy_id"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type SubmitClaimRequest struct {
	PolicyID string `json:"policy_id"`
	Amount   string `json:"amount"`
	// UserID is optional; admins may file on behalf of a user.
	UserID string `json:"user_id,omitempty"`
}

type SetClaimStatusRequest struct {
	Status string `json:"status"`
}

type UpdateClaimAmountRequest struct {
	Amount string `json:"amount"`
}

func toClaimDTO(c ledger.Claim) ClaimDTO {
	return ClaimDTO{
		ID:        string(c.ID),
		UserID:    string(c.UserID),
		PolicyID:  string(c.PolicyID),
		Amount:    c.Amount.String(),
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
