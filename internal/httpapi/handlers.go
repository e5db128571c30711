package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"salescrm-platform/internal/audit"
	"salescrm-platform/internal/auth"
	"salescrm-platform/internal/call"
	"salescrm-platform/internal/phone"
	"salescrm-platform/internal/rbac"
	"salescrm-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth      *auth.Manager
	Initiator *call.Initiator
	Calls     call.Store
	Processor *call.Processor

	// Audit is optional; nil disables the outcome audit trail.
	Audit *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.OrganizationID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, organization_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.OrganizationID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type initiateCallRequest struct {
	LeadID      string `json:"lead_id"`
	Phone       string `json:"phone"`
	Mode        string `json:"mode"`
	CallerID    string `json:"caller_id"`
	ExternalRef string `json:"external_ref"`
	ContactName string `json:"contact_name"`
}

// InitiateCall places an outbound call for the authenticated operator.
// Errors carry machine-readable reasons so the dialer UI can react per-case.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Initiator == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	orgID, err := auth.OrganizationID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())

	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.LeadID == "" && req.Phone == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "lead_id or phone required"})
		return
	}

	created, err := h.Initiator.Initiate(c.Request.Context(), call.InitiateRequest{
		OrganizationID: orgID,
		UserID:         userID,
		UserRole:       role,
		LeadID:         req.LeadID,
		Phone:          req.Phone,
		Mode:           call.Mode(req.Mode),
		CallerID:       req.CallerID,
		ExternalRef:    req.ExternalRef,
		ContactName:    req.ContactName,
	})
	if err != nil {
		status, body := initiateErrorResponse(err)
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// initiateErrorResponse maps initiation failures to status codes and reasons.
func initiateErrorResponse(err error) (int, gin.H) {
	if v, ok := phone.IsValidation(err); ok {
		return http.StatusUnprocessableEntity, gin.H{"error": "invalid phone number", "reason": v.Reason}
	}
	switch {
	case errors.Is(err, call.ErrLeadNotFound):
		return http.StatusNotFound, gin.H{"error": "lead not found", "reason": "lead_not_found"}
	case errors.Is(err, call.ErrDoNotContact):
		return http.StatusConflict, gin.H{"error": "lead is marked do-not-contact", "reason": "do_not_contact"}
	case errors.Is(err, call.ErrDialCapLimit):
		return http.StatusTooManyRequests, gin.H{"error": "concurrent call limit reached", "reason": "dial_cap_limit"}
	case errors.Is(err, call.ErrMissingTarget), errors.Is(err, call.ErrInvalidArgument):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "reason": "invalid_request"}
	default:
		return http.StatusBadGateway, gin.H{"error": "call initiation failed", "reason": "provider_error"}
	}
}

// GetCall returns one call record, scoped to the caller's organization.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	orgID, err := auth.OrganizationID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}
	id := c.Param("call_id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}

	rec, err := h.Calls.FindByID(c.Request.Context(), id)
	if err != nil || rec.OrganizationID != orgID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type setOutcomeRequest struct {
	OutcomeCode string `json:"outcome_code"`
	Note        string `json:"note"`
}

// SetOutcome records the operator's disposition for a finished call.
func (h Handlers) SetOutcome(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	orgID, err := auth.OrganizationID(c.Request.Context())
	if err != nil || orgID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}
	id := c.Param("call_id")

	var req setOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req.OutcomeCode = strings.TrimSpace(req.OutcomeCode)
	if req.OutcomeCode == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "outcome_code required"})
		return
	}

	rec, err := h.Calls.FindByID(c.Request.Context(), id)
	if err != nil || rec.OrganizationID != orgID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	if err := h.Calls.SetOutcome(c.Request.Context(), id, req.OutcomeCode, req.Note); err != nil {
		logger.FromGin(c).Error("outcome write failed", "call_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "outcome update failed"})
		return
	}

	rec.OutcomeCode = req.OutcomeCode
	rec.Note = req.Note
	if h.Processor != nil {
		h.Processor.OnOutcomeSet(c.Request.Context(), rec)
	}
	if h.Audit != nil {
		userID, _ := auth.UserID(c.Request.Context())
		role, _ := auth.Role(c.Request.Context())
		if err := h.Audit.LogOutcomeRecorded(c.Request.Context(), orgID, userID, role, id, req.OutcomeCode); err != nil {
			logger.FromGin(c).Warn("audit append failed", "call_id", id, "err", err)
		}
	}
	c.JSON(http.StatusOK, rec)
}

// Convenience middleware bundles.

func RequireOrgAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireOrganization(), rbac.RequireAnyRole(roles...)}
}
