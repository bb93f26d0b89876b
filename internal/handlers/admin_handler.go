package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/middleware"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/internal/services"
	"github.com/wawire/kq-alumni-platform/internal/utils"
)

// AdminHandler handles admin registration-management HTTP requests
type AdminHandler struct {
	registrationRepo *database.RegistrationRepository
	adminService     *services.AdminService
	auditService     *services.AuditService
	notifications    *services.NotificationService
	logger           *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	registrationRepo *database.RegistrationRepository,
	adminService *services.AdminService,
	auditService *services.AuditService,
	notifications *services.NotificationService,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		registrationRepo: registrationRepo,
		adminService:     adminService,
		auditService:     auditService,
		notifications:    notifications,
		logger:           logger,
	}
}

// actorFromContext builds the audit actor for the authenticated admin
func (h *AdminHandler) actorFromContext(c *gin.Context) (services.ActorContext, bool) {
	admin, ok := middleware.GetAdminContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Admin context missing",
			"code":    "MISSING_ADMIN_CONTEXT",
		})
		return services.ActorContext{}, false
	}

	return services.ActorContext{
		ActorID:   admin.AdminID,
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}, true
}

// ListRegistrations handles GET /api/v1/admin/registrations
func (h *AdminHandler) ListRegistrations(c *gin.Context) {
	status := models.RegistrationStatus(c.DefaultQuery("status", string(models.StatusPending)))
	manualReviewOnly := c.Query("manual_review") == "true"

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	regs, err := h.registrationRepo.ListByStatus(status, manualReviewOnly, limit, offset)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list registrations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list registrations",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"registrations": regs,
		"count":         len(regs),
	})
}

// GetRegistration handles GET /api/v1/admin/registrations/:id
func (h *AdminHandler) GetRegistration(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	reg, err := h.registrationRepo.GetByID(id)
	if err != nil {
		h.respondNotFoundOrError(c, err)
		return
	}

	c.JSON(http.StatusOK, reg)
}

// GetAuditTrail handles GET /api/v1/admin/registrations/:id/audit
func (h *AdminHandler) GetAuditTrail(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	entries, err := h.auditService.History(id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load audit trail")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load audit trail",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// ApproveRequest represents the manual approval payload
type ApproveRequest struct {
	Notes string `json:"notes"`
}

// Approve handles POST /api/v1/admin/registrations/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var req ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	reg, err := h.adminService.Approve(c.Request.Context(), id, actor, req.Notes)
	if err != nil {
		h.respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Registration approved",
		"registration": reg,
	})
}

// RejectRequest represents the manual rejection payload
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes"`
}

// Reject handles POST /api/v1/admin/registrations/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	reg, err := h.adminService.Reject(c.Request.Context(), id, actor, req.Reason, req.Notes)
	if err != nil {
		h.respondTransitionError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Registration rejected",
		"registration": reg,
	})
}

// BulkRequest represents a bulk approve/reject payload
type BulkRequest struct {
	RegistrationIDs []uuid.UUID `json:"registration_ids" binding:"required,min=1"`
	Reason          string      `json:"reason"`
	Notes           string      `json:"notes"`
}

// BulkApprove handles POST /api/v1/admin/registrations/bulk-approve
func (h *AdminHandler) BulkApprove(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	results, err := h.adminService.BulkApprove(c.Request.Context(), req.RegistrationIDs, actor, req.Notes)
	if err != nil {
		h.logger.WithError(err).Error("Bulk approve failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Bulk approve failed",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// BulkReject handles POST /api/v1/admin/registrations/bulk-reject
func (h *AdminHandler) BulkReject(c *gin.Context) {
	actor, ok := h.actorFromContext(c)
	if !ok {
		return
	}

	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Reason == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "registration_ids and reason are required",
			"code":    "INVALID_REQUEST",
		})
		return
	}

	results, err := h.adminService.BulkReject(c.Request.Context(), req.RegistrationIDs, actor, req.Reason, req.Notes)
	if err != nil {
		h.logger.WithError(err).Error("Bulk reject failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Bulk reject failed",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ResendRequest represents a manual notification resend payload
type ResendRequest struct {
	MessageType models.MessageType `json:"message_type" binding:"required"`
}

// Resend handles POST /api/v1/admin/registrations/:id/resend
func (h *AdminHandler) Resend(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	if err := h.notifications.Resend(c.Request.Context(), id, req.MessageType); err != nil {
		if errors.Is(err, services.ErrAlreadySent) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_sent",
				"message": "This notification was already delivered",
				"code":    "ALREADY_SENT",
			})
			return
		}

		h.logger.WithError(err).Error("Notification resend failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "send_failed",
			"message": "Notification delivery failed",
			"code":    "SEND_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification sent"})
}

func (h *AdminHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid registration ID",
			"code":    "INVALID_ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) respondNotFoundOrError(c *gin.Context, err error) {
	if errors.Is(err, database.ErrRegistrationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Registration not found",
			"code":    "NOT_FOUND",
		})
		return
	}

	h.logger.WithError(err).Error("Registration lookup failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "Failed to load registration",
		"code":    "INTERNAL_ERROR",
	})
}

func (h *AdminHandler) respondTransitionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrRegistrationNotFound):
		h.respondNotFoundOrError(c, err)
	case errors.Is(err, services.ErrAlreadyApproved):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_approved",
			"message": "Registration is already approved",
			"code":    "ALREADY_APPROVED",
		})
	case errors.Is(err, services.ErrAlreadyRejected):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "already_rejected",
			"message": "Registration is already rejected",
			"code":    "ALREADY_REJECTED",
		})
	case errors.Is(err, services.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"message": "Registration is not in a state that allows this transition",
			"code":    "INVALID_STATE",
		})
	default:
		h.logger.WithError(err).Error("Manual transition failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to apply transition",
			"code":    "INTERNAL_ERROR",
		})
	}
}
