package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/internal/services"
)

// RegistrationHandler handles public registration HTTP requests
type RegistrationHandler struct {
	intakeService *services.IntakeService
	tokenService  *services.TokenService
	logger        *logrus.Logger
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(intakeService *services.IntakeService, tokenService *services.TokenService, logger *logrus.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		intakeService: intakeService,
		tokenService:  tokenService,
		logger:        logger,
	}
}

// RegisterRequest represents the registration submission payload
type RegisterRequest struct {
	IDOrPassport              string   `json:"id_or_passport" binding:"required"`
	StaffNumber               string   `json:"staff_number"`
	FullName                  string   `json:"full_name" binding:"required"`
	Email                     string   `json:"email" binding:"required,email"`
	MobileCountryCode         string   `json:"mobile_country_code"`
	MobileNumber              string   `json:"mobile_number"`
	ProfessionalNetworkHandle string   `json:"professional_network_handle"`
	EngagementPreferences     []string `json:"engagement_preferences"`
}

// RegisterResponse represents the response after a successful submission
type RegisterResponse struct {
	Message      string               `json:"message"`
	Registration *models.Registration `json:"registration"`
}

// Register handles POST /api/v1/registrations
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
			"code":    "INVALID_REQUEST",
		})
		return
	}

	reg, err := h.intakeService.Register(c.Request.Context(), services.IntakeRequest{
		IDOrPassport:              req.IDOrPassport,
		StaffNumber:               req.StaffNumber,
		FullName:                  req.FullName,
		Email:                     req.Email,
		MobileCountryCode:         req.MobileCountryCode,
		MobileNumber:              req.MobileNumber,
		ProfessionalNetworkHandle: req.ProfessionalNetworkHandle,
		EngagementPreferences:     req.EngagementPreferences,
	})
	if err != nil {
		var dup *models.DuplicateIdentityError
		if errors.As(err, &dup) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_identity",
				"message": dup.Error(),
				"field":   string(dup.Field),
				"code":    "DUPLICATE_IDENTITY",
			})
			return
		}

		h.logger.WithError(err).Error("Registration intake failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to process registration",
			"code":    "INTERNAL_ERROR",
		})
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		Message:      "Registration received. You will be notified once verification is complete.",
		Registration: reg,
	})
}

// Verify handles GET /api/v1/verify?token=...
func (h *RegistrationHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Verification token is required",
			"code":    "MISSING_TOKEN",
		})
		return
	}

	result, err := h.tokenService.Validate(token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenExpired):
			c.JSON(http.StatusGone, gin.H{
				"error":   "token_expired",
				"message": "This verification link has expired. Please contact the alumni office.",
				"code":    "TOKEN_EXPIRED",
			})
		case errors.Is(err, services.ErrTokenNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "token_not_found",
				"message": "This verification link is not valid.",
				"code":    "TOKEN_NOT_FOUND",
			})
		default:
			h.logger.WithError(err).Error("Token validation failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to verify token",
				"code":    "INTERNAL_ERROR",
			})
		}
		return
	}

	message := "Your account is now active. Welcome to the KQ Alumni Network."
	if result.AlreadyVerified {
		message = "Your account was already verified."
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          message,
		"already_verified": result.AlreadyVerified,
		"status":           result.Registration.Status,
	})
}
