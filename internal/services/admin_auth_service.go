package services

import (
	"fmt"
	"time"

	"github.com/wawire/kq-alumni-platform/internal/database"
	"github.com/wawire/kq-alumni-platform/internal/models"
	"github.com/wawire/kq-alumni-platform/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthService handles admin authentication
type AdminAuthService struct {
	adminRepo         *database.AdminUserRepository
	jwtService        *jwt.Service
	accessTokenExpiry time.Duration
}

// NewAdminAuthService creates a new admin auth service
func NewAdminAuthService(adminRepo *database.AdminUserRepository, jwtService *jwt.Service, accessTokenExpiry time.Duration) *AdminAuthService {
	return &AdminAuthService{
		adminRepo:         adminRepo,
		jwtService:        jwtService,
		accessTokenExpiry: accessTokenExpiry,
	}
}

// Login authenticates an admin user and returns tokens
func (s *AdminAuthService) Login(email, password string) (*models.AdminLoginResponse, error) {
	admin, err := s.adminRepo.GetByEmail(email)
	if err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	if !admin.IsActive {
		return nil, fmt.Errorf("account is inactive")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password")
	}

	accessToken, err := s.jwtService.GenerateAccessToken(admin.ID, admin.Email, []string{"admin"})
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := s.jwtService.GenerateRefreshToken(admin.ID, admin.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	if err := s.adminRepo.UpdateLastLogin(admin.ID); err != nil {
		// Not worth failing the login over
		fmt.Printf("Warning: failed to update last login for admin %s: %v\n", admin.ID, err)
	}

	return &models.AdminLoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTokenExpiry.Seconds()),
		Admin:        admin,
	}, nil
}
