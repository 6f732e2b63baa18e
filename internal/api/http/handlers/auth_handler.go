package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/devdesk/ticket-lifecycle/internal/api/dto"
	"github.com/devdesk/ticket-lifecycle/internal/domain"
	"github.com/devdesk/ticket-lifecycle/internal/service"
	apperrors "github.com/devdesk/ticket-lifecycle/pkg/util/errorutil"
)

// AuthHandler exposes the login endpoint.
type AuthHandler struct {
	service *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{service: authService}
}

// Login POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.service.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      userResponse(result.User),
	}})
}

func userResponse(user *domain.UserAccount) dto.UserResponse {
	return dto.UserResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		DisplayName:    user.DisplayName,
		Role:           user.Role,
		DepartmentHead: user.DepartmentHead,
		OfficeHead:     user.OfficeHead,
		GroupDirector:  user.GroupDirector,
	}
}
