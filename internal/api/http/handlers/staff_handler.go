package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/wager-arbiter/internal/api/dto"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/service"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// StaffHandler covers staff authentication endpoints.
type StaffHandler struct {
	auth *service.AuthService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(authService *service.AuthService) *StaffHandler {
	return &StaffHandler{auth: authService}
}

// Login POST /auth/staff/login.
func (h *StaffHandler) Login(c *fiber.Ctx) error {
	var req dto.StaffLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	session, err := h.auth.Login(c.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.StaffSessionResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Staff:     staffResponse(session.Staff),
	}})
}

// Register POST /auth/staff/register. Admin-only, enforced by the route.
func (h *StaffHandler) Register(c *fiber.Ctx) error {
	var req dto.StaffRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}
	member, err := h.auth.Register(c.Context(),
		req.Name,
		strings.ToLower(strings.TrimSpace(req.Email)),
		req.Password,
		domain.StaffRole(strings.ToUpper(req.Role)),
		req.PlatformID,
	)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": staffResponse(member)})
}

func staffResponse(member *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:         member.ID,
		Name:       member.Name,
		Email:      member.Email,
		Role:       string(member.Role),
		PlatformID: member.PlatformID,
		Active:     member.Active,
	}
}
