package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller: a staff member using the
// moderation surface, or the bot gateway acting for chat participants.
type Principal struct {
	SubjectType domain.SubjectType
	Staff       *domain.StaffMember
	Role        *domain.StaffRole
	GatewayID   string
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject, Role: claims.Role}

	switch claims.Subject {
	case domain.SubjectTypeStaff:
		staff, err := m.staff.GetByID(c.Context(), claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUnauthorized("staff member not found")
			}
			return apperrors.MapError(err)
		}
		if !staff.Active {
			return apperrors.NewForbidden("staff member deactivated")
		}
		principal.Staff = staff
		principal.Role = &staff.Role
	case domain.SubjectTypeGateway:
		principal.GatewayID = claims.SubjectID
	default:
		return apperrors.NewUnauthorized("unknown subject type")
	}

	c.Locals(principalKey, principal)
	return c.Next()
}

// PrincipalFromContext extracts the authenticated principal.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	principal, ok := c.Locals(principalKey).(*Principal)
	return principal, ok && principal != nil
}
