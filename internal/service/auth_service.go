package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/wager-arbiter/internal/auth"
	"github.com/spec-kit/wager-arbiter/internal/domain"
	"github.com/spec-kit/wager-arbiter/internal/repository"
	apperrors "github.com/spec-kit/wager-arbiter/pkg/util"
)

// AuthService issues staff tokens and manages staff accounts.
type AuthService struct {
	staff      repository.StaffRepository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// StaffSession is a successful login result.
type StaffSession struct {
	Token     string
	ExpiresAt time.Time
	Staff     *domain.StaffMember
}

// NewAuthService constructs the service.
func NewAuthService(staff repository.StaffRepository, tokens *auth.TokenManager, bcryptCost int, logger *zap.Logger) *AuthService {
	return &AuthService{staff: staff, tokens: tokens, bcryptCost: bcryptCost, logger: logger}
}

// Login verifies credentials and returns a signed staff token. Unknown email
// and bad password collapse into the same error so the endpoint leaks
// nothing about which accounts exist.
func (s *AuthService) Login(ctx context.Context, email, password string) (*StaffSession, error) {
	member, err := s.staff.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if !member.Active {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(member.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	role := member.Role
	token, expiresAt, err := s.tokens.GenerateToken(member.ID, domain.SubjectTypeStaff, &role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("staff login", zap.String("staff_id", member.ID), zap.String("role", string(member.Role)))
	return &StaffSession{Token: token, ExpiresAt: expiresAt, Staff: member}, nil
}

// Register creates a staff account. Admin-only at the transport layer.
func (s *AuthService) Register(ctx context.Context, name, email, password string, role domain.StaffRole, platformID *string) (*domain.StaffMember, error) {
	if role != domain.StaffRoleModerator && role != domain.StaffRoleAdmin {
		return nil, apperrors.NewValidationError("unknown staff role", map[string]any{"role": role})
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	member := &domain.StaffMember{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		PlatformID:   platformID,
		Active:       true,
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

// ResolvePlatformStaff maps a chat-platform user id onto a staff account,
// used when staff act through channel buttons instead of the HTTP surface.
func (s *AuthService) ResolvePlatformStaff(ctx context.Context, platformID string) (*domain.StaffMember, error) {
	member, err := s.staff.GetByPlatformID(ctx, platformID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewForbidden("not a staff member")
		}
		return nil, apperrors.MapError(err)
	}
	if !member.Active {
		return nil, apperrors.NewForbidden("not a staff member")
	}
	return member, nil
}
