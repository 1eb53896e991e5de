package service

import (
	"context"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"
	"marketplace-orders/internal/store"
	"marketplace-orders/internal/util"

	"go.uber.org/zap"
)

// UserService is the administrator's view of accounts. Users are never
// deleted, only disabled. Role changes take effect when the user's next
// token is issued.
type UserService struct {
	repo   store.Repository
	logger *zap.Logger
}

func NewUserService(repo store.Repository) *UserService {
	return &UserService{repo: repo, logger: util.GetLogger()}
}

func (s *UserService) List(ctx context.Context, p auth.Principal) ([]models.User, error) {
	if err := access.RequireCapacity(p, access.AsAdmin); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *UserService) Get(ctx context.Context, p auth.Principal, id int64) (*models.User, error) {
	if err := access.RequireCapacity(p, access.AsAdmin); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}

// SetEnabled enables or disables an account.
func (s *UserService) SetEnabled(ctx context.Context, p auth.Principal, id int64, enabled bool) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.SetEnabled")
	defer span.End()

	if err := access.RequireCapacity(p, access.AsAdmin); err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Enabled = enabled
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User enabled flag changed",
		zap.Int64("user_id", id),
		zap.Bool("enabled", enabled),
		zap.Int64("admin_id", p.UserID))
	return user, nil
}

// SetRoles replaces the role set of an account.
func (s *UserService) SetRoles(ctx context.Context, p auth.Principal, id int64, names []string) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.SetRoles")
	defer span.End()

	if err := access.RequireCapacity(p, access.AsAdmin); err != nil {
		return nil, err
	}
	roles, err := parseRoles(names)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Roles = roles
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("User roles changed",
		zap.Int64("user_id", id),
		zap.Strings("roles", roles.Strings()),
		zap.Int64("admin_id", p.UserID))
	return user, nil
}

func parseRoles(names []string) (models.Roles, error) {
	if len(names) == 0 {
		return nil, apperr.Validation("at least one role is required")
	}
	roles := make(models.Roles, 0, len(names))
	for _, name := range names {
		role, ok := models.ParseRole(name)
		if !ok {
			return nil, apperr.Validation("unknown role %q", name)
		}
		if !roles.Has(role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}
