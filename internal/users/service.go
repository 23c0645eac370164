package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/internal/quota"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/linguamate-backend/pkg/errors"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
)

type repository interface {
	Create(ctx context.Context, dto CreateUserDTO) (*models.User, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fields map[string]any) error
	AddTotals(ctx context.Context, externalID string, delta quota.Counters) error
	UpdateTier(ctx context.Context, externalID string, tier enums.SubscriptionTier, premium bool) (bool, error)
}

// Service manages user profiles and their lifetime usage totals.
type Service interface {
	GetOrCreate(ctx context.Context, identity Identity) (*models.User, error)
	UpdateProfile(ctx context.Context, identity Identity, input UpdateProfileInput) (*models.User, error)
	AddLifetimeUsage(ctx context.Context, externalID string, delta quota.Counters) error
	SyncTier(ctx context.Context, externalID string, tier enums.SubscriptionTier) error
}

type service struct {
	repo repository
	logg *logger.Logger
}

// NewService builds the profile service.
func NewService(repo repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// GetOrCreate returns the caller's profile, creating it on first sight and
// refreshing email and name when the identity provider reports new values.
// A failed refresh still returns the stored profile.
func (s *service) GetOrCreate(ctx context.Context, identity Identity) (*models.User, error) {
	externalID := strings.TrimSpace(identity.ExternalID)
	if externalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	logCtx := s.logg.WithUserID(ctx, externalID)

	user, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user != nil {
		fields := identityChanges(user, identity)
		if len(fields) == 0 {
			return user, nil
		}
		if err := s.repo.UpdateProfile(ctx, user.ID, fields); err != nil {
			s.logg.Error(logCtx, "sync profile from identity provider failed", err)
			return user, nil
		}
		applyFields(user, fields)
		s.logg.Info(logCtx, "profile synced from identity provider")
		return user, nil
	}

	created, err := s.repo.Create(ctx, CreateUserDTO{
		ExternalID: externalID,
		Email:      identity.Email,
		FullName:   identity.FullName,
	})
	if err != nil {
		if !db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		existing, findErr := s.repo.FindByExternalID(ctx, externalID)
		if findErr != nil || existing == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload user after duplicate insert")
		}
		return existing, nil
	}
	s.logg.Info(logCtx, "user created")
	return created, nil
}

func (s *service) UpdateProfile(ctx context.Context, identity Identity, input UpdateProfileInput) (*models.User, error) {
	user, err := s.GetOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if input.Email != nil {
		fields["email"] = strings.TrimSpace(*input.Email)
	}
	if input.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*input.FullName)
	}
	if len(fields) == 0 {
		return user, nil
	}
	if err := s.repo.UpdateProfile(ctx, user.ID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile")
	}
	applyFields(user, fields)
	return user, nil
}

// AddLifetimeUsage adds delta to the user's running totals.
func (s *service) AddLifetimeUsage(ctx context.Context, externalID string, delta quota.Counters) error {
	if strings.TrimSpace(externalID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "User not authenticated")
	}
	if delta == (quota.Counters{}) {
		return nil
	}
	if err := s.repo.AddTotals(ctx, externalID, delta); err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update lifetime totals")
	}
	return nil
}

// SyncTier mirrors the subscription tier onto the profile. Users without a
// profile yet are skipped.
func (s *service) SyncTier(ctx context.Context, externalID string, tier enums.SubscriptionTier) error {
	matched, err := s.repo.UpdateTier(ctx, externalID, tier, tier.IsPaid())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update profile tier")
	}
	if !matched {
		s.logg.Debug(s.logg.WithUserID(ctx, externalID), "no profile to mirror tier onto")
	}
	return nil
}

func identityChanges(user *models.User, identity Identity) map[string]any {
	fields := map[string]any{}
	if email := strings.TrimSpace(identity.Email); email != "" && email != user.Email {
		fields["email"] = email
	}
	if name := strings.TrimSpace(identity.FullName); name != "" && name != user.FullName {
		fields["full_name"] = name
	}
	return fields
}

func applyFields(user *models.User, fields map[string]any) {
	if v, ok := fields["email"].(string); ok {
		user.Email = v
	}
	if v, ok := fields["full_name"].(string); ok {
		user.FullName = v
	}
}
