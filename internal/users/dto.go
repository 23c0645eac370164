package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/linguamate-backend/pkg/db/models"
	"github.com/angelmondragon/linguamate-backend/pkg/enums"
)

// UserDTO is the transport shape of a profile.
type UserDTO struct {
	ID                  uuid.UUID              `json:"id"`
	ExternalID          string                 `json:"external_id"`
	Email               string                 `json:"email"`
	FullName            string                 `json:"full_name"`
	SubscriptionTier    enums.SubscriptionTier `json:"subscription_tier"`
	IsPremium           bool                   `json:"is_premium"`
	TotalConversations  int64                  `json:"total_conversations"`
	TotalCharactersUsed int64                  `json:"total_characters_used"`
	TotalMinutesUsed    int64                  `json:"total_minutes_used"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// Identity is what the identity provider asserts about the caller.
type Identity struct {
	ExternalID string
	Email      string
	FullName   string
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ExternalID string
	Email      string
	FullName   string
}

// UpdateProfileInput carries optional profile edits; nil fields are left alone.
type UpdateProfileInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=320"`
	FullName *string `json:"full_name" validate:"omitempty,max=200"`
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                  u.ID,
		ExternalID:          u.ExternalID,
		Email:               u.Email,
		FullName:            u.FullName,
		SubscriptionTier:    u.SubscriptionTier,
		IsPremium:           u.IsPremium,
		TotalConversations:  u.TotalConversations,
		TotalCharactersUsed: u.TotalCharactersUsed,
		TotalMinutesUsed:    u.TotalMinutesUsed,
		CreatedAt:           u.CreatedAt,
		UpdatedAt:           u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		ID:               uuid.New(),
		ExternalID:       strings.TrimSpace(c.ExternalID),
		Email:            strings.TrimSpace(c.Email),
		FullName:         strings.TrimSpace(c.FullName),
		SubscriptionTier: enums.SubscriptionTierFree,
	}
}
