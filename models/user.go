package models

import (
	"time"

	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierPremium SubscriptionTier = "premium"
)

// UserAccount is a local snapshot of user data needed by the timer service.
// Owned and managed solely by this service; populated via sync worker from
// the accounts service's user table. Authentication stays with the gateway.
type UserAccount struct {
	ID               string           `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID   string           `gorm:"uniqueIndex;not null" json:"external_user_id"` // the accounts service's UUID
	Email            string           `json:"email,omitempty"`
	SubscriptionTier SubscriptionTier `gorm:"type:varchar(16);default:'free'" json:"subscription_tier"`
	Timezone         string           `gorm:"size:64;default:'UTC'" json:"timezone"`

	Timestamps
}

func (u *UserAccount) IsPremium() bool {
	return u.SubscriptionTier == TierPremium
}

// Location resolves the user's configured timezone, falling back to UTC when
// the name is missing or unknown. Daily limits and day boundaries are always
// computed in this location.
func (u *UserAccount) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
