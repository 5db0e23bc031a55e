package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores hashed API credentials scoped to a company.
type APIKey struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"-"`
	CompanyID  snowflake.ID `gorm:"column:company_id;not null;uniqueIndex:ux_api_keys_company_key_id,priority:1" json:"-"`
	KeyID      string       `gorm:"column:key_id;type:text;not null;uniqueIndex:ux_api_keys_company_key_id,priority:2" json:"key_id"`
	Name       string       `gorm:"type:text;not null" json:"name"`
	KeyHash    string       `gorm:"column:key_hash;type:text;not null;uniqueIndex" json:"-"`
	IsActive   bool         `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt  time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null" json:"updated_at"`
	LastUsedAt *time.Time   `gorm:"column:last_used_at" json:"last_used_at"`
	ExpiresAt  *time.Time   `gorm:"column:expires_at" json:"expires_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }

// Usable reports whether the key may authenticate at now.
func (k *APIKey) Usable(now time.Time) bool {
	if k == nil || !k.IsActive {
		return false
	}
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}
