package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	Update(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByKeyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID, keyID string) (*APIKey, error)
	FindByHash(ctx context.Context, db *gorm.DB, hash string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]APIKey, error)
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}

type Service interface {
	List(ctx context.Context) ([]APIKey, error)
	Create(ctx context.Context, req CreateRequest) (*SecretResponse, error)
	Revoke(ctx context.Context, keyID string) error
	// Authenticate resolves a raw bearer token to its key.
	Authenticate(ctx context.Context, raw string) (*APIKey, error)
}

type CreateRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// SecretResponse is the only time the plain key is returned.
type SecretResponse struct {
	KeyID  string `json:"key_id"`
	APIKey string `json:"api_key"`
}

var (
	ErrInvalidCompany = errors.New("invalid_company")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidKeyID   = errors.New("invalid_key_id")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidKey     = errors.New("invalid_api_key")
)
