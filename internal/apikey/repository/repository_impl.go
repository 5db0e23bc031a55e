package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Create(key).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys
		 SET name = ?, is_active = ?, updated_at = ?, expires_at = ?
		 WHERE company_id = ? AND key_id = ?`,
		key.Name,
		key.IsActive,
		key.UpdatedAt,
		key.ExpiresAt,
		key.CompanyID,
		key.KeyID,
	).Error
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID, keyID string) (*apikeydomain.APIKey, error) {
	return first(db.WithContext(ctx).Where("company_id = ? AND key_id = ?", companyID, keyID))
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, hash string) (*apikeydomain.APIKey, error) {
	return first(db.WithContext(ctx).Where("key_hash = ?", hash))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("created_at desc, id desc").
		Find(&keys).Error
	return keys, err
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id).Error
}

func first(stmt *gorm.DB) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := stmt.First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}
