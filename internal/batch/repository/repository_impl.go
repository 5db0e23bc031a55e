package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/pkg/db/option"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() batchdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, batch *batchdomain.Batch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) UpdateProcessing(ctx context.Context, db *gorm.DB, batch *batchdomain.Batch) (bool, error) {
	res := db.WithContext(ctx).
		Model(batch).
		Where("status = ?", batchdomain.StatusProcessing).
		Select("*").
		Omit("id", "created_at").
		Updates(batch)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*batchdomain.Batch, error) {
	var batch batchdomain.Batch
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *repo) FindByCompany(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*batchdomain.Batch, error) {
	var batch batchdomain.Batch
	err := db.WithContext(ctx).
		Where("company_id = ? AND id = ?", companyID, id).
		Limit(1).
		Find(&batch).Error
	if err != nil {
		return nil, err
	}
	if batch.ID == 0 {
		return nil, nil
	}
	return &batch, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, page pagination.Pagination) ([]*batchdomain.Batch, error) {
	var batches []*batchdomain.Batch
	stmt := db.WithContext(ctx).
		Model(&batchdomain.Batch{}).
		Where("company_id = ?", companyID)
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repo) Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoice_batches SET status = ?, started_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		batchdomain.StatusProcessing, at, at, id, batchdomain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPendingIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).
		Model(&batchdomain.Batch{}).
		Where("status = ?", batchdomain.StatusPending).
		Order("id asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) FailStale(ctx context.Context, db *gorm.DB, cutoff, at time.Time, message string) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoice_batches SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
		 WHERE status = ? AND started_at < ?`,
		batchdomain.StatusFailed, message, at, at, batchdomain.StatusProcessing, cutoff,
	)
	return res.RowsAffected, res.Error
}
