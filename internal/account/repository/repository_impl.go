package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *accountdomain.Account) error {
	return db.WithContext(ctx).Create(account).Error
}

func (r *repo) FindByCompanyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*accountdomain.Account, error) {
	var account accountdomain.Account
	err := db.WithContext(ctx).Where("company_id = ?", companyID).Limit(1).Find(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) UpdateTier(ctx context.Context, db *gorm.DB, companyID snowflake.ID, tier string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET tier = ?, updated_at = ? WHERE company_id = ?`,
		tier, time.Now().UTC(), companyID,
	).Error
}

func (r *repo) ResetPeriod(ctx context.Context, db *gorm.DB, companyID snowflake.ID, periodStart time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET invoices_this_period = 0, period_start = ?, updated_at = ?
		 WHERE company_id = ? AND period_start < ?`,
		periodStart, time.Now().UTC(), companyID, periodStart,
	).Error
}

func (r *repo) AddInvoices(ctx context.Context, db *gorm.DB, companyID snowflake.ID, n, limit int) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE accounts SET invoices_this_period = invoices_this_period + ?, updated_at = ?
		 WHERE company_id = ? AND (? < 0 OR invoices_this_period + ? <= ?)`,
		n, time.Now().UTC(), companyID, limit, n, limit,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
