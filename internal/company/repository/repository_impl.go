package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() companydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, company *companydomain.Company) error {
	return db.WithContext(ctx).Create(company).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, company *companydomain.Company) error {
	// next_invoice_number is owned by IncrementInvoiceCounter.
	return db.WithContext(ctx).Model(company).Omit("next_invoice_number", "created_at").Select("*").Updates(company).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*companydomain.Company, error) {
	var company companydomain.Company
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&company).Error
	if err != nil {
		return nil, err
	}
	if company.ID == 0 {
		return nil, nil
	}
	return &company, nil
}

func (r *repo) SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&companydomain.Company{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *repo) ListLateFeeEnabled(ctx context.Context, db *gorm.DB) ([]companydomain.Company, error) {
	var companies []companydomain.Company
	err := db.WithContext(ctx).
		Where("late_fee_enabled = ?", true).
		Order("id asc").
		Find(&companies).Error
	return companies, err
}

func (r *repo) ListRemindersEnabled(ctx context.Context, db *gorm.DB) ([]companydomain.Company, error) {
	var companies []companydomain.Company
	err := db.WithContext(ctx).
		Where("reminders_enabled = ?", true).
		Order("id asc").
		Find(&companies).Error
	return companies, err
}

func (r *repo) IncrementInvoiceCounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE companies SET next_invoice_number = next_invoice_number + 1 WHERE id = ?`,
		id,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, companydomain.ErrNotFound
	}

	var next int64
	if err := db.WithContext(ctx).Raw(
		`SELECT next_invoice_number FROM companies WHERE id = ?`,
		id,
	).Scan(&next).Error; err != nil {
		return 0, err
	}
	return next - 1, nil
}
