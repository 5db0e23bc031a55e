package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, account *Account) error
	FindByCompanyID(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*Account, error)
	UpdateTier(ctx context.Context, db *gorm.DB, companyID snowflake.ID, tier string) error
	ResetPeriod(ctx context.Context, db *gorm.DB, companyID snowflake.ID, periodStart time.Time) error
	// AddInvoices increments usage when the result stays within limit
	// (limit < 0 means unlimited) and reports whether a row was updated.
	AddInvoices(ctx context.Context, db *gorm.DB, companyID snowflake.ID, n, limit int) (bool, error)
}

// Usage is the quota view returned to API callers.
type Usage struct {
	Tier        string    `json:"tier"`
	PlanName    string    `json:"plan_name"`
	Used        int       `json:"used"`
	Limit       int       `json:"limit"`
	Remaining   int       `json:"remaining"`
	Unlimited   bool      `json:"unlimited"`
	BatchUpload bool      `json:"batch_upload"`
	Watermark   bool      `json:"watermark"`
	PeriodStart time.Time `json:"period_start"`
}

type Service interface {
	EnsureAccount(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, tier string) (*Account, error)
	Usage(ctx context.Context, companyID snowflake.ID) (Usage, error)
	CanCreateInvoices(ctx context.Context, companyID snowflake.ID, n int) (bool, error)
	IncrementInvoiceCount(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, n int) error
	CanBatchUpload(ctx context.Context, companyID snowflake.ID) (bool, error)
	SetTier(ctx context.Context, companyID snowflake.ID, tier string) error
}

var (
	ErrNotFound      = errors.New("account_not_found")
	ErrInvalidTier   = errors.New("invalid_tier")
	ErrInvalidCount  = errors.New("invalid_invoice_count")
	ErrQuotaExceeded = errors.New("invoice_quota_exceeded")
)
