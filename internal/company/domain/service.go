package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, company *Company) error
	Update(ctx context.Context, db *gorm.DB, company *Company) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	SlugExists(ctx context.Context, db *gorm.DB, slug string) (bool, error)
	ListLateFeeEnabled(ctx context.Context, db *gorm.DB) ([]Company, error)
	ListRemindersEnabled(ctx context.Context, db *gorm.DB) ([]Company, error)
	// IncrementInvoiceCounter bumps next_invoice_number and returns the value
	// that was current before the increment. db must be a transaction.
	IncrementInvoiceCounter(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}

type CreateRequest struct {
	Name                 string                     `json:"name"`
	Email                string                     `json:"email"`
	Phone                string                     `json:"phone"`
	Address              string                     `json:"address"`
	InvoicePrefix        string                     `json:"invoice_prefix"`
	DefaultCurrency      string                     `json:"default_currency"`
	DefaultTaxRate       decimal.Decimal            `json:"default_tax_rate"`
	DefaultPaymentTerms  invoicedomain.PaymentTerms `json:"default_payment_terms"`
	DefaultTemplateStyle string                     `json:"default_template_style"`
	Tier                 string                     `json:"tier"`
}

// UpdateSettingsRequest is a partial update; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	Name                 *string                     `json:"name"`
	Email                *string                     `json:"email"`
	Phone                *string                     `json:"phone"`
	Address              *string                     `json:"address"`
	InvoicePrefix        *string                     `json:"invoice_prefix"`
	DefaultCurrency      *string                     `json:"default_currency"`
	DefaultTaxRate       *decimal.Decimal            `json:"default_tax_rate"`
	DefaultPaymentTerms  *invoicedomain.PaymentTerms `json:"default_payment_terms"`
	DefaultNotes         *string                     `json:"default_notes"`
	DefaultTemplateStyle *string                     `json:"default_template_style"`
	LateFeeEnabled       *bool                       `json:"late_fee_enabled"`
	LateFeeType          *invoicedomain.LateFeeType  `json:"late_fee_type"`
	LateFeeAmount        *decimal.Decimal            `json:"late_fee_amount"`
	LateFeeMaxAmount     *decimal.Decimal            `json:"late_fee_max_amount"`
	LateFeeGraceDays     *int                        `json:"late_fee_grace_days"`
	RemindersEnabled     *bool                       `json:"reminders_enabled"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Company, error)
	Get(ctx context.Context) (*Company, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Company, error)
	UpdateSettings(ctx context.Context, req UpdateSettingsRequest) (*Company, error)

	// NextInvoiceNumber reserves the next number inside the caller's
	// transaction. The increment commits or rolls back with tx.
	NextInvoiceNumber(ctx context.Context, tx *gorm.DB, companyID snowflake.ID) (string, error)
}

var (
	ErrNotFound             = errors.New("company_not_found")
	ErrInvalidCompany       = errors.New("invalid_company")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidPrefix        = errors.New("invalid_invoice_prefix")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidTaxRate       = errors.New("invalid_tax_rate")
	ErrInvalidPaymentTerms  = errors.New("invalid_payment_terms")
	ErrInvalidTemplateStyle = errors.New("invalid_template_style")
	ErrInvalidLateFee       = errors.New("invalid_late_fee")
)
