package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultInvoicePrefix  = "INV-"
	DefaultLateFeeGrace   = 3
	DefaultLateFeeType    = invoicedomain.LateFeeTypePercentage
	DefaultNextInvoiceNum = 1
)

// Company is the tenant that issues invoices. It owns the invoice counter
// and the defaults applied to new invoices.
type Company struct {
	ID                   snowflake.ID               `gorm:"primaryKey" json:"id"`
	Name                 string                     `gorm:"type:varchar(255);not null" json:"name"`
	Slug                 string                     `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	Email                string                     `gorm:"type:varchar(255)" json:"email"`
	Phone                string                     `gorm:"type:varchar(50)" json:"phone"`
	Address              string                     `gorm:"type:text" json:"address"`
	InvoicePrefix        string                     `gorm:"type:varchar(20);not null;default:'INV-'" json:"invoice_prefix"`
	NextInvoiceNumber    int64                      `gorm:"not null;default:1" json:"next_invoice_number"`
	DefaultCurrency      string                     `gorm:"type:varchar(3);not null;default:'USD'" json:"default_currency"`
	DefaultTaxRate       decimal.Decimal            `gorm:"type:numeric(5,2);not null;default:0" json:"default_tax_rate"`
	DefaultPaymentTerms  invoicedomain.PaymentTerms `gorm:"type:varchar(20);not null;default:'net_30'" json:"default_payment_terms"`
	DefaultNotes         string                     `gorm:"type:text" json:"default_notes"`
	DefaultTemplateStyle string                     `gorm:"type:varchar(50);not null;default:'clean_slate'" json:"default_template_style"`
	LateFeeEnabled       bool                       `gorm:"not null;default:false" json:"late_fee_enabled"`
	LateFeeType          invoicedomain.LateFeeType  `gorm:"type:varchar(20);not null;default:'percentage'" json:"late_fee_type"`
	LateFeeAmount        decimal.Decimal            `gorm:"type:numeric(10,2);not null;default:0" json:"late_fee_amount"`
	LateFeeMaxAmount     *decimal.Decimal           `gorm:"type:numeric(10,2)" json:"late_fee_max_amount,omitempty"`
	LateFeeGraceDays     int                        `gorm:"not null;default:3" json:"late_fee_grace_days"`
	RemindersEnabled     bool                       `gorm:"not null;default:true" json:"reminders_enabled"`
	CreatedAt            time.Time                  `gorm:"not null" json:"created_at"`
	UpdatedAt            time.Time                  `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Company) TableName() string { return "companies" }

// LateFeePolicy returns the company's late fee settings.
func (c *Company) LateFeePolicy() invoicedomain.LateFeePolicy {
	grace := c.LateFeeGraceDays
	if grace < 0 {
		grace = DefaultLateFeeGrace
	}
	return invoicedomain.LateFeePolicy{
		Type:      c.LateFeeType,
		Amount:    c.LateFeeAmount,
		MaxAmount: c.LateFeeMaxAmount,
		GraceDays: grace,
	}
}

// Defaults are the company values applied to fields an invoice omits.
type Defaults struct {
	Currency      string
	TaxRate       decimal.Decimal
	PaymentTerms  invoicedomain.PaymentTerms
	Notes         string
	TemplateStyle string
}

func (c *Company) Defaults() Defaults {
	d := Defaults{
		Currency:      c.DefaultCurrency,
		TaxRate:       c.DefaultTaxRate,
		PaymentTerms:  c.DefaultPaymentTerms,
		Notes:         c.DefaultNotes,
		TemplateStyle: c.DefaultTemplateStyle,
	}
	if d.Currency == "" {
		d.Currency = invoicedomain.DefaultCurrency
	}
	if d.PaymentTerms == "" {
		d.PaymentTerms = invoicedomain.DefaultPaymentTerms
	}
	if d.TemplateStyle == "" {
		d.TemplateStyle = invoicedomain.DefaultTemplateStyle
	}
	return d
}
