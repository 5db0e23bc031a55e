// Package domain contains the invoice aggregate and its persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// PaymentTerms is the offset from invoice date to due date.
type PaymentTerms string

const (
	PaymentTermsDueOnReceipt PaymentTerms = "due_on_receipt"
	PaymentTermsNet15        PaymentTerms = "net_15"
	PaymentTermsNet30        PaymentTerms = "net_30"
	PaymentTermsNet45        PaymentTerms = "net_45"
	PaymentTermsNet60        PaymentTerms = "net_60"
)

const (
	DefaultCurrency      = "USD"
	DefaultTemplateStyle = "clean_slate"
	DefaultPaymentTerms  = PaymentTermsNet30
)

// Invoice is a billable document for one client under one company.
type Invoice struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	CompanyID        snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_invoice_company_number,priority:1" json:"company_id"`
	InvoiceNumber    string           `gorm:"type:varchar(50);not null;uniqueIndex:ux_invoice_company_number,priority:2" json:"invoice_number"`
	Status           InvoiceStatus    `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	ClientName       string           `gorm:"type:varchar(255);not null" json:"client_name"`
	ClientEmail      string           `gorm:"type:varchar(255)" json:"client_email"`
	ClientPhone      string           `gorm:"type:varchar(50)" json:"client_phone"`
	ClientAddress    string           `gorm:"type:text" json:"client_address"`
	InvoiceDate      time.Time        `gorm:"not null" json:"invoice_date"`
	DueDate          time.Time        `gorm:"not null;index" json:"due_date"`
	PaymentTerms     PaymentTerms     `gorm:"type:varchar(20);not null;default:'net_30'" json:"payment_terms"`
	Currency         string           `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Subtotal         decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"subtotal"`
	TaxRate          decimal.Decimal  `gorm:"type:numeric(5,2);not null;default:0" json:"tax_rate"`
	TaxAmount        decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"tax_amount"`
	DiscountAmount   decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"discount_amount"`
	Total            decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"total"`
	LateFeeApplied   decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"late_fee_applied"`
	OriginalTotal    *decimal.Decimal `gorm:"type:numeric(12,2)" json:"original_total,omitempty"`
	LateFeeAppliedAt *time.Time       `json:"late_fee_applied_at,omitempty"`
	LateFeesPaused   bool             `gorm:"not null;default:false" json:"late_fees_paused"`
	Notes            string           `gorm:"type:text" json:"notes"`
	TemplateStyle    string           `gorm:"type:varchar(50);not null;default:'clean_slate'" json:"template_style"`
	PDFKey           string           `gorm:"type:text" json:"pdf_key,omitempty"`
	SentAt           *time.Time       `json:"sent_at,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null" json:"updated_at"`

	LineItems []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"line_items"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// LineItem is one quantity x rate row on an invoice.
type LineItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Description string          `gorm:"type:varchar(500);not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"quantity"`
	Rate        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"rate"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Order       int             `gorm:"column:sort_order;not null;default:0" json:"order"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LineItem) TableName() string { return "invoice_line_items" }

// LateFeeLog records every late fee applied to an invoice.
type LateFeeLog struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	FeeType     LateFeeType     `gorm:"type:varchar(20);not null" json:"fee_type"`
	FeeAmount   decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"fee_amount"`
	DaysOverdue int             `gorm:"not null" json:"days_overdue"`
	TotalBefore decimal.Decimal `gorm:"column:invoice_total_before;type:numeric(12,2);not null" json:"invoice_total_before"`
	TotalAfter  decimal.Decimal `gorm:"column:invoice_total_after;type:numeric(12,2);not null" json:"invoice_total_after"`
	AppliedBy   string          `gorm:"type:varchar(50);not null;default:'system'" json:"applied_by"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LateFeeLog) TableName() string { return "late_fee_logs" }

// ReminderLog deduplicates payment reminders per invoice and offset.
type ReminderLog struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	InvoiceID      snowflake.ID `gorm:"not null;uniqueIndex:ux_reminder_invoice_offset,priority:1"`
	DaysOffset     int          `gorm:"not null;uniqueIndex:ux_reminder_invoice_offset,priority:2"`
	ReminderType   string       `gorm:"type:varchar(20);not null"`
	RecipientEmail string       `gorm:"type:varchar(255);not null"`
	Success        bool         `gorm:"not null"`
	ErrorMessage   string       `gorm:"type:text"`
	CreatedAt      time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ReminderLog) TableName() string { return "payment_reminder_logs" }

// Currencies lists the supported invoice currencies and their symbols.
var Currencies = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "C$",
	"AUD": "A$",
	"JPY": "¥",
	"INR": "₹",
}

// TemplateStyles lists the supported PDF template styles.
var TemplateStyles = []string{
	"clean_slate",
	"executive",
	"bold_modern",
	"classic_professional",
	"neon_edge",
}

// CurrencySymbol returns the display symbol for a currency code.
func CurrencySymbol(code string) string {
	if symbol, ok := Currencies[code]; ok {
		return symbol
	}
	return code
}

func IsSupportedCurrency(code string) bool {
	_, ok := Currencies[code]
	return ok
}

func IsSupportedTemplateStyle(style string) bool {
	for _, s := range TemplateStyles {
		if s == style {
			return true
		}
	}
	return false
}
