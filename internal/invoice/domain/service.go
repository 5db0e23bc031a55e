package domain

import (
	"context"
	"errors"
	"time"

	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"github.com/shopspring/decimal"
)

// Request sources, used as metric labels.
const (
	SourceAPI   = "api"
	SourceBatch = "batch"
)

// LineItemInput is the data needed to create or replace a line item.
type LineItemInput struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Rate        decimal.Decimal `json:"rate"`
}

type CreateInvoiceRequest struct {
	ClientName     string           `json:"client_name"`
	ClientEmail    string           `json:"client_email"`
	ClientPhone    string           `json:"client_phone"`
	ClientAddress  string           `json:"client_address"`
	InvoiceDate    *time.Time       `json:"invoice_date"`
	PaymentTerms   PaymentTerms     `json:"payment_terms"`
	Currency       string           `json:"currency"`
	TaxRate        *decimal.Decimal `json:"tax_rate"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
	Notes          string           `json:"notes"`
	TemplateStyle  string           `json:"template_style"`
	Items          []LineItemInput  `json:"items"`

	// Source labels where the request came from (api, batch) for metrics.
	Source string `json:"-"`
}

type ListInvoiceRequest struct {
	Status    InvoiceStatus
	PageToken string
	PageSize  int
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// Service manages invoices of the company carried in the request context.
type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)

	AddLineItem(ctx context.Context, invoiceID string, item LineItemInput) (*Invoice, error)
	UpdateLineItem(ctx context.Context, invoiceID, itemID string, item LineItemInput) (*Invoice, error)
	RemoveLineItem(ctx context.Context, invoiceID, itemID string) (*Invoice, error)
	UpdateDiscount(ctx context.Context, invoiceID string, discount decimal.Decimal) (*Invoice, error)

	Send(ctx context.Context, id string) (*Invoice, error)
	MarkPaid(ctx context.Context, id string) (*Invoice, error)
	Cancel(ctx context.Context, id string) (*Invoice, error)
	MarkOverdue(ctx context.Context, id string) (*Invoice, error)

	ApplyLateFee(ctx context.Context, id string, amount decimal.Decimal) (*Invoice, error)
	RemoveLateFee(ctx context.Context, id string) (*Invoice, error)
	SetLateFeesPaused(ctx context.Context, id string, paused bool) (*Invoice, error)

	RenderPDF(ctx context.Context, id string) ([]byte, error)
	Preview(ctx context.Context, req CreateInvoiceRequest) ([]byte, error)
}

// Renderer turns a Document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

var (
	ErrNotFound              = errors.New("not_found")
	ErrInvalidCompany        = errors.New("invalid_company")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidClientName     = errors.New("invalid_client_name")
	ErrInvalidDescription    = errors.New("invalid_description")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidRate           = errors.New("invalid_rate")
	ErrInvalidTaxRate        = errors.New("invalid_tax_rate")
	ErrInvalidDiscount       = errors.New("invalid_discount")
	ErrInvalidCurrency       = errors.New("invalid_currency")
	ErrInvalidPaymentTerms   = errors.New("invalid_payment_terms")
	ErrInvalidTemplateStyle  = errors.New("invalid_template_style")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidTransition     = errors.New("invalid_status_transition")
	ErrNotEditable           = errors.New("invoice_not_editable")
	ErrLateFeeAlreadyApplied = errors.New("late_fee_already_applied")
	ErrNoLateFee             = errors.New("late_fee_not_applied")
	ErrAmountOverflow        = errors.New("amount_overflow")
	ErrQuotaExceeded         = errors.New("invoice_quota_exceeded")
	ErrRendererUnavailable   = errors.New("renderer_unavailable")
)
