package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentLine is one rendered row of a Document.
type DocumentLine struct {
	Description string
	Quantity    decimal.Decimal
	Rate        decimal.Decimal
	Amount      decimal.Decimal
}

// Document is the rendering input shared by persisted invoices and previews.
type Document interface {
	Number() string
	IssuedOn() time.Time
	DueOn() time.Time
	CurrencyCode() string
	Style() string
	BillTo() Party
	Lines() []DocumentLine
	Amounts() DocumentAmounts
	Memo() string
	IsPreview() bool
}

// Party is the billed client.
type Party struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// DocumentAmounts carries the computed money fields.
type DocumentAmounts struct {
	Subtotal decimal.Decimal
	TaxRate  decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	LateFee  decimal.Decimal
	Total    decimal.Decimal
}

var _ Document = (*Invoice)(nil)
var _ Document = PreviewInvoice{}

func (i *Invoice) Number() string       { return i.InvoiceNumber }
func (i *Invoice) IssuedOn() time.Time  { return i.InvoiceDate }
func (i *Invoice) DueOn() time.Time     { return i.DueDate }
func (i *Invoice) CurrencyCode() string { return i.Currency }
func (i *Invoice) Style() string        { return i.TemplateStyle }
func (i *Invoice) Memo() string         { return i.Notes }
func (i *Invoice) IsPreview() bool      { return false }

func (i *Invoice) BillTo() Party {
	return Party{
		Name:    i.ClientName,
		Email:   i.ClientEmail,
		Phone:   i.ClientPhone,
		Address: i.ClientAddress,
	}
}

func (i *Invoice) Lines() []DocumentLine {
	lines := make([]DocumentLine, 0, len(i.LineItems))
	for _, item := range i.LineItems {
		lines = append(lines, DocumentLine{
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Amount:      item.Amount,
		})
	}
	return lines
}

func (i *Invoice) Amounts() DocumentAmounts {
	return DocumentAmounts{
		Subtotal: i.Subtotal,
		TaxRate:  i.TaxRate,
		Tax:      i.TaxAmount,
		Discount: i.DiscountAmount,
		LateFee:  i.LateFeeApplied,
		Total:    i.Total,
	}
}

// PreviewInvoice is a read-only projection used to render a document that
// has no database record. Build it with NewPreviewInvoice so its totals are
// computed the same way as a persisted invoice.
type PreviewInvoice struct {
	number   string
	issued   time.Time
	due      time.Time
	currency string
	style    string
	party    Party
	lines    []DocumentLine
	amounts  DocumentAmounts
	notes    string
}

// PreviewInput is the draft data a preview is computed from.
type PreviewInput struct {
	InvoiceNumber  string
	Client         Party
	InvoiceDate    time.Time
	PaymentTerms   PaymentTerms
	Currency       string
	TaxRate        decimal.Decimal
	DiscountAmount decimal.Decimal
	TemplateStyle  string
	Notes          string
	Items          []LineItemInput
}

// NewPreviewInvoice computes totals for in immutably.
func NewPreviewInvoice(in PreviewInput) PreviewInvoice {
	inv := Invoice{
		InvoiceDate:    in.InvoiceDate,
		PaymentTerms:   in.PaymentTerms,
		TaxRate:        in.TaxRate,
		DiscountAmount: in.DiscountAmount,
	}
	for idx, item := range in.Items {
		inv.LineItems = append(inv.LineItems, LineItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Order:       idx,
		})
	}
	inv.CalculateTotals()
	inv.CalculateDueDate()

	number := in.InvoiceNumber
	if number == "" {
		number = "PREVIEW"
	}
	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	style := in.TemplateStyle
	if style == "" {
		style = DefaultTemplateStyle
	}

	return PreviewInvoice{
		number:   number,
		issued:   inv.InvoiceDate,
		due:      inv.DueDate,
		currency: currency,
		style:    style,
		party:    in.Client,
		lines:    inv.Lines(),
		amounts:  inv.Amounts(),
		notes:    in.Notes,
	}
}

func (p PreviewInvoice) Number() string           { return p.number }
func (p PreviewInvoice) IssuedOn() time.Time      { return p.issued }
func (p PreviewInvoice) DueOn() time.Time         { return p.due }
func (p PreviewInvoice) CurrencyCode() string     { return p.currency }
func (p PreviewInvoice) Style() string            { return p.style }
func (p PreviewInvoice) BillTo() Party            { return p.party }
func (p PreviewInvoice) Amounts() DocumentAmounts { return p.amounts }
func (p PreviewInvoice) Memo() string             { return p.notes }
func (p PreviewInvoice) IsPreview() bool          { return true }

func (p PreviewInvoice) Lines() []DocumentLine {
	out := make([]DocumentLine, len(p.lines))
	copy(out, p.lines)
	return out
}

// FreePlanWatermark is stamped on PDFs of accounts whose plan requires it.
const FreePlanWatermark = "Created with InvoiceKits Free"

// Watermarker is implemented by documents that must carry a watermark.
type Watermarker interface {
	WatermarkText() string
}

type watermarked struct {
	Document
	text string
}

func (w watermarked) WatermarkText() string { return w.text }

// WithWatermark marks doc so renderers stamp text across every page.
func WithWatermark(doc Document, text string) Document {
	return watermarked{Document: doc, text: text}
}
