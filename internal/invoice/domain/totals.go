package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of fractional digits stored for amounts.
const MoneyPlaces = 2

var hundred = decimal.NewFromInt(100)

var paymentTermDays = map[PaymentTerms]int{
	PaymentTermsDueOnReceipt: 0,
	PaymentTermsNet15:        15,
	PaymentTermsNet30:        30,
	PaymentTermsNet45:        45,
	PaymentTermsNet60:        60,
}

// RoundMoney rounds to cents using round-half-even.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(MoneyPlaces)
}

// PercentOf returns round(base * pct / 100, 2).
func PercentOf(base, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(base.Mul(pct).Div(hundred))
}

// TermDays returns the number of days for the given terms. Unknown terms
// default to 30 days.
func TermDays(terms PaymentTerms) int {
	if days, ok := paymentTermDays[terms]; ok {
		return days
	}
	return 30
}

// IsKnownPaymentTerms reports whether terms is one of the enumerated values.
func IsKnownPaymentTerms(terms PaymentTerms) bool {
	_, ok := paymentTermDays[terms]
	return ok
}

// CalculateDueDate adds the payment-terms offset in calendar days.
func CalculateDueDate(invoiceDate time.Time, terms PaymentTerms) time.Time {
	return invoiceDate.AddDate(0, 0, TermDays(terms))
}

// LineAmount computes round(quantity * rate, 2).
func LineAmount(quantity, rate decimal.Decimal) decimal.Decimal {
	return RoundMoney(quantity.Mul(rate))
}

// Recalculate refreshes the line amount from quantity and rate.
func (li *LineItem) Recalculate() {
	li.Amount = LineAmount(li.Quantity, li.Rate)
}

// CalculateDueDate sets DueDate from InvoiceDate and PaymentTerms.
func (i *Invoice) CalculateDueDate() {
	i.DueDate = CalculateDueDate(i.InvoiceDate, i.PaymentTerms)
}

// CalculateTotals recomputes subtotal, tax and total from the line items.
// It only mutates the receiver; persisting is up to the caller.
func (i *Invoice) CalculateTotals() {
	subtotal := decimal.Zero
	for idx := range i.LineItems {
		i.LineItems[idx].Recalculate()
		subtotal = subtotal.Add(i.LineItems[idx].Amount)
	}
	i.Subtotal = subtotal
	i.TaxAmount = PercentOf(subtotal, i.TaxRate)
	base := i.baseTotal()
	if i.HasLateFee() {
		i.OriginalTotal = &base
	}
	i.Total = base.Add(i.LateFeeApplied)
}

func (i *Invoice) baseTotal() decimal.Decimal {
	return i.Subtotal.Add(i.TaxAmount).Sub(i.DiscountAmount)
}

// HasLateFee reports whether a late fee is currently applied.
func (i *Invoice) HasLateFee() bool {
	return i.LateFeeApplied.GreaterThan(decimal.Zero)
}

// ApplyLateFee adds a one-time fee to the total. It returns false when a fee
// is already applied or the amount is not positive.
func (i *Invoice) ApplyLateFee(amount decimal.Decimal, at time.Time) bool {
	if i.HasLateFee() || !amount.GreaterThan(decimal.Zero) {
		return false
	}
	original := i.Total
	i.OriginalTotal = &original
	i.LateFeeApplied = RoundMoney(amount)
	i.Total = original.Add(i.LateFeeApplied)
	applied := at
	i.LateFeeAppliedAt = &applied
	return true
}

// RemoveLateFee drops the fee and recomputes the total from subtotal, tax
// and discount. It returns false when no fee is applied.
func (i *Invoice) RemoveLateFee() bool {
	if !i.HasLateFee() {
		return false
	}
	i.Total = i.baseTotal()
	i.LateFeeApplied = decimal.Zero
	i.OriginalTotal = nil
	i.LateFeeAppliedAt = nil
	return true
}

// IsOverdue reports whether an unpaid invoice is past its due date on day.
func (i *Invoice) IsOverdue(day time.Time) bool {
	if i.Status == InvoiceStatusPaid || i.Status == InvoiceStatusCancelled {
		return false
	}
	return truncateDay(day).After(truncateDay(i.DueDate))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysOverdue returns whole days between the due date and day.
func (i *Invoice) DaysOverdue(day time.Time) int {
	return int(truncateDay(day).Sub(truncateDay(i.DueDate)).Hours() / 24)
}

// maxStoredAmount is the largest value numeric(12,2) can hold.
var maxStoredAmount = decimal.RequireFromString("9999999999.99")

// ExceedsStorage reports whether any money field would overflow its column.
func (i *Invoice) ExceedsStorage() bool {
	for _, v := range []decimal.Decimal{i.Subtotal, i.TaxAmount, i.DiscountAmount, i.Total, i.LateFeeApplied} {
		if v.Abs().GreaterThan(maxStoredAmount) {
			return true
		}
	}
	for _, item := range i.LineItems {
		if item.Amount.Abs().GreaterThan(maxStoredAmount) {
			return true
		}
	}
	return false
}
