// Package guard holds the eligibility rules scheduler jobs check before
// touching an invoice.
package guard

import (
	"errors"
	"time"

	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
)

const (
	ReminderBefore  = "before"
	ReminderDue     = "due"
	ReminderOverdue = "overdue"
)

var (
	ErrInvoiceNotOpen    = errors.New("invoice_not_open")
	ErrLateFeeApplied    = errors.New("late_fee_already_applied")
	ErrLateFeesPaused    = errors.New("late_fees_paused")
	ErrWithinGracePeriod = errors.New("within_grace_period")
	ErrNoRecipient       = errors.New("reminder_no_recipient")
)

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isOpen(status invoicedomain.InvoiceStatus) bool {
	return status == invoicedomain.InvoiceStatusSent || status == invoicedomain.InvoiceStatusOverdue
}

// EnsureLateFeeEligible reports why an invoice may not take an automatic
// late fee at now.
func EnsureLateFeeEligible(inv *invoicedomain.Invoice, graceDays int, now time.Time) error {
	if !isOpen(inv.Status) {
		return ErrInvoiceNotOpen
	}
	if inv.HasLateFee() {
		return ErrLateFeeApplied
	}
	if inv.LateFeesPaused {
		return ErrLateFeesPaused
	}
	if !StartOfDay(inv.DueDate).AddDate(0, 0, graceDays).Before(StartOfDay(now)) {
		return ErrWithinGracePeriod
	}
	return nil
}

// EnsureReminderEligible checks an invoice can receive a reminder.
func EnsureReminderEligible(inv *invoicedomain.Invoice) error {
	if !isOpen(inv.Status) {
		return ErrInvoiceNotOpen
	}
	if inv.ClientEmail == "" {
		return ErrNoRecipient
	}
	return nil
}

// ReminderType names a reminder by its offset from the due date.
func ReminderType(daysOffset int) string {
	switch {
	case daysOffset < 0:
		return ReminderBefore
	case daysOffset == 0:
		return ReminderDue
	default:
		return ReminderOverdue
	}
}
