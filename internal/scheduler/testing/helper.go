// Package testing moves scheduler-relevant timestamps so jobs can be
// exercised without waiting for real due dates.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites due dates and batch start times in place.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// SetDueDate moves an invoice's due date.
func (ta *TimeAccelerator) SetDueDate(ctx context.Context, invoiceID snowflake.ID, due time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE invoices SET due_date = ? WHERE id = ?`,
		due.UTC(),
		invoiceID,
	).Error
}

// ExpireDueDates makes every sent invoice due days ago relative to now.
func (ta *TimeAccelerator) ExpireDueDates(ctx context.Context, now time.Time, days int) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE invoices SET due_date = ? WHERE status IN ('sent', 'overdue')`,
		now.UTC().AddDate(0, 0, -days),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartBatch puts a batch into processing as if a worker claimed it at
// startedAt.
func (ta *TimeAccelerator) StartBatch(ctx context.Context, batchID snowflake.ID, startedAt time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE invoice_batches SET status = ?, started_at = ? WHERE id = ?`,
		batchdomain.StatusProcessing,
		startedAt.UTC(),
		batchID,
	).Error
}
