package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListFilter struct {
	CompanyID snowflake.ID
	Status    InvoiceStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// UpdateTotals persists the invoice row without touching line items.
	UpdateTotals(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Invoice, error)
	// FindByIDForUpdate locks the invoice row where the database supports it.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Invoice, error)
	FindByIDs(ctx context.Context, db *gorm.DB, companyID snowflake.ID, ids []snowflake.ID) ([]Invoice, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, page pagination.Pagination) ([]*Invoice, error)

	InsertLineItem(ctx context.Context, db *gorm.DB, item *LineItem) error
	UpdateLineItem(ctx context.Context, db *gorm.DB, item *LineItem) error
	DeleteLineItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) error

	MarkOverdue(ctx context.Context, db *gorm.DB, before time.Time) (int64, error)
	ListLateFeeCandidates(ctx context.Context, db *gorm.DB, companyID snowflake.ID, dueBefore time.Time, limit int) ([]Invoice, error)
	ListReminderCandidates(ctx context.Context, db *gorm.DB, companyID snowflake.ID, dueFrom, dueTo time.Time) ([]Invoice, error)

	InsertLateFeeLog(ctx context.Context, db *gorm.DB, entry *LateFeeLog) error
	InsertReminderLog(ctx context.Context, db *gorm.DB, entry *ReminderLog) error
	ReminderSent(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, daysOffset int) (bool, error)
}
