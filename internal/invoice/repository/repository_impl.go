package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/invoicekits/invoicekits/pkg/db"
	"github.com/invoicekits/invoicekits/pkg/db/option"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func preloadLineItems(db *gorm.DB) *gorm.DB {
	return db.Preload("LineItems", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("sort_order asc, id asc")
	})
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) UpdateTotals(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Omit(clause.Associations).Save(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := preloadLineItems(db.WithContext(ctx)).
		Where("company_id = ? AND id = ?", companyID, id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, companyID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("company_id = ? AND id = ?", companyID, id).
		Limit(1).
		Find(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}

	if err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoice.ID).
		Order("sort_order asc, id asc").
		Find(&invoice.LineItems).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, companyID snowflake.ID, ids []snowflake.ID) ([]invoicedomain.Invoice, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var invoices []invoicedomain.Invoice
	err := preloadLineItems(db.WithContext(ctx)).
		Where("company_id = ? AND id IN ?", companyID, ids).
		Order("id asc").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter, page pagination.Pagination) ([]*invoicedomain.Invoice, error) {
	var invoices []*invoicedomain.Invoice
	stmt := db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("company_id = ?", filter.CompanyID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	stmt = option.ApplyPagination(page).Apply(stmt)
	if err := stmt.Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) InsertLineItem(ctx context.Context, db *gorm.DB, item *invoicedomain.LineItem) error {
	return db.WithContext(ctx).Create(item).Error
}

func (r *repo) UpdateLineItem(ctx context.Context, db *gorm.DB, item *invoicedomain.LineItem) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_line_items SET description = ?, quantity = ?, rate = ?, amount = ?, sort_order = ?
		 WHERE id = ? AND invoice_id = ?`,
		item.Description, item.Quantity, item.Rate, item.Amount, item.Order,
		item.ID, item.InvoiceID,
	).Error
}

func (r *repo) DeleteLineItem(ctx context.Context, db *gorm.DB, invoiceID, itemID snowflake.ID) error {
	return db.WithContext(ctx).
		Where("id = ? AND invoice_id = ?", itemID, invoiceID).
		Delete(&invoicedomain.LineItem{}).Error
}

func (r *repo) MarkOverdue(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE status = ? AND due_date < ?`,
		invoicedomain.InvoiceStatusOverdue, time.Now().UTC(), invoicedomain.InvoiceStatusSent, before,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) ListLateFeeCandidates(ctx context.Context, db *gorm.DB, companyID snowflake.ID, dueBefore time.Time, limit int) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where("status IN ?", []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusOverdue}).
		Where("due_date < ?", dueBefore).
		Where("late_fee_applied_at IS NULL").
		Where("late_fees_paused = ?", false).
		Order("due_date asc, id asc").
		Limit(limit).
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) ListReminderCandidates(ctx context.Context, db *gorm.DB, companyID snowflake.ID, dueFrom, dueTo time.Time) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Where("status IN ?", []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusSent, invoicedomain.InvoiceStatusOverdue}).
		Where("client_email <> ''").
		Where("due_date >= ? AND due_date < ?", dueFrom, dueTo).
		Order("due_date asc, id asc").
		Find(&invoices).Error
	return invoices, err
}

func (r *repo) InsertLateFeeLog(ctx context.Context, db *gorm.DB, entry *invoicedomain.LateFeeLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) InsertReminderLog(ctx context.Context, db *gorm.DB, entry *invoicedomain.ReminderLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ReminderSent(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, daysOffset int) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&invoicedomain.ReminderLog{}).
		Where("invoice_id = ? AND days_offset = ?", invoiceID, daysOffset).
		Count(&count).Error
	return count > 0, err
}
