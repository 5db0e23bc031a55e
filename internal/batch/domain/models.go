// Package domain holds the batch upload record and its contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the batch lifecycle state. It only moves forward:
// pending -> processing -> completed | failed.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Batch tracks one uploaded file and the invoices created from it.
type Batch struct {
	ID                snowflake.ID                `gorm:"primaryKey" json:"id"`
	CompanyID         snowflake.ID                `gorm:"not null;index" json:"company_id"`
	SourceKey         string                      `gorm:"type:text;not null" json:"-"`
	SourceName        string                      `gorm:"type:varchar(255);not null" json:"source_name"`
	ArchiveKey        string                      `gorm:"type:text" json:"-"`
	ValidationPolicy  string                      `gorm:"type:varchar(20);not null;default:'reject_file'" json:"validation_policy"`
	Status            Status                      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalInvoices     int                         `gorm:"not null;default:0" json:"total_invoices"`
	ProcessedInvoices int                         `gorm:"not null;default:0" json:"processed_invoices"`
	FailedInvoices    int                         `gorm:"not null;default:0" json:"failed_invoices"`
	ErrorMessage      string                      `gorm:"type:text" json:"error_message,omitempty"`
	Errors            datatypes.JSONSlice[string] `json:"errors"`
	InvoiceIDs        datatypes.JSONSlice[string] `gorm:"column:invoice_ids" json:"invoice_ids"`
	CreatedAt         time.Time                   `gorm:"not null" json:"created_at"`
	StartedAt         *time.Time                  `json:"started_at,omitempty"`
	CompletedAt       *time.Time                  `json:"completed_at,omitempty"`
	UpdatedAt         time.Time                   `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "invoice_batches" }

// HasArchive reports whether a PDF archive was stored.
func (b *Batch) HasArchive() bool {
	return b.ArchiveKey != ""
}
