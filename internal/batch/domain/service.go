package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, batch *Batch) error
	// UpdateProcessing writes batch only while the stored row is still
	// processing and reports whether it did.
	UpdateProcessing(ctx context.Context, db *gorm.DB, batch *Batch) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Batch, error)
	FindByCompany(ctx context.Context, db *gorm.DB, companyID, id snowflake.ID) (*Batch, error)
	List(ctx context.Context, db *gorm.DB, companyID snowflake.ID, page pagination.Pagination) ([]*Batch, error)
	// Claim moves a pending batch to processing and reports whether this
	// caller won the transition.
	Claim(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	ListPendingIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error)
	// FailStale fails processing batches started before cutoff.
	FailStale(ctx context.Context, db *gorm.DB, cutoff, at time.Time, message string) (int64, error)
}

// QuotaChecker is the account view the orchestrator needs before creating
// invoices.
type QuotaChecker interface {
	CanCreateInvoices(ctx context.Context, companyID snowflake.ID, n int) (bool, error)
	CanBatchUpload(ctx context.Context, companyID snowflake.ID) (bool, error)
	Usage(ctx context.Context, companyID snowflake.ID) (accountdomain.Usage, error)
}

type UploadRequest struct {
	Filename string
	Data     []byte
	// Policy overrides the configured validation policy when set.
	Policy string
}

type ListRequest struct {
	PageToken string
	PageSize  int
}

type ListResponse struct {
	pagination.PageInfo
	Batches []Batch `json:"batches"`
}

// InvoiceRef identifies an invoice created by a batch.
type InvoiceRef struct {
	ID            string `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	ClientName    string `json:"client_name"`
	Total         string `json:"total"`
	HasPDF        bool   `json:"has_pdf"`
}

// Result is the processing outcome reported to callers. Error is set only
// when the batch failed before or outside the per-client loop.
type Result struct {
	BatchID   string       `json:"batch_id"`
	Success   bool         `json:"success"`
	Total     int          `json:"total"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Errors    []string     `json:"errors"`
	Invoices  []InvoiceRef `json:"invoices,omitempty"`
	Error     string       `json:"error,omitempty"`
}

type Service interface {
	Upload(ctx context.Context, req UploadRequest) (*Batch, error)
	Get(ctx context.Context, id string) (*Batch, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// Archive returns the download name and bytes of the batch's PDF zip.
	Archive(ctx context.Context, id string) (string, []byte, error)

	Process(ctx context.Context, id snowflake.ID) (*Result, error)
	ProcessPending(ctx context.Context, limit int) (int, error)
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

const (
	MsgQuotaExceeded = "Invoice limit reached for your plan. Please upgrade to create more invoices."
	MsgStale         = "Batch processing timed out"
	MsgCancelled     = "Batch processing was cancelled"
)

var (
	ErrNotFound           = errors.New("batch_not_found")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidCompany     = errors.New("invalid_company")
	ErrInvalidFile        = errors.New("invalid_batch_file")
	ErrFileTooLarge       = errors.New("batch_file_too_large")
	ErrInvalidPolicy      = errors.New("invalid_validation_policy")
	ErrUploadNotAllowed   = errors.New("batch_upload_not_allowed")
	ErrNotPending         = errors.New("batch_not_pending")
	ErrBusy               = errors.New("batch_busy")
	ErrNoLongerProcessing = errors.New("batch_no_longer_processing")
	ErrArchiveUnavailable = errors.New("batch_archive_unavailable")
	ErrRateLimited        = errors.New("batch_upload_rate_limited")
)

// RateLimitError reports a throttled upload and when to retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}
