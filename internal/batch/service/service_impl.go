package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/invoicekits/invoicekits/internal/batch/archive"
	"github.com/invoicekits/invoicekits/internal/batch/csvimport"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/batch/grouping"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/config"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	obscontext "github.com/invoicekits/invoicekits/internal/observability/context"
	"github.com/invoicekits/invoicekits/internal/observability/metrics"
	"github.com/invoicekits/invoicekits/internal/ratelimit"
	"github.com/invoicekits/invoicekits/internal/storage"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	lockKeyClaim = "batch:claim:%s"
	actorBatch   = "batch"

	contentTypeZip  = "application/zip"
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Config     config.Config
	Repo       batchdomain.Repository
	InvoiceSvc invoicedomain.Service
	CompanySvc companydomain.Service
	Quota      batchdomain.QuotaChecker
	Storage    storage.ObjectStorage
	Clock      clock.Clock
	Locker     *ratelimit.Locker        `optional:"true"`
	Limiter    *ratelimit.UploadLimiter `optional:"true"`
	Renderer   invoicedomain.Renderer   `optional:"true"`
	Archiver   archive.Writer           `optional:"true"`
	Metrics    *metrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	cfg        config.BatchConfig
	repo       batchdomain.Repository
	invoiceSvc invoicedomain.Service
	companySvc companydomain.Service
	quota      batchdomain.QuotaChecker
	storage    storage.ObjectStorage
	clock      clock.Clock
	locker     *ratelimit.Locker
	limiter    *ratelimit.UploadLimiter
	renderer   invoicedomain.Renderer
	archiver   archive.Writer
	metrics    *metrics.Metrics
}

func New(p Params) batchdomain.Service {
	archiver := p.Archiver
	if archiver == nil {
		archiver = archive.NewZipWriter()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("batch.service"),
		genID:      p.GenID,
		cfg:        p.Config.Batch,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		companySvc: p.CompanySvc,
		quota:      p.Quota,
		storage:    p.Storage,
		clock:      p.Clock,
		locker:     p.Locker,
		limiter:    p.Limiter,
		renderer:   p.Renderer,
		archiver:   archiver,
		metrics:    p.Metrics,
	}
}

// Upload stores the file and records a pending batch. Rows are validated
// when the batch is processed.
func (s *Service) Upload(ctx context.Context, req batchdomain.UploadRequest) (*batchdomain.Batch, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	filename := path.Base(strings.TrimSpace(req.Filename))
	format, ok := csvimport.FormatFromFilename(filename)
	if !ok || len(req.Data) == 0 {
		return nil, batchdomain.ErrInvalidFile
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(req.Data)) > s.cfg.MaxUploadBytes {
		return nil, batchdomain.ErrFileTooLarge
	}

	policyName := req.Policy
	if strings.TrimSpace(policyName) == "" {
		policyName = s.cfg.ValidationPolicy
	}
	policy, err := csvimport.ParsePolicy(policyName)
	if err != nil {
		return nil, batchdomain.ErrInvalidPolicy
	}

	allowed, err := s.quota.CanBatchUpload(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, batchdomain.ErrUploadNotAllowed
	}

	if err := s.allowUpload(ctx, companyID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	key := storage.NewKey(path.Join("uploads", companyID.String()), filename, now)
	if err := s.storage.Put(ctx, key, req.Data, uploadContentType(format)); err != nil {
		return nil, fmt.Errorf("store batch upload: %w", err)
	}

	batch := &batchdomain.Batch{
		ID:               s.genID.Generate(),
		CompanyID:        companyID,
		SourceKey:        key,
		SourceName:       filename,
		ValidationPolicy: string(policy),
		Status:           batchdomain.StatusPending,
		Errors:           datatypes.JSONSlice[string]{},
		InvoiceIDs:       datatypes.JSONSlice[string]{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, batch); err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.log.Warn("failed to remove orphaned upload", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}

	s.log.Info("batch uploaded",
		zap.String("company_id", companyID.String()),
		zap.String("batch_id", batch.ID.String()),
		zap.String("source_name", filename),
		zap.Int("size_bytes", len(req.Data)),
		zap.String("policy", batch.ValidationPolicy),
	)
	return batch, nil
}

func (s *Service) allowUpload(ctx context.Context, companyID snowflake.ID) error {
	if !s.limiter.Enabled() {
		return nil
	}
	res, err := s.limiter.Allow(ctx, companyID)
	if err != nil {
		// Redis trouble must not block uploads.
		s.log.Warn("upload rate limiter unavailable", zap.Error(err))
		return nil
	}
	if res.Allowed {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordRateLimitDenied(ctx, "batch_upload", "company_bucket")
	}
	return &batchdomain.RateLimitError{RetryAfter: res.RetryAfter}
}

func (s *Service) Get(ctx context.Context, id string) (*batchdomain.Batch, error) {
	companyID, batchID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	batch, err := s.repo.FindByCompany(ctx, s.db, companyID, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, batchdomain.ErrNotFound
	}
	return batch, nil
}

func (s *Service) List(ctx context.Context, req batchdomain.ListRequest) (batchdomain.ListResponse, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return batchdomain.ListResponse{}, err
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, companyID, page)
	if err != nil {
		return batchdomain.ListResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.Limit(), func(b *batchdomain.Batch) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        b.ID.String(),
			CreatedAt: b.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.Limit() {
		items = items[:page.Limit()]
	}

	batches := make([]batchdomain.Batch, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		batches = append(batches, *item)
	}
	return batchdomain.ListResponse{PageInfo: *pageInfo, Batches: batches}, nil
}

func (s *Service) Archive(ctx context.Context, id string) (string, []byte, error) {
	batch, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !batch.HasArchive() {
		return "", nil, batchdomain.ErrArchiveUnavailable
	}
	data, err := s.storage.Get(ctx, batch.ArchiveKey)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, batchdomain.ErrArchiveUnavailable
	}
	if err != nil {
		return "", nil, err
	}
	return archive.BatchArchiveName(batch.ID.String()), data, nil
}

// Process claims a pending batch and runs it to a terminal state. Failures
// that end the batch are reported in the Result, not as an error.
func (s *Service) Process(ctx context.Context, id snowflake.ID) (*batchdomain.Result, error) {
	release, err := s.locker.Acquire(ctx, fmt.Sprintf(lockKeyClaim, id.String()), s.cfg.ClaimLockDuration)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, batchdomain.ErrBusy
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release batch lock", zap.String("batch_id", id.String()), zap.Error(err))
		}
	}()

	batch, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, batchdomain.ErrNotFound
	}

	now := s.clock.Now()
	claimed, err := s.repo.Claim(ctx, s.db, id, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, batchdomain.ErrNotPending
	}
	batch.Status = batchdomain.StatusProcessing
	batch.StartedAt = &now

	ctx = companycontext.WithCompanyID(ctx, batch.CompanyID)
	ctx = obscontext.WithCompanyID(ctx, batch.CompanyID.String())
	ctx = obscontext.WithActor(ctx, actorBatch, batch.ID.String())
	log := s.log.With(
		zap.String("batch_id", batch.ID.String()),
		zap.String("company_id", batch.CompanyID.String()),
	)
	log.Info("batch processing started", zap.String("source_name", batch.SourceName))

	result, err := s.run(ctx, log, batch)
	if errors.Is(err, batchdomain.ErrNoLongerProcessing) {
		return s.swept(ctx, log, batch)
	}
	if err != nil {
		message := err.Error()
		if ctx.Err() != nil {
			message = batchdomain.MsgCancelled
		}
		log.Error("batch processing failed", zap.Error(err))
		return s.fail(ctx, log, batch, message)
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, log *zap.Logger, batch *batchdomain.Batch) (*batchdomain.Result, error) {
	rows, err := s.loadRows(ctx, batch)
	if err != nil {
		var verr *csvimport.ValidationError
		if errors.As(err, &verr) {
			log.Info("batch rejected by validation", zap.Int("errors", len(verr.Errors)))
			batch.Errors = append(batch.Errors, verr.Errors...)
			return s.fail(ctx, log, batch, verr.Error())
		}
		return nil, err
	}
	if len(rows.Skipped) > 0 {
		batch.Errors = append(batch.Errors, rows.Skipped...)
	}

	company, err := s.companySvc.GetByID(ctx, batch.CompanyID)
	if err != nil {
		return nil, err
	}
	groups := grouping.ByClient(rows.Rows, company.Defaults())
	batch.TotalInvoices = len(groups)

	ok, err := s.quota.CanCreateInvoices(ctx, batch.CompanyID, len(groups))
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.fail(ctx, log, batch, batchdomain.MsgQuotaExceeded)
	}
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}

	created := make([]*invoicedomain.Invoice, 0, len(groups))
	for _, group := range groups {
		if ctx.Err() != nil {
			return s.fail(ctx, log, batch, batchdomain.MsgCancelled)
		}

		invoice, err := s.invoiceSvc.Create(ctx, group.Request())
		if err != nil {
			batch.FailedInvoices++
			batch.Errors = append(batch.Errors, fmt.Sprintf("Failed to create invoice for %s: %v", group.ClientName, err))
			log.Warn("batch invoice failed",
				zap.String("client_name", group.ClientName),
				zap.Int("line", group.FirstLine),
				zap.Error(err),
			)
		} else {
			batch.ProcessedInvoices++
			batch.InvoiceIDs = append(batch.InvoiceIDs, invoice.ID.String())
			created = append(created, invoice)
		}
		if err := s.save(ctx, batch); err != nil {
			return nil, err
		}
	}

	refs, files := s.attachments(ctx, log, batch, created)
	if len(files) > 0 {
		if err := s.storeArchive(ctx, batch, files); err != nil {
			log.Warn("failed to store batch archive", zap.Error(err))
		}
	}

	now := s.clock.Now()
	batch.Status = batchdomain.StatusCompleted
	batch.CompletedAt = &now
	if err := s.save(ctx, batch); err != nil {
		return nil, err
	}
	s.recordFinished(ctx, batch.Status)

	log.Info("batch processing completed",
		zap.Int("total", batch.TotalInvoices),
		zap.Int("processed", batch.ProcessedInvoices),
		zap.Int("failed", batch.FailedInvoices),
		zap.Int("pdfs", len(files)),
	)
	result := resultFrom(batch)
	result.Invoices = refs
	return result, nil
}

func (s *Service) loadRows(ctx context.Context, batch *batchdomain.Batch) (csvimport.Result, error) {
	format, ok := csvimport.FormatFromFilename(batch.SourceName)
	if !ok {
		return csvimport.Result{}, &csvimport.ValidationError{Message: "Unsupported file type: " + batch.SourceName}
	}
	policy, err := csvimport.ParsePolicy(batch.ValidationPolicy)
	if err != nil {
		return csvimport.Result{}, err
	}
	data, err := s.storage.Get(ctx, batch.SourceKey)
	if err != nil {
		return csvimport.Result{}, fmt.Errorf("load batch source: %w", err)
	}
	return csvimport.ValidateBytes(format, data, policy)
}

// attachments renders a PDF per created invoice. Render failures never undo
// the invoice; the invoice is left out of the archive instead.
func (s *Service) attachments(ctx context.Context, log *zap.Logger, batch *batchdomain.Batch, invoices []*invoicedomain.Invoice) ([]batchdomain.InvoiceRef, []archive.File) {
	refs := make([]batchdomain.InvoiceRef, 0, len(invoices))
	var files []archive.File

	watermark := false
	if s.renderer != nil && len(invoices) > 0 {
		usage, err := s.quota.Usage(ctx, batch.CompanyID)
		if err != nil {
			log.Warn("failed to read usage for watermark", zap.Error(err))
		}
		watermark = err != nil || usage.Watermark
	}

	for _, invoice := range invoices {
		ref := batchdomain.InvoiceRef{
			ID:            invoice.ID.String(),
			InvoiceNumber: invoice.InvoiceNumber,
			ClientName:    invoice.ClientName,
			Total:         invoice.Total.StringFixed(2),
		}
		if s.renderer != nil {
			var doc invoicedomain.Document = invoice
			if watermark {
				doc = invoicedomain.WithWatermark(doc, invoicedomain.FreePlanWatermark)
			}
			pdf, err := s.renderer.Render(ctx, doc)
			if err != nil {
				log.Warn("failed to render batch invoice",
					zap.String("invoice_id", invoice.ID.String()),
					zap.Error(err),
				)
				if s.metrics != nil {
					s.metrics.RecordRenderFailure(ctx, invoicedomain.SourceBatch)
				}
			} else {
				ref.HasPDF = true
				files = append(files, archive.File{Name: invoice.InvoiceNumber + ".pdf", Data: pdf})
			}
		}
		refs = append(refs, ref)
	}
	return refs, files
}

func (s *Service) storeArchive(ctx context.Context, batch *batchdomain.Batch, files []archive.File) error {
	data, err := s.archiver.Write(files)
	if err != nil {
		return err
	}
	key := path.Join("archives", batch.CompanyID.String(), archive.BatchArchiveName(batch.ID.String()))
	if err := s.storage.Put(ctx, key, data, contentTypeZip); err != nil {
		return err
	}
	batch.ArchiveKey = key
	return nil
}

// fail moves the batch to failed. It persists even when ctx is cancelled.
func (s *Service) fail(ctx context.Context, log *zap.Logger, batch *batchdomain.Batch, message string) (*batchdomain.Result, error) {
	now := s.clock.Now()
	batch.Status = batchdomain.StatusFailed
	batch.ErrorMessage = message
	batch.CompletedAt = &now
	err := s.save(context.WithoutCancel(ctx), batch)
	if errors.Is(err, batchdomain.ErrNoLongerProcessing) {
		return s.swept(ctx, log, batch)
	}
	if err != nil {
		return nil, fmt.Errorf("mark batch failed: %w", err)
	}
	s.recordFinished(ctx, batch.Status)
	log.Info("batch marked failed", zap.String("reason", message))
	return resultFrom(batch), nil
}

// save persists progress. It returns ErrNoLongerProcessing once the stored
// batch has left processing, e.g. after FailStale swept it.
func (s *Service) save(ctx context.Context, batch *batchdomain.Batch) error {
	batch.UpdatedAt = s.clock.Now()
	ok, err := s.repo.UpdateProcessing(ctx, s.db, batch)
	if err != nil {
		return err
	}
	if !ok {
		return batchdomain.ErrNoLongerProcessing
	}
	return nil
}

// swept reports the stored terminal state of a batch another writer
// finished while this run was still going.
func (s *Service) swept(ctx context.Context, log *zap.Logger, batch *batchdomain.Batch) (*batchdomain.Result, error) {
	stored, err := s.repo.FindByID(context.WithoutCancel(ctx), s.db, batch.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, batchdomain.ErrNotFound
	}
	log.Warn("batch left processing during run; keeping stored state",
		zap.String("status", string(stored.Status)),
		zap.String("reason", stored.ErrorMessage),
	)
	return resultFrom(stored), nil
}

func (s *Service) recordFinished(ctx context.Context, status batchdomain.Status) {
	if s.metrics != nil {
		s.metrics.RecordBatchFinished(ctx, string(status))
	}
}

// ProcessPending runs up to limit pending batches, oldest first, and
// returns how many reached a terminal state.
func (s *Service) ProcessPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1
	}
	ids, err := s.repo.ListPendingIDs(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	var (
		done int
		errs []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		_, err := s.Process(ctx, id)
		switch {
		case err == nil:
			done++
		case errors.Is(err, batchdomain.ErrBusy), errors.Is(err, batchdomain.ErrNotPending):
			// Another worker got there first.
		default:
			errs = append(errs, fmt.Errorf("batch %s: %w", id.String(), err))
		}
	}
	return done, errors.Join(errs...)
}

// FailStale fails batches stuck in processing longer than olderThan. A
// non-positive olderThan uses the configured threshold.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.StaleAfter
	}
	if olderThan <= 0 {
		return 0, nil
	}
	now := s.clock.Now()
	n, err := s.repo.FailStale(ctx, s.db, now.Add(-olderThan), now, batchdomain.MsgStale)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Warn("stale batches failed", zap.Int64("count", n), zap.Duration("older_than", olderThan))
		for i := int64(0); i < n; i++ {
			s.recordFinished(ctx, batchdomain.StatusFailed)
		}
	}
	return n, nil
}

func resultFrom(batch *batchdomain.Batch) *batchdomain.Result {
	errs := make([]string, len(batch.Errors))
	copy(errs, batch.Errors)
	return &batchdomain.Result{
		BatchID:   batch.ID.String(),
		Success:   batch.Status == batchdomain.StatusCompleted,
		Total:     batch.TotalInvoices,
		Processed: batch.ProcessedInvoices,
		Failed:    batch.FailedInvoices,
		Errors:    errs,
		Error:     batch.ErrorMessage,
	}
}

func uploadContentType(format csvimport.Format) string {
	if format == csvimport.FormatXLSX {
		return contentTypeXLSX
	}
	return contentTypeCSV
}

func (s *Service) companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return 0, batchdomain.ErrInvalidCompany
	}
	return companyID, nil
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	batchID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || batchID == 0 {
		return 0, 0, batchdomain.ErrInvalidID
	}
	return companyID, batchID, nil
}
