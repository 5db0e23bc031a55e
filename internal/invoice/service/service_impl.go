package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	obscontext "github.com/invoicekits/invoicekits/internal/observability/context"
	"github.com/invoicekits/invoicekits/internal/observability/metrics"
	pkgdb "github.com/invoicekits/invoicekits/pkg/db"
	"github.com/invoicekits/invoicekits/pkg/db/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       invoicedomain.Repository
	CompanySvc companydomain.Service
	AccountSvc accountdomain.Service
	Clock      clock.Clock
	Renderer   invoicedomain.Renderer `optional:"true"`
	Metrics    *metrics.Metrics       `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       invoicedomain.Repository
	companySvc companydomain.Service
	accountSvc accountdomain.Service
	clock      clock.Clock
	renderer   invoicedomain.Renderer
	metrics    *metrics.Metrics
}

func New(p Params) invoicedomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("invoice.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		companySvc: p.CompanySvc,
		accountSvc: p.AccountSvc,
		clock:      p.Clock,
		renderer:   p.Renderer,
		metrics:    p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	company, err := s.companySvc.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	invoice, err := s.buildInvoice(companyID, company.Defaults(), req)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.companySvc.NextInvoiceNumber(ctx, tx, companyID)
		if err != nil {
			return err
		}
		invoice.InvoiceNumber = number

		if err := s.accountSvc.IncrementInvoiceCount(ctx, tx, companyID, 1); err != nil {
			if errors.Is(err, accountdomain.ErrQuotaExceeded) {
				return invoicedomain.ErrQuotaExceeded
			}
			return err
		}
		return s.repo.Insert(ctx, tx, invoice)
	})
	if err != nil {
		return nil, mapPersistErr(err)
	}

	source := req.Source
	if source == "" {
		source = invoicedomain.SourceAPI
	}
	if s.metrics != nil {
		s.metrics.RecordInvoiceCreated(ctx, source)
	}
	s.log.Info("invoice created",
		zap.String("company_id", companyID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("source", source),
	)
	return invoice, nil
}

func (s *Service) buildInvoice(companyID snowflake.ID, defaults companydomain.Defaults, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	now := s.clock.Now()
	invoiceDate := now
	if req.InvoiceDate != nil {
		invoiceDate = req.InvoiceDate.UTC()
	}

	invoice := &invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		CompanyID:      companyID,
		Status:         invoicedomain.InvoiceStatusDraft,
		ClientName:     strings.TrimSpace(req.ClientName),
		ClientEmail:    strings.TrimSpace(req.ClientEmail),
		ClientPhone:    strings.TrimSpace(req.ClientPhone),
		ClientAddress:  strings.TrimSpace(req.ClientAddress),
		InvoiceDate:    invoiceDate,
		PaymentTerms:   req.PaymentTerms,
		Currency:       strings.ToUpper(strings.TrimSpace(req.Currency)),
		TaxRate:        defaults.TaxRate,
		DiscountAmount: req.DiscountAmount,
		Notes:          req.Notes,
		TemplateStyle:  strings.TrimSpace(req.TemplateStyle),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.TaxRate != nil {
		invoice.TaxRate = *req.TaxRate
	}
	if invoice.PaymentTerms == "" {
		invoice.PaymentTerms = defaults.PaymentTerms
	}
	if invoice.Currency == "" {
		invoice.Currency = defaults.Currency
	}
	if invoice.TemplateStyle == "" {
		invoice.TemplateStyle = defaults.TemplateStyle
	}
	if strings.TrimSpace(invoice.Notes) == "" {
		invoice.Notes = defaults.Notes
	}

	for idx, item := range req.Items {
		if err := validateLineItem(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", idx+1, err)
		}
		invoice.LineItems = append(invoice.LineItems, invoicedomain.LineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Order:       idx,
			CreatedAt:   now,
		})
	}

	if err := validateInvoice(invoice); err != nil {
		return nil, err
	}

	invoice.CalculateDueDate()
	invoice.CalculateTotals()
	if invoice.ExceedsStorage() {
		return nil, invoicedomain.ErrAmountOverflow
	}
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	companyID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}
	invoice, err := s.repo.FindByID(ctx, s.db, companyID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		CompanyID: companyID,
		Status:    req.Status,
	}, page)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, page.Limit(), func(inv *invoicedomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > page.Limit() {
		items = items[:page.Limit()]
	}

	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	return invoicedomain.ListInvoiceResponse{PageInfo: *pageInfo, Invoices: invoices}, nil
}

// mutate loads the invoice under a row lock, applies fn and persists the
// invoice row in one transaction.
func (s *Service) mutate(ctx context.Context, id string, fn func(tx *gorm.DB, invoice *invoicedomain.Invoice) error) (*invoicedomain.Invoice, error) {
	companyID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return nil, err
	}

	var out *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}
		if err := fn(tx, invoice); err != nil {
			return err
		}
		if invoice.ExceedsStorage() {
			return invoicedomain.ErrAmountOverflow
		}
		invoice.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateTotals(ctx, tx, invoice); err != nil {
			return err
		}
		out = invoice
		return nil
	})
	if err != nil {
		return nil, mapPersistErr(err)
	}
	return out, nil
}

func (s *Service) AddLineItem(ctx context.Context, invoiceID string, item invoicedomain.LineItemInput) (*invoicedomain.Invoice, error) {
	if err := validateLineItem(item); err != nil {
		return nil, err
	}
	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoice.IsEditable() {
			return invoicedomain.ErrNotEditable
		}
		order := 0
		for _, existing := range invoice.LineItems {
			if existing.Order >= order {
				order = existing.Order + 1
			}
		}
		lineItem := invoicedomain.LineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			Rate:        item.Rate,
			Order:       order,
			CreatedAt:   s.clock.Now(),
		}
		lineItem.Recalculate()
		if err := s.repo.InsertLineItem(ctx, tx, &lineItem); err != nil {
			return err
		}
		invoice.LineItems = append(invoice.LineItems, lineItem)
		invoice.CalculateTotals()
		return nil
	})
}

func (s *Service) UpdateLineItem(ctx context.Context, invoiceID, itemID string, item invoicedomain.LineItemInput) (*invoicedomain.Invoice, error) {
	lineItemID, err := snowflake.ParseString(itemID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	if err := validateLineItem(item); err != nil {
		return nil, err
	}
	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoice.IsEditable() {
			return invoicedomain.ErrNotEditable
		}
		idx := indexOfLineItem(invoice.LineItems, lineItemID)
		if idx < 0 {
			return invoicedomain.ErrNotFound
		}
		lineItem := &invoice.LineItems[idx]
		lineItem.Description = strings.TrimSpace(item.Description)
		lineItem.Quantity = item.Quantity
		lineItem.Rate = item.Rate
		invoice.CalculateTotals()
		return s.repo.UpdateLineItem(ctx, tx, lineItem)
	})
}

func (s *Service) RemoveLineItem(ctx context.Context, invoiceID, itemID string) (*invoicedomain.Invoice, error) {
	lineItemID, err := snowflake.ParseString(itemID)
	if err != nil {
		return nil, invoicedomain.ErrInvalidID
	}
	return s.mutate(ctx, invoiceID, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoice.IsEditable() {
			return invoicedomain.ErrNotEditable
		}
		idx := indexOfLineItem(invoice.LineItems, lineItemID)
		if idx < 0 {
			return invoicedomain.ErrNotFound
		}
		if err := s.repo.DeleteLineItem(ctx, tx, invoice.ID, lineItemID); err != nil {
			return err
		}
		invoice.LineItems = append(invoice.LineItems[:idx], invoice.LineItems[idx+1:]...)
		invoice.CalculateTotals()
		return nil
	})
}

func (s *Service) UpdateDiscount(ctx context.Context, invoiceID string, discount decimal.Decimal) (*invoicedomain.Invoice, error) {
	if discount.IsNegative() {
		return nil, invoicedomain.ErrInvalidDiscount
	}
	return s.mutate(ctx, invoiceID, func(_ *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoice.IsEditable() {
			return invoicedomain.ErrNotEditable
		}
		invoice.DiscountAmount = discount
		invoice.CalculateTotals()
		return nil
	})
}

func (s *Service) transition(ctx context.Context, id string, to invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	invoice, err := s.mutate(ctx, id, func(_ *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoicedomain.CanTransition(invoice.Status, to) {
			return invoicedomain.ErrInvalidTransition
		}
		now := s.clock.Now()
		switch to {
		case invoicedomain.InvoiceStatusSent:
			if invoice.SentAt == nil {
				invoice.SentAt = &now
			}
		case invoicedomain.InvoiceStatusPaid:
			invoice.PaidAt = &now
		}
		invoice.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("invoice status changed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("status", string(to)),
	)
	return invoice, nil
}

func (s *Service) Send(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusSent)
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusPaid)
}

func (s *Service) Cancel(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusCancelled)
}

func (s *Service) MarkOverdue(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusOverdue)
}

// ApplyLateFee adds a manual late fee. A zero amount uses the company's
// configured policy.
func (s *Service) ApplyLateFee(ctx context.Context, id string, amount decimal.Decimal) (*invoicedomain.Invoice, error) {
	if amount.IsNegative() {
		return nil, invoicedomain.ErrInvalidAmount
	}
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	company, err := s.companySvc.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	policy := company.LateFeePolicy()

	feeType := invoicedomain.LateFeeTypeFlat
	invoice, err := s.mutate(ctx, id, func(tx *gorm.DB, invoice *invoicedomain.Invoice) error {
		if invoice.Status != invoicedomain.InvoiceStatusSent && invoice.Status != invoicedomain.InvoiceStatusOverdue {
			return invoicedomain.ErrInvalidTransition
		}
		if invoice.HasLateFee() {
			return invoicedomain.ErrLateFeeAlreadyApplied
		}
		fee := amount
		if fee.IsZero() {
			fee = invoicedomain.CalculateLateFee(invoice.Total, policy)
			feeType = policy.Type
		}
		now := s.clock.Now()
		before := invoice.Total
		if !invoice.ApplyLateFee(fee, now) {
			return invoicedomain.ErrInvalidAmount
		}
		return s.repo.InsertLateFeeLog(ctx, tx, &invoicedomain.LateFeeLog{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			FeeType:     feeType,
			FeeAmount:   invoice.LateFeeApplied,
			DaysOverdue: max(invoice.DaysOverdue(now), 0),
			TotalBefore: before,
			TotalAfter:  invoice.Total,
			AppliedBy:   appliedBy(ctx),
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLateFeeApplied(ctx, string(feeType))
	}
	return invoice, nil
}

func (s *Service) RemoveLateFee(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, id, func(_ *gorm.DB, invoice *invoicedomain.Invoice) error {
		if !invoice.RemoveLateFee() {
			return invoicedomain.ErrNoLateFee
		}
		return nil
	})
}

func (s *Service) SetLateFeesPaused(ctx context.Context, id string, paused bool) (*invoicedomain.Invoice, error) {
	return s.mutate(ctx, id, func(_ *gorm.DB, invoice *invoicedomain.Invoice) error {
		invoice.LateFeesPaused = paused
		return nil
	})
}

func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	if s.renderer == nil {
		return nil, invoicedomain.ErrRendererUnavailable
	}
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var doc invoicedomain.Document = invoice
	usage, err := s.accountSvc.Usage(ctx, invoice.CompanyID)
	if err != nil {
		return nil, err
	}
	if usage.Watermark {
		doc = invoicedomain.WithWatermark(doc, invoicedomain.FreePlanWatermark)
	}

	out, err := s.renderer.Render(ctx, doc)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRenderFailure(ctx, invoicedomain.SourceAPI)
		}
		return nil, err
	}
	return out, nil
}

// Preview renders an unsaved invoice. Nothing is persisted and the counter
// is not consumed.
func (s *Service) Preview(ctx context.Context, req invoicedomain.CreateInvoiceRequest) ([]byte, error) {
	if s.renderer == nil {
		return nil, invoicedomain.ErrRendererUnavailable
	}
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	company, err := s.companySvc.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	draft, err := s.buildInvoice(companyID, company.Defaults(), req)
	if err != nil {
		return nil, err
	}

	items := make([]invoicedomain.LineItemInput, 0, len(draft.LineItems))
	for _, item := range draft.LineItems {
		items = append(items, invoicedomain.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			Rate:        item.Rate,
		})
	}
	doc := invoicedomain.NewPreviewInvoice(invoicedomain.PreviewInput{
		Client:         draft.BillTo(),
		InvoiceDate:    draft.InvoiceDate,
		PaymentTerms:   draft.PaymentTerms,
		Currency:       draft.Currency,
		TaxRate:        draft.TaxRate,
		DiscountAmount: draft.DiscountAmount,
		TemplateStyle:  draft.TemplateStyle,
		Notes:          draft.Notes,
		Items:          items,
	})
	return s.renderer.Render(ctx, doc)
}

func (s *Service) companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return 0, invoicedomain.ErrInvalidCompany
	}
	return companyID, nil
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return 0, 0, invoicedomain.ErrInvalidID
	}
	return companyID, invoiceID, nil
}

func indexOfLineItem(items []invoicedomain.LineItem, id snowflake.ID) int {
	for idx := range items {
		if items[idx].ID == id {
			return idx
		}
	}
	return -1
}

func appliedBy(ctx context.Context) string {
	kind, _ := obscontext.ActorFromContext(ctx)
	if kind == "" {
		return "user"
	}
	return kind
}

func mapPersistErr(err error) error {
	if pkgdb.IsNumericOverflow(err) {
		return invoicedomain.ErrAmountOverflow
	}
	return err
}

func validateLineItem(item invoicedomain.LineItemInput) error {
	if strings.TrimSpace(item.Description) == "" {
		return invoicedomain.ErrInvalidDescription
	}
	if !item.Quantity.IsPositive() {
		return invoicedomain.ErrInvalidQuantity
	}
	if item.Rate.IsNegative() {
		return invoicedomain.ErrInvalidRate
	}
	return nil
}

func validateInvoice(invoice *invoicedomain.Invoice) error {
	var errs []error
	if invoice.ClientName == "" {
		errs = append(errs, invoicedomain.ErrInvalidClientName)
	}
	if invoice.TaxRate.IsNegative() || invoice.TaxRate.GreaterThan(hundred) {
		errs = append(errs, invoicedomain.ErrInvalidTaxRate)
	}
	if invoice.DiscountAmount.IsNegative() {
		errs = append(errs, invoicedomain.ErrInvalidDiscount)
	}
	if !invoicedomain.IsSupportedCurrency(invoice.Currency) {
		errs = append(errs, invoicedomain.ErrInvalidCurrency)
	}
	if !invoicedomain.IsKnownPaymentTerms(invoice.PaymentTerms) {
		errs = append(errs, invoicedomain.ErrInvalidPaymentTerms)
	}
	if !invoicedomain.IsSupportedTemplateStyle(invoice.TemplateStyle) {
		errs = append(errs, invoicedomain.ErrInvalidTemplateStyle)
	}
	return errors.Join(errs...)
}
