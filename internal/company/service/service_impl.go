package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/invoicekits/invoicekits/internal/invoice/format"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxSlugAttempts = 20

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       companydomain.Repository
	AccountSvc accountdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       companydomain.Repository
	accountSvc accountdomain.Service
}

func New(p Params) companydomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("company.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		accountSvc: p.AccountSvc,
	}
}

func (s *Service) Create(ctx context.Context, req companydomain.CreateRequest) (*companydomain.Company, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, companydomain.ErrInvalidName
	}

	now := time.Now().UTC()
	company := &companydomain.Company{
		ID:                   s.genID.Generate(),
		Name:                 name,
		Email:                strings.TrimSpace(req.Email),
		Phone:                strings.TrimSpace(req.Phone),
		Address:              strings.TrimSpace(req.Address),
		InvoicePrefix:        strings.TrimSpace(req.InvoicePrefix),
		NextInvoiceNumber:    companydomain.DefaultNextInvoiceNum,
		DefaultCurrency:      strings.ToUpper(strings.TrimSpace(req.DefaultCurrency)),
		DefaultTaxRate:       req.DefaultTaxRate,
		DefaultPaymentTerms:  req.DefaultPaymentTerms,
		DefaultTemplateStyle: strings.TrimSpace(req.DefaultTemplateStyle),
		LateFeeType:          companydomain.DefaultLateFeeType,
		LateFeeGraceDays:     companydomain.DefaultLateFeeGrace,
		RemindersEnabled:     true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if company.InvoicePrefix == "" {
		company.InvoicePrefix = companydomain.DefaultInvoicePrefix
	}
	if company.DefaultCurrency == "" {
		company.DefaultCurrency = invoicedomain.DefaultCurrency
	}
	if company.DefaultPaymentTerms == "" {
		company.DefaultPaymentTerms = invoicedomain.DefaultPaymentTerms
	}
	if company.DefaultTemplateStyle == "" {
		company.DefaultTemplateStyle = invoicedomain.DefaultTemplateStyle
	}
	if err := validate(company); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		companySlug, err := s.uniqueSlug(ctx, tx, name)
		if err != nil {
			return err
		}
		company.Slug = companySlug

		if err := s.repo.Insert(ctx, tx, company); err != nil {
			return err
		}
		_, err = s.accountSvc.EnsureAccount(ctx, tx, company.ID, req.Tier)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("company created",
		zap.String("company_id", company.ID.String()),
		zap.String("slug", company.Slug),
	)
	return company, nil
}

func (s *Service) uniqueSlug(ctx context.Context, tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "company"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.repo.SlugExists(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return fmt.Sprintf("%s-%s", base, strings.ToLower(s.genID.Generate().Base36())), nil
}

func (s *Service) Get(ctx context.Context) (*companydomain.Company, error) {
	companyID, ok := companycontext.CompanyIDFromContext(ctx)
	if !ok {
		return nil, companydomain.ErrInvalidCompany
	}
	return s.GetByID(ctx, companyID)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*companydomain.Company, error) {
	company, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	return company, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req companydomain.UpdateSettingsRequest) (*companydomain.Company, error) {
	company, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		company.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		company.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		company.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		company.Address = strings.TrimSpace(*req.Address)
	}
	if req.InvoicePrefix != nil {
		company.InvoicePrefix = strings.TrimSpace(*req.InvoicePrefix)
	}
	if req.DefaultCurrency != nil {
		company.DefaultCurrency = strings.ToUpper(strings.TrimSpace(*req.DefaultCurrency))
	}
	if req.DefaultTaxRate != nil {
		company.DefaultTaxRate = *req.DefaultTaxRate
	}
	if req.DefaultPaymentTerms != nil {
		company.DefaultPaymentTerms = *req.DefaultPaymentTerms
	}
	if req.DefaultNotes != nil {
		company.DefaultNotes = *req.DefaultNotes
	}
	if req.DefaultTemplateStyle != nil {
		company.DefaultTemplateStyle = strings.TrimSpace(*req.DefaultTemplateStyle)
	}
	if req.LateFeeEnabled != nil {
		company.LateFeeEnabled = *req.LateFeeEnabled
	}
	if req.LateFeeType != nil {
		company.LateFeeType = *req.LateFeeType
	}
	if req.LateFeeAmount != nil {
		company.LateFeeAmount = *req.LateFeeAmount
	}
	if req.LateFeeMaxAmount != nil {
		if req.LateFeeMaxAmount.IsZero() {
			company.LateFeeMaxAmount = nil
		} else {
			maxAmount := *req.LateFeeMaxAmount
			company.LateFeeMaxAmount = &maxAmount
		}
	}
	if req.LateFeeGraceDays != nil {
		company.LateFeeGraceDays = *req.LateFeeGraceDays
	}
	if req.RemindersEnabled != nil {
		company.RemindersEnabled = *req.RemindersEnabled
	}

	if err := validate(company); err != nil {
		return nil, err
	}

	company.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, s.db, company); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *Service) NextInvoiceNumber(ctx context.Context, tx *gorm.DB, companyID snowflake.ID) (string, error) {
	company, err := s.repo.FindByID(ctx, tx, companyID)
	if err != nil {
		return "", err
	}
	if company == nil {
		return "", companydomain.ErrNotFound
	}

	seq, err := s.repo.IncrementInvoiceCounter(ctx, tx, companyID)
	if err != nil {
		return "", err
	}
	return format.InvoiceNumber(company.InvoicePrefix, seq)
}

var hundred = decimal.NewFromInt(100)

func validate(c *companydomain.Company) error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, companydomain.ErrInvalidName)
	}
	if strings.ContainsAny(c.InvoicePrefix, "{}") || len(c.InvoicePrefix) > 20 {
		errs = append(errs, companydomain.ErrInvalidPrefix)
	}
	if !invoicedomain.IsSupportedCurrency(c.DefaultCurrency) {
		errs = append(errs, companydomain.ErrInvalidCurrency)
	}
	if c.DefaultTaxRate.IsNegative() || c.DefaultTaxRate.GreaterThan(hundred) {
		errs = append(errs, companydomain.ErrInvalidTaxRate)
	}
	if !invoicedomain.IsKnownPaymentTerms(c.DefaultPaymentTerms) {
		errs = append(errs, companydomain.ErrInvalidPaymentTerms)
	}
	if !invoicedomain.IsSupportedTemplateStyle(c.DefaultTemplateStyle) {
		errs = append(errs, companydomain.ErrInvalidTemplateStyle)
	}
	if c.LateFeeType != invoicedomain.LateFeeTypeFlat && c.LateFeeType != invoicedomain.LateFeeTypePercentage {
		errs = append(errs, companydomain.ErrInvalidLateFee)
	} else if c.LateFeeAmount.IsNegative() || c.LateFeeGraceDays < 0 ||
		(c.LateFeeType == invoicedomain.LateFeeTypePercentage && c.LateFeeAmount.GreaterThan(hundred)) {
		errs = append(errs, companydomain.ErrInvalidLateFee)
	}
	return errors.Join(errs...)
}
