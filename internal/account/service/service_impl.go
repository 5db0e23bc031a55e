package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/internal/clock"
	"github.com/invoicekits/invoicekits/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  accountdomain.Repository
	Plans *config.PlansHolder
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  accountdomain.Repository
	plans *config.PlansHolder
	clock clock.Clock
}

func New(p Params) accountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("account.service"),
		genID: p.GenID,
		repo:  p.Repo,
		plans: p.Plans,
		clock: p.Clock,
	}
}

func (s *Service) EnsureAccount(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, tier string) (*accountdomain.Account, error) {
	existing, err := s.repo.FindByCompanyID(ctx, tx, companyID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	tier = strings.ToLower(strings.TrimSpace(tier))
	plans := s.plans.Get()
	if tier == "" {
		tier = plans.DefaultTier
	}
	if _, ok := plans.Tiers[tier]; !ok {
		return nil, accountdomain.ErrInvalidTier
	}

	now := s.clock.Now()
	account := &accountdomain.Account{
		ID:          s.genID.Generate(),
		CompanyID:   companyID,
		Tier:        tier,
		PeriodStart: accountdomain.PeriodStartFor(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, tx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// load returns the account with its monthly usage reset when a new month
// has started since the stored period.
func (s *Service) load(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*accountdomain.Account, error) {
	account, err := s.repo.FindByCompanyID(ctx, db, companyID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrNotFound
	}

	now := s.clock.Now()
	if account.NeedsReset(now) {
		periodStart := accountdomain.PeriodStartFor(now)
		if err := s.repo.ResetPeriod(ctx, db, companyID, periodStart); err != nil {
			return nil, err
		}
		s.log.Info("invoice usage reset for new period",
			zap.String("company_id", companyID.String()),
			zap.Time("period_start", periodStart),
		)
		account.InvoicesThisPeriod = 0
		account.PeriodStart = periodStart
	}
	return account, nil
}

func (s *Service) Usage(ctx context.Context, companyID snowflake.ID) (accountdomain.Usage, error) {
	account, err := s.load(ctx, s.db, companyID)
	if err != nil {
		return accountdomain.Usage{}, err
	}

	plan := s.plans.Get().Plan(account.Tier)
	usage := accountdomain.Usage{
		Tier:        account.Tier,
		PlanName:    plan.Name,
		Used:        account.InvoicesThisPeriod,
		Limit:       plan.MonthlyInvoices,
		Unlimited:   plan.MonthlyInvoices == config.Unlimited,
		BatchUpload: plan.BatchUpload,
		Watermark:   plan.Watermark,
		PeriodStart: account.PeriodStart,
	}
	if !usage.Unlimited {
		usage.Remaining = max(plan.MonthlyInvoices-account.InvoicesThisPeriod, 0)
	}
	return usage, nil
}

func (s *Service) CanCreateInvoices(ctx context.Context, companyID snowflake.ID, n int) (bool, error) {
	if n < 0 {
		return false, accountdomain.ErrInvalidCount
	}
	usage, err := s.Usage(ctx, companyID)
	if err != nil {
		return false, err
	}
	if usage.Unlimited {
		return true, nil
	}
	return usage.Used+n <= usage.Limit, nil
}

func (s *Service) IncrementInvoiceCount(ctx context.Context, tx *gorm.DB, companyID snowflake.ID, n int) error {
	if n <= 0 {
		return accountdomain.ErrInvalidCount
	}
	account, err := s.load(ctx, tx, companyID)
	if err != nil {
		return err
	}

	limit := s.plans.Get().Plan(account.Tier).MonthlyInvoices
	ok, err := s.repo.AddInvoices(ctx, tx, companyID, n, limit)
	if err != nil {
		return err
	}
	if !ok {
		return accountdomain.ErrQuotaExceeded
	}
	return nil
}

func (s *Service) CanBatchUpload(ctx context.Context, companyID snowflake.ID) (bool, error) {
	account, err := s.repo.FindByCompanyID(ctx, s.db, companyID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, accountdomain.ErrNotFound
	}
	return s.plans.Get().Plan(account.Tier).BatchUpload, nil
}

func (s *Service) SetTier(ctx context.Context, companyID snowflake.ID, tier string) error {
	tier = strings.ToLower(strings.TrimSpace(tier))
	if _, ok := s.plans.Get().Tiers[tier]; !ok {
		return accountdomain.ErrInvalidTier
	}
	if _, err := s.load(ctx, s.db, companyID); err != nil {
		return err
	}
	return s.repo.UpdateTier(ctx, s.db, companyID, tier)
}
