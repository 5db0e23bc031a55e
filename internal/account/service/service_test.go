package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/internal/account/repository"
	"github.com/invoicekits/invoicekits/internal/clock"
	"github.com/invoicekits/invoicekits/internal/config"
	"github.com/invoicekits/invoicekits/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T, now time.Time) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db := testutil.OpenDB(t, &accountdomain.Account{})
	clk := clock.NewFakeClock(now)
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Repo:  repository.Provide(),
		Plans: config.NewStaticPlansHolder(config.DefaultPlansConfig()),
		Clock: clk,
	}).(*Service)
	return svc, db, clk
}

func TestEnsureAccount_DefaultsToFreeTier(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	account, err := svc.EnsureAccount(ctx, db, snowflake.ID(7), "")
	require.NoError(t, err)
	assert.Equal(t, accountdomain.TierFree, account.Tier)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), account.PeriodStart)

	again, err := svc.EnsureAccount(ctx, db, snowflake.ID(7), accountdomain.TierBusiness)
	require.NoError(t, err)
	assert.Equal(t, account.ID, again.ID)

	_, err = svc.EnsureAccount(ctx, db, snowflake.ID(8), "platinum")
	assert.ErrorIs(t, err, accountdomain.ErrInvalidTier)
}

func TestQuota_FreeTierLimit(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	companyID := snowflake.ID(11)
	_, err := svc.EnsureAccount(ctx, db, companyID, accountdomain.TierFree)
	require.NoError(t, err)

	ok, err := svc.CanCreateInvoices(ctx, companyID, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.CanCreateInvoices(ctx, companyID, 6)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.IncrementInvoiceCount(ctx, db, companyID, 4))
	require.NoError(t, svc.IncrementInvoiceCount(ctx, db, companyID, 1))
	assert.ErrorIs(t, svc.IncrementInvoiceCount(ctx, db, companyID, 1), accountdomain.ErrQuotaExceeded)

	usage, err := svc.Usage(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 5, usage.Used)
	assert.Equal(t, 0, usage.Remaining)
	assert.True(t, usage.Watermark)
	assert.False(t, usage.BatchUpload)
}

func TestQuota_MonthlyReset(t *testing.T) {
	ctx := context.Background()
	svc, db, clk := setup(t, time.Date(2026, 1, 30, 12, 0, 0, 0, time.UTC))
	companyID := snowflake.ID(12)
	_, err := svc.EnsureAccount(ctx, db, companyID, accountdomain.TierFree)
	require.NoError(t, err)
	require.NoError(t, svc.IncrementInvoiceCount(ctx, db, companyID, 5))

	ok, err := svc.CanCreateInvoices(ctx, companyID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	clk.Set(time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC))
	ok, err = svc.CanCreateInvoices(ctx, companyID, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	usage, err := svc.Usage(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), usage.PeriodStart.UTC())
}

func TestQuota_BusinessIsUnlimited(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	companyID := snowflake.ID(13)
	_, err := svc.EnsureAccount(ctx, db, companyID, accountdomain.TierBusiness)
	require.NoError(t, err)

	require.NoError(t, svc.IncrementInvoiceCount(ctx, db, companyID, 1000))
	ok, err := svc.CanCreateInvoices(ctx, companyID, 10_000)
	require.NoError(t, err)
	assert.True(t, ok)

	batch, err := svc.CanBatchUpload(ctx, companyID)
	require.NoError(t, err)
	assert.True(t, batch)
}

func TestSetTier(t *testing.T) {
	ctx := context.Background()
	svc, db, _ := setup(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	companyID := snowflake.ID(14)
	_, err := svc.EnsureAccount(ctx, db, companyID, accountdomain.TierStarter)
	require.NoError(t, err)

	batch, err := svc.CanBatchUpload(ctx, companyID)
	require.NoError(t, err)
	assert.False(t, batch)

	require.NoError(t, svc.SetTier(ctx, companyID, "Professional"))
	batch, err = svc.CanBatchUpload(ctx, companyID)
	require.NoError(t, err)
	assert.True(t, batch)

	assert.ErrorIs(t, svc.SetTier(ctx, companyID, "gold"), accountdomain.ErrInvalidTier)
	assert.ErrorIs(t, svc.SetTier(ctx, snowflake.ID(99), accountdomain.TierFree), accountdomain.ErrNotFound)
}
