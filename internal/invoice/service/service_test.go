package service

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	accountrepo "github.com/invoicekits/invoicekits/internal/account/repository"
	accountservice "github.com/invoicekits/invoicekits/internal/account/service"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	companyrepo "github.com/invoicekits/invoicekits/internal/company/repository"
	companyservice "github.com/invoicekits/invoicekits/internal/company/service"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/config"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/invoicekits/invoicekits/internal/invoice/repository"
	"github.com/invoicekits/invoicekits/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRenderer struct {
	docs []invoicedomain.Document
	err  error
}

func (r *fakeRenderer) Render(_ context.Context, doc invoicedomain.Document) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.docs = append(r.docs, doc)
	return []byte("%PDF-" + doc.Number()), nil
}

type fixture struct {
	ctx      context.Context
	svc      *Service
	accounts accountdomain.Service
	company  *companydomain.Company
	renderer *fakeRenderer
	clock    *clock.FakeClock
}

func newFixture(t *testing.T, tier string) *fixture {
	t.Helper()
	db := testutil.OpenDB(t,
		&companydomain.Company{},
		&accountdomain.Account{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&invoicedomain.LateFeeLog{},
	)
	node := testutil.NewNode(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	accounts := accountservice.New(accountservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  accountrepo.Provide(),
		Plans: config.NewStaticPlansHolder(config.DefaultPlansConfig()),
		Clock: fakeClock,
	})
	companies := companyservice.New(companyservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       companyrepo.Provide(),
		AccountSvc: accounts,
	})

	company, err := companies.Create(context.Background(), companydomain.CreateRequest{
		Name:           "Acme Studio",
		DefaultTaxRate: decimal.RequireFromString("8.5"),
		Tier:           tier,
	})
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	svc := New(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		CompanySvc: companies,
		AccountSvc: accounts,
		Clock:      fakeClock,
		Renderer:   renderer,
	}).(*Service)

	return &fixture{
		ctx:      companycontext.WithCompanyID(context.Background(), company.ID),
		svc:      svc,
		accounts: accounts,
		company:  company,
		renderer: renderer,
		clock:    fakeClock,
	}
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func sampleRequest() invoicedomain.CreateInvoiceRequest {
	return invoicedomain.CreateInvoiceRequest{
		ClientName:  "Tech Startup Inc",
		ClientEmail: "billing@techstartup.example",
		Items: []invoicedomain.LineItemInput{
			{Description: "Mobile App Design", Quantity: d("60"), Rate: d("175")},
			{Description: "Code review", Quantity: d("2"), Rate: d("50")},
		},
	}
}

func TestCreate_NumbersAndTotals(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)

	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, "INV-00001", inv.InvoiceNumber)
	assert.Equal(t, invoicedomain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, invoicedomain.PaymentTermsNet30, inv.PaymentTerms)
	assert.Equal(t, time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC), inv.DueDate)
	assert.Equal(t, "10600.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "901.00", inv.TaxAmount.StringFixed(2))
	assert.Equal(t, "11501.00", inv.Total.StringFixed(2))

	reloaded, err := f.svc.GetByID(f.ctx, inv.ID.String())
	require.NoError(t, err)
	require.Len(t, reloaded.LineItems, 2)
	assert.Equal(t, "Mobile App Design", reloaded.LineItems[0].Description)
	assert.True(t, reloaded.Total.Equal(inv.Total))

	second, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-00002", second.InvoiceNumber)

	usage, err := f.accounts.Usage(f.ctx, f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Used)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)

	req := sampleRequest()
	req.ClientName = " "
	req.Currency = "XYZ"
	_, err := f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidClientName)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCurrency)

	req = sampleRequest()
	req.Items[1].Quantity = decimal.Zero
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)

	req = sampleRequest()
	req.Items[0].Rate = d("99999999999")
	req.Items[0].Quantity = d("10")
	_, err = f.svc.Create(f.ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrAmountOverflow)

	_, err = f.svc.Create(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidCompany)

	next, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", next.InvoiceNumber, "rejected requests must not consume numbers")
}

func TestCreate_QuotaRollsBackCounter(t *testing.T) {
	f := newFixture(t, accountdomain.TierFree)

	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(f.ctx, sampleRequest())
		require.NoError(t, err)
	}

	_, err := f.svc.Create(f.ctx, sampleRequest())
	require.ErrorIs(t, err, invoicedomain.ErrQuotaExceeded)

	require.NoError(t, f.accounts.SetTier(f.ctx, f.company.ID, accountdomain.TierStarter))
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-00006", inv.InvoiceNumber)
}

func TestLineItemMutationsRecomputeTotals(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	id := inv.ID.String()

	inv, err = f.svc.AddLineItem(f.ctx, id, invoicedomain.LineItemInput{Description: "Hosting", Quantity: d("1"), Rate: d("400")})
	require.NoError(t, err)
	assert.Equal(t, "11000.00", inv.Subtotal.StringFixed(2))
	require.Len(t, inv.LineItems, 3)
	assert.Equal(t, 2, inv.LineItems[2].Order)

	inv, err = f.svc.UpdateLineItem(f.ctx, id, inv.LineItems[1].ID.String(), invoicedomain.LineItemInput{Description: "Code review", Quantity: d("4"), Rate: d("50")})
	require.NoError(t, err)
	assert.Equal(t, "11100.00", inv.Subtotal.StringFixed(2))

	inv, err = f.svc.RemoveLineItem(f.ctx, id, inv.LineItems[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, "600.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "51.00", inv.TaxAmount.StringFixed(2))

	inv, err = f.svc.UpdateDiscount(f.ctx, id, d("1"))
	require.NoError(t, err)
	assert.Equal(t, "650.00", inv.Total.StringFixed(2))

	reloaded, err := f.svc.GetByID(f.ctx, id)
	require.NoError(t, err)
	assert.Len(t, reloaded.LineItems, 2)
	assert.Equal(t, "650.00", reloaded.Total.StringFixed(2))
	assert.True(t, reloaded.Subtotal.Add(reloaded.TaxAmount).Sub(reloaded.DiscountAmount).Equal(reloaded.Total))

	_, err = f.svc.RemoveLineItem(f.ctx, id, "12345")
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = f.svc.MarkPaid(f.ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	inv, err = f.svc.Send(f.ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, inv.SentAt)

	inv, err = f.svc.MarkOverdue(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusOverdue, inv.Status)

	inv, err = f.svc.MarkPaid(f.ctx, id)
	require.NoError(t, err)
	assert.NotNil(t, inv.PaidAt)

	_, err = f.svc.Cancel(f.ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
	_, err = f.svc.AddLineItem(f.ctx, id, invoicedomain.LineItemInput{Description: "x", Quantity: d("1"), Rate: d("1")})
	assert.ErrorIs(t, err, invoicedomain.ErrNotEditable)
}

func TestLateFees(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = f.svc.ApplyLateFee(f.ctx, id, d("25"))
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition, "drafts cannot carry late fees")

	_, err = f.svc.Send(f.ctx, id)
	require.NoError(t, err)

	f.clock.Advance(40 * 24 * time.Hour)
	inv, err = f.svc.ApplyLateFee(f.ctx, id, d("25"))
	require.NoError(t, err)
	assert.Equal(t, "11526.00", inv.Total.StringFixed(2))
	require.NotNil(t, inv.OriginalTotal)

	_, err = f.svc.ApplyLateFee(f.ctx, id, d("25"))
	assert.ErrorIs(t, err, invoicedomain.ErrLateFeeAlreadyApplied)

	var logs []invoicedomain.LateFeeLog
	require.NoError(t, f.svc.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, 10, logs[0].DaysOverdue)
	assert.Equal(t, "user", logs[0].AppliedBy)
	assert.Equal(t, "11501.00", logs[0].TotalBefore.StringFixed(2))

	inv, err = f.svc.RemoveLateFee(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "11501.00", inv.Total.StringFixed(2))

	_, err = f.svc.RemoveLateFee(f.ctx, id)
	assert.ErrorIs(t, err, invoicedomain.ErrNoLateFee)

	inv, err = f.svc.SetLateFeesPaused(f.ctx, id, true)
	require.NoError(t, err)
	assert.True(t, inv.LateFeesPaused)
}

func TestRemoveLateFee_AfterLineItemEdit(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	id := inv.ID.String()

	_, err = f.svc.Send(f.ctx, id)
	require.NoError(t, err)
	_, err = f.svc.ApplyLateFee(f.ctx, id, d("25"))
	require.NoError(t, err)

	// 10700 subtotal, 909.50 tax
	inv, err = f.svc.AddLineItem(f.ctx, id, invoicedomain.LineItemInput{Description: "Hosting", Quantity: d("1"), Rate: d("100")})
	require.NoError(t, err)
	assert.Equal(t, "11634.50", inv.Total.StringFixed(2))

	inv, err = f.svc.RemoveLateFee(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "11609.50", inv.Total.StringFixed(2))

	stored, err := f.svc.GetByID(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(stored.Subtotal.Add(stored.TaxAmount).Sub(stored.DiscountAmount)))
	assert.True(t, stored.LateFeeApplied.IsZero())
}

func TestList_Paginates(t *testing.T) {
	f := newFixture(t, accountdomain.TierBusiness)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Create(f.ctx, sampleRequest())
		require.NoError(t, err)
	}

	first, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Invoices, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "INV-00005", first.Invoices[0].InvoiceNumber)

	second, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{PageSize: 2, PageToken: first.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second.Invoices, 2)
	assert.Equal(t, "INV-00003", second.Invoices[0].InvoiceNumber)

	drafts, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{Status: invoicedomain.InvoiceStatusPaid})
	require.NoError(t, err)
	assert.Empty(t, drafts.Invoices)
	assert.False(t, drafts.HasMore)
}

func TestRenderPDF_WatermarksFreePlan(t *testing.T) {
	f := newFixture(t, accountdomain.TierFree)
	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)

	out, err := f.svc.RenderPDF(f.ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-INV-00001", string(out))

	require.Len(t, f.renderer.docs, 1)
	marked, ok := f.renderer.docs[0].(invoicedomain.Watermarker)
	require.True(t, ok)
	assert.Equal(t, invoicedomain.FreePlanWatermark, marked.WatermarkText())

	f.renderer.err = errors.New("font missing")
	_, err = f.svc.RenderPDF(f.ctx, inv.ID.String())
	assert.Error(t, err)
}

func TestPreview_DoesNotPersist(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)

	_, err := f.svc.Preview(f.ctx, sampleRequest())
	require.NoError(t, err)
	require.Len(t, f.renderer.docs, 1)
	doc := f.renderer.docs[0]
	assert.True(t, doc.IsPreview())
	assert.Equal(t, "11501.00", doc.Amounts().Total.StringFixed(2))

	list, err := f.svc.List(f.ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)

	inv, err := f.svc.Create(f.ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "INV-00001", inv.InvoiceNumber)
}
