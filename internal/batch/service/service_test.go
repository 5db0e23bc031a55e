package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	accountrepo "github.com/invoicekits/invoicekits/internal/account/repository"
	accountservice "github.com/invoicekits/invoicekits/internal/account/service"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/batch/repository"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	companyrepo "github.com/invoicekits/invoicekits/internal/company/repository"
	companyservice "github.com/invoicekits/invoicekits/internal/company/service"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/config"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	invoicerepo "github.com/invoicekits/invoicekits/internal/invoice/repository"
	invoiceservice "github.com/invoicekits/invoicekits/internal/invoice/service"
	"github.com/invoicekits/invoicekits/internal/storage"
	"github.com/invoicekits/invoicekits/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeRenderer struct {
	failFor  string
	docs     []invoicedomain.Document
	onRender func()
}

func (r *fakeRenderer) Render(_ context.Context, doc invoicedomain.Document) ([]byte, error) {
	if r.onRender != nil {
		r.onRender()
	}
	if r.failFor != "" && doc.BillTo().Name == r.failFor {
		return nil, errors.New("render failed")
	}
	r.docs = append(r.docs, doc)
	return []byte("%PDF-" + doc.Number()), nil
}

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	svc      *Service
	accounts accountdomain.Service
	invoices invoicedomain.Service
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
		&batchdomain.Batch{},
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
		DefaultTaxRate: decimal.RequireFromString("10"),
		Tier:           tier,
	})
	require.NoError(t, err)

	renderer := &fakeRenderer{}
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       invoicerepo.Provide(),
		CompanySvc: companies,
		AccountSvc: accounts,
		Clock:      fakeClock,
		Renderer:   renderer,
	})

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Config: config.Config{Batch: config.BatchConfig{
			ValidationPolicy:  "reject_file",
			MaxUploadBytes:    1 << 20,
			StaleAfter:        30 * time.Minute,
			ClaimLockDuration: time.Minute,
		}},
		Repo:       repository.Provide(),
		InvoiceSvc: invoices,
		CompanySvc: companies,
		Quota:      accounts,
		Storage:    store,
		Clock:      fakeClock,
		Renderer:   renderer,
	}).(*Service)

	return &fixture{
		ctx:      companycontext.WithCompanyID(context.Background(), company.ID),
		db:       db,
		svc:      svc,
		accounts: accounts,
		invoices: invoices,
		company:  company,
		renderer: renderer,
		clock:    fakeClock,
	}
}

func (f *fixture) upload(t *testing.T, name, body string) *batchdomain.Batch {
	t.Helper()
	batch, err := f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: name, Data: []byte(body)})
	require.NoError(t, err)
	return batch
}

const threeClients = `client_name,client_email,item_description,quantity,rate,tax_rate,currency
Acme Corp,ap@acme.example,Website Development,40,150,,
Acme Corp,ap@acme.example,SEO Optimization,10,100,,
Broken Ltd,,Consulting,1,500,,XYZ
Tech Startup Inc,dev@tech.example,Mobile App Design,60,175,0,eur
`

func TestProcess_OneInvoicePerClientWithIsolatedFailure(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)
	assert.Equal(t, batchdomain.StatusPending, batch.Status)

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.True(t, strings.HasPrefix(result.Errors[0], "Failed to create invoice for Broken Ltd: "), result.Errors[0])
	assert.Contains(t, result.Errors[0], invoicedomain.ErrInvalidCurrency.Error())

	require.Len(t, result.Invoices, 2)
	assert.Equal(t, "INV-00001", result.Invoices[0].InvoiceNumber)
	assert.Equal(t, "Acme Corp", result.Invoices[0].ClientName)
	assert.Equal(t, "7700.00", result.Invoices[0].Total)
	assert.Equal(t, "INV-00002", result.Invoices[1].InvoiceNumber)
	assert.Equal(t, "10500.00", result.Invoices[1].Total)

	acme, err := f.invoices.GetByID(f.ctx, result.Invoices[0].ID)
	require.NoError(t, err)
	require.Len(t, acme.LineItems, 2)
	assert.Equal(t, "Website Development", acme.LineItems[0].Description)
	assert.Equal(t, "SEO Optimization", acme.LineItems[1].Description)
	assert.Equal(t, "USD", acme.Currency)

	tech, err := f.invoices.GetByID(f.ctx, result.Invoices[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "EUR", tech.Currency)
	assert.True(t, tech.TaxAmount.IsZero())

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusCompleted, stored.Status)
	assert.Equal(t, 2, stored.ProcessedInvoices)
	assert.Equal(t, 1, stored.FailedInvoices)
	assert.Len(t, stored.InvoiceIDs, 2)
	assert.NotNil(t, stored.StartedAt)
	assert.NotNil(t, stored.CompletedAt)

	usage, err := f.accounts.Usage(context.Background(), f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.Used)
}

func TestProcess_ArchiveContainsRenderedInvoices(t *testing.T) {
	f := newFixture(t, accountdomain.TierBusiness)
	f.renderer.failFor = "Tech Startup Inc"
	batch := f.upload(t, "january.csv", threeClients)

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	require.Len(t, result.Invoices, 2)
	assert.True(t, result.Invoices[0].HasPDF)
	assert.False(t, result.Invoices[1].HasPDF, "render failure keeps the invoice")

	name, data, err := f.svc.Archive(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "invoices_batch_"+batch.ID.String()+".zip", name)

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	assert.Equal(t, "INV-00001.pdf", zr.File[0].Name)

	for _, doc := range f.renderer.docs {
		_, marked := doc.(invoicedomain.Watermarker)
		assert.False(t, marked, "paid plans render without watermark")
	}
}

func TestProcess_ValidationFailureCreatesNothing(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)

	var b strings.Builder
	b.WriteString("client_name,item_description,quantity,rate\n")
	for i := 0; i < 9; i++ {
		b.WriteString("Acme Corp,Design work,1,100\n")
	}
	b.WriteString("Acme Corp,Refund,1,-5\n")
	batch := f.upload(t, "bad.csv", b.String())

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Row 11")
	assert.Contains(t, result.Error, "Validation errors:")

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusFailed, stored.Status)

	list, err := f.invoices.List(f.ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Invoices)
}

func TestProcess_SkipRowsPolicyKeepsValidRows(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch, err := f.svc.Upload(f.ctx, batchdomain.UploadRequest{
		Filename: "mixed.csv",
		Data:     []byte("client_name,item_description,quantity,rate\nAcme Corp,Design,1,100\n,Missing client,1,10\n"),
		Policy:   "skip_rows",
	})
	require.NoError(t, err)

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Row 3")
}

func TestProcess_QuotaFailureBeforeAnyInvoice(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	require.NoError(t, f.accounts.IncrementInvoiceCount(context.Background(), f.db, f.company.ID, 199))
	batch := f.upload(t, "january.csv", threeClients)

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, batchdomain.MsgQuotaExceeded, result.Error)
	assert.Equal(t, 3, result.Total)
	assert.Zero(t, result.Processed)

	usage, err := f.accounts.Usage(context.Background(), f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, 199, usage.Used)
}

func TestProcess_ClaimsOnlyOnce(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)

	_, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), batch.ID)
	assert.ErrorIs(t, err, batchdomain.ErrNotPending)
}

type cancellingInvoices struct {
	invoicedomain.Service
	cancel context.CancelFunc
}

func (c *cancellingInvoices) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	invoice, err := c.Service.Create(ctx, req)
	c.cancel()
	return invoice, err
}

func TestProcess_CancelledBetweenGroups(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.svc.invoiceSvc = &cancellingInvoices{Service: f.invoices, cancel: cancel}

	result, err := f.svc.Process(ctx, batch.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, batchdomain.MsgCancelled, result.Error)
	assert.Equal(t, 1, result.Processed)

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusFailed, stored.Status)
}

func TestProcessPending(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	f.upload(t, "a.csv", "client_name,item_description,quantity,rate\nAcme Corp,Design,1,100\n")
	f.upload(t, "b.csv", "client_name,item_description,quantity,rate\nTech Startup Inc,Build,2,100\n")

	n, err := f.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.ProcessPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailStale(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)

	claimed, err := f.svc.repo.Claim(context.Background(), f.db, batch.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, claimed)

	n, err := f.svc.FailStale(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(31 * time.Minute)
	n, err = f.svc.FailStale(context.Background(), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusFailed, stored.Status)
	assert.Equal(t, batchdomain.MsgStale, stored.ErrorMessage)
}

func TestProcess_StaysFailedWhenSweptMidRun(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)

	swept := false
	f.renderer.onRender = func() {
		if swept {
			return
		}
		swept = true
		f.clock.Advance(2 * time.Hour)
		n, err := f.svc.FailStale(context.Background(), 0)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)
	}

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.True(t, swept)
	assert.False(t, result.Success)
	assert.Equal(t, batchdomain.MsgStale, result.Error)

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusFailed, stored.Status)
	assert.Equal(t, batchdomain.MsgStale, stored.ErrorMessage)
	assert.Empty(t, stored.ArchiveKey)
}

func TestProcess_StopsCreatingInvoicesOnceSwept(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	batch := f.upload(t, "january.csv", threeClients)
	f.svc.invoiceSvc = &sweepingInvoices{Service: f.invoices, f: f, t: t}

	result, err := f.svc.Process(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, batchdomain.MsgStale, result.Error)

	usage, err := f.accounts.Usage(context.Background(), f.company.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Used)

	stored, err := f.svc.Get(f.ctx, batch.ID.String())
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StatusFailed, stored.Status)
	assert.Zero(t, stored.ProcessedInvoices)
}

type sweepingInvoices struct {
	invoicedomain.Service
	f *fixture
	t *testing.T
}

func (s *sweepingInvoices) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	invoice, err := s.Service.Create(ctx, req)
	s.f.clock.Advance(2 * time.Hour)
	_, sweepErr := s.f.svc.FailStale(context.Background(), 0)
	require.NoError(s.t, sweepErr)
	return invoice, err
}

func TestUpload_Rejections(t *testing.T) {
	t.Run("plan without batch upload", func(t *testing.T) {
		f := newFixture(t, accountdomain.TierFree)
		_, err := f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: "a.csv", Data: []byte("x")})
		assert.ErrorIs(t, err, batchdomain.ErrUploadNotAllowed)
	})

	t.Run("file checks", func(t *testing.T) {
		f := newFixture(t, accountdomain.TierProfessional)
		_, err := f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: "a.pdf", Data: []byte("x")})
		assert.ErrorIs(t, err, batchdomain.ErrInvalidFile)

		_, err = f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: "a.csv"})
		assert.ErrorIs(t, err, batchdomain.ErrInvalidFile)

		_, err = f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: "a.csv", Data: make([]byte, 2<<20)})
		assert.ErrorIs(t, err, batchdomain.ErrFileTooLarge)

		_, err = f.svc.Upload(f.ctx, batchdomain.UploadRequest{Filename: "a.csv", Data: []byte("x"), Policy: "best_effort"})
		assert.ErrorIs(t, err, batchdomain.ErrInvalidPolicy)

		_, err = f.svc.Upload(context.Background(), batchdomain.UploadRequest{Filename: "a.csv", Data: []byte("x")})
		assert.ErrorIs(t, err, batchdomain.ErrInvalidCompany)
	})
}

func TestList_ScopedToCompany(t *testing.T) {
	f := newFixture(t, accountdomain.TierProfessional)
	first := f.upload(t, "a.csv", threeClients)
	second := f.upload(t, "b.csv", threeClients)

	resp, err := f.svc.List(f.ctx, batchdomain.ListRequest{PageSize: 1})
	require.NoError(t, err)
	require.Len(t, resp.Batches, 1)
	assert.Equal(t, second.ID, resp.Batches[0].ID)
	assert.True(t, resp.HasMore)

	_, err = f.svc.Get(companycontext.WithCompanyID(context.Background(), 42), first.ID.String())
	assert.ErrorIs(t, err, batchdomain.ErrNotFound)

	_, _, err = f.svc.Archive(f.ctx, first.ID.String())
	assert.ErrorIs(t, err, batchdomain.ErrArchiveUnavailable)
}

func TestRateLimitError(t *testing.T) {
	err := error(&batchdomain.RateLimitError{RetryAfter: 6 * time.Second})
	assert.ErrorIs(t, err, batchdomain.ErrRateLimited)

	var rle *batchdomain.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 6*time.Second, rle.RetryAfter)
}
