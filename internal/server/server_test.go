package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	accountrepo "github.com/invoicekits/invoicekits/internal/account/repository"
	accountservice "github.com/invoicekits/invoicekits/internal/account/service"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	apikeyrepo "github.com/invoicekits/invoicekits/internal/apikey/repository"
	apikeyservice "github.com/invoicekits/invoicekits/internal/apikey/service"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	batchrepo "github.com/invoicekits/invoicekits/internal/batch/repository"
	batchservice "github.com/invoicekits/invoicekits/internal/batch/service"
	"github.com/invoicekits/invoicekits/internal/clock"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	companyrepo "github.com/invoicekits/invoicekits/internal/company/repository"
	companyservice "github.com/invoicekits/invoicekits/internal/company/service"
	"github.com/invoicekits/invoicekits/internal/companycontext"
	"github.com/invoicekits/invoicekits/internal/config"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	invoicerepo "github.com/invoicekits/invoicekits/internal/invoice/repository"
	invoiceservice "github.com/invoicekits/invoicekits/internal/invoice/service"
	"github.com/invoicekits/invoicekits/internal/observability"
	"github.com/invoicekits/invoicekits/internal/storage"
	"github.com/invoicekits/invoicekits/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type apiFixture struct {
	engine *gin.Engine
	token  string
}

func newAPIFixture(t *testing.T, tier string) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.OpenDB(t,
		&companydomain.Company{},
		&accountdomain.Account{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&invoicedomain.LateFeeLog{},
		&batchdomain.Batch{},
		&apikeydomain.APIKey{},
	)
	node := testutil.NewNode(t)
	fakeClock := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Batch: config.BatchConfig{
		ValidationPolicy:  "reject_file",
		MaxUploadBytes:    1 << 20,
		StaleAfter:        30 * time.Minute,
		ClaimLockDuration: time.Minute,
	}}

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
	invoices := invoiceservice.New(invoiceservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       invoicerepo.Provide(),
		CompanySvc: companies,
		AccountSvc: accounts,
		Clock:      fakeClock,
	})
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	batches := batchservice.New(batchservice.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Config:     cfg,
		Repo:       batchrepo.Provide(),
		InvoiceSvc: invoices,
		CompanySvc: companies,
		Quota:      accounts,
		Storage:    store,
		Clock:      fakeClock,
	})
	apiKeys := apikeyservice.New(apikeyservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  apikeyrepo.Provide(),
		Clock: fakeClock,
	})

	company, err := companies.Create(context.Background(), companydomain.CreateRequest{
		Name:           "Acme Studio",
		DefaultTaxRate: decimal.NewFromInt(10),
		Tier:           tier,
	})
	require.NoError(t, err)
	secret, err := apiKeys.Create(companycontext.WithCompanyID(context.Background(), company.ID), apikeydomain.CreateRequest{Name: "tests"})
	require.NoError(t, err)

	srv := NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{}, nil, zap.NewNop()),
		Cfg:        cfg,
		Log:        zap.NewNop(),
		APIKeySvc:  apiKeys,
		CompanySvc: companies,
		AccountSvc: accounts,
		InvoiceSvc: invoices,
		BatchSvc:   batches,
	})
	return &apiFixture{engine: srv.Engine(), token: secret.APIKey}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(t *testing.T, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/batches", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var payload struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return payload.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var payload errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload), rec.Body.String())
	return payload.Error
}

func TestHealthIsPublic(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierFree)

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierFree)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"unknown":   "Bearer ik_live_nope",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			f.engine.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
		})
	}
}

func TestInvoiceLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierFree)

	rec := f.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"client_name":  "Tech Startup Inc",
		"client_email": "dev@tech.example",
		"items": []map[string]any{
			{"description": "Website Development", "quantity": "40", "rate": "150"},
			{"description": "SEO Optimization", "quantity": "10", "rate": "100"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeData[invoicedomain.Invoice](t, rec)
	assert.Equal(t, "INV-00001", created.InvoiceNumber)
	assert.Equal(t, "7000.00", created.Subtotal.StringFixed(2))
	assert.Equal(t, "700.00", created.TaxAmount.StringFixed(2))
	assert.Equal(t, "7700.00", created.Total.StringFixed(2))
	id := created.ID.String()

	rec = f.do(t, http.MethodPut, "/api/invoices/"+id+"/discount", map[string]any{"discount_amount": "200"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "7500.00", decodeData[invoicedomain.Invoice](t, rec).Total.StringFixed(2))

	rec = f.do(t, http.MethodPost, "/api/invoices/"+id+"/pay", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Type)

	rec = f.do(t, http.MethodPost, "/api/invoices/"+id+"/send", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, invoicedomain.InvoiceStatusSent, decodeData[invoicedomain.Invoice](t, rec).Status)

	rec = f.do(t, http.MethodPost, "/api/invoices/"+id+"/late-fee", map[string]any{"amount": "25"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "7525.00", decodeData[invoicedomain.Invoice](t, rec).Total.StringFixed(2))

	rec = f.do(t, http.MethodPost, "/api/invoices/"+id+"/late-fee", map[string]any{"amount": "25"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/invoices?status=sent", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]invoicedomain.Invoice](t, rec), 1)
}

func TestInvoiceRequestErrors(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierFree)

	rec := f.do(t, http.MethodGet, "/api/invoices/not-a-number", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_id", decodeError(t, rec).Errors[0].Code)

	rec = f.do(t, http.MethodGet, "/api/invoices/123456789", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/invoices?status=lost", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/invoices", map[string]any{
		"client_name": "Tech Startup Inc",
		"currency":    "XYZ",
		"items":       []map[string]any{{"description": "Design", "quantity": "1", "rate": "10"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	assert.Equal(t, "currency", payload.Errors[0].Field)
}

func TestBatchUploadAndProcessOverHTTP(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierProfessional)

	rec := f.upload(t, "january.csv", strings.Join([]string{
		"client_name,client_email,item_description,quantity,rate",
		"Acme Corp,ap@acme.example,Website Development,40,150",
		"Acme Corp,ap@acme.example,SEO Optimization,10,100",
		"Tech Startup Inc,dev@tech.example,Mobile App Design,60,175",
	}, "\n"))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	batch := decodeData[batchdomain.Batch](t, rec)
	assert.Equal(t, batchdomain.StatusPending, batch.Status)

	rec = f.do(t, http.MethodPost, "/api/batches/"+batch.ID.String()+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result batchdomain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Failed)

	rec = f.do(t, http.MethodPost, "/api/batches/"+batch.ID.String()+"/process", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/batches/"+batch.ID.String()+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no renderer means no archive")

	rec = f.do(t, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeData[[]batchdomain.Batch](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, batchdomain.StatusCompleted, listed[0].Status)
}

func TestBatchUploadRejections(t *testing.T) {
	t.Run("plan without batch upload", func(t *testing.T) {
		f := newAPIFixture(t, accountdomain.TierFree)
		rec := f.upload(t, "january.csv", "client_name,item_description,quantity,rate\nAcme,Design,1,10\n")
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		assert.Equal(t, "plan_upgrade_required", decodeError(t, rec).Type)
	})

	t.Run("wrong extension", func(t *testing.T) {
		f := newAPIFixture(t, accountdomain.TierBusiness)
		rec := f.upload(t, "january.txt", "client_name\n")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_file", decodeError(t, rec).Errors[0].Code)
	})
}

func TestBatchTemplateDownload(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierFree)

	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeCSV, rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "client_name,client_email,"))
	assert.Equal(t, 4, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1)

	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/template?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = httptest.NewRecorder()
	f.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/batches/template?format=pdf", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompanyAndUsage(t *testing.T) {
	f := newAPIFixture(t, accountdomain.TierStarter)

	rec := f.do(t, http.MethodPatch, "/api/company", map[string]any{"invoice_prefix": "ACME-"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ACME-", decodeData[companydomain.Company](t, rec).InvoicePrefix)

	rec = f.do(t, http.MethodGet, "/api/account/usage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decodeData[accountdomain.Usage](t, rec)
	assert.Equal(t, accountdomain.TierStarter, usage.Tier)
	assert.Equal(t, 50, usage.Limit)
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.GET("/limited", func(c *gin.Context) {
		AbortWithError(c, &batchdomain.RateLimitError{RetryAfter: 1500 * time.Millisecond})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/limited", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}
