package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoicekits/invoicekits/internal/account"
	accountdomain "github.com/invoicekits/invoicekits/internal/account/domain"
	"github.com/invoicekits/invoicekits/internal/apikey"
	apikeydomain "github.com/invoicekits/invoicekits/internal/apikey/domain"
	"github.com/invoicekits/invoicekits/internal/batch"
	batchdomain "github.com/invoicekits/invoicekits/internal/batch/domain"
	"github.com/invoicekits/invoicekits/internal/company"
	companydomain "github.com/invoicekits/invoicekits/internal/company/domain"
	"github.com/invoicekits/invoicekits/internal/config"
	"github.com/invoicekits/invoicekits/internal/invoice"
	invoicedomain "github.com/invoicekits/invoicekits/internal/invoice/domain"
	"github.com/invoicekits/invoicekits/internal/observability"
	obsmiddleware "github.com/invoicekits/invoicekits/internal/observability/logger"
	obsmetrics "github.com/invoicekits/invoicekits/internal/observability/metrics"
	obstracing "github.com/invoicekits/invoicekits/internal/observability/tracing"
	"github.com/invoicekits/invoicekits/internal/providers"
	"github.com/invoicekits/invoicekits/internal/ratelimit"
	"github.com/invoicekits/invoicekits/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Services is every domain module the HTTP API depends on. The scheduler
// binary reuses it without the server.
var Services = fx.Options(
	ratelimit.Module,
	storage.Module,
	providers.Module,
	account.Module,
	company.Module,
	invoice.Module,
	batch.Module,
	apikey.Module,
)

var Module = fx.Module("http.server",
	Services,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	apiKeySvc  apikeydomain.Service
	companySvc companydomain.Service
	accountSvc accountdomain.Service
	invoiceSvc invoicedomain.Service
	batchSvc   batchdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	APIKeySvc  apikeydomain.Service
	CompanySvc companydomain.Service
	AccountSvc accountdomain.Service
	InvoiceSvc invoicedomain.Service
	BatchSvc   batchdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		apiKeySvc:  p.APIKeySvc,
		companySvc: p.CompanySvc,
		accountSvc: p.AccountSvc,
		invoiceSvc: p.InvoiceSvc,
		batchSvc:   p.BatchSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// Templates carry no company data.
	api.GET("/batches/template", s.DownloadBatchTemplate)

	authed := api.Group("", s.APIKeyRequired())

	// -------- Company --------
	authed.GET("/company", s.GetCompany)
	authed.PATCH("/company", s.UpdateCompany)
	authed.GET("/account/usage", s.GetAccountUsage)

	// -------- API Keys --------
	authed.GET("/api-keys", s.ListAPIKeys)
	authed.POST("/api-keys", s.CreateAPIKey)
	authed.DELETE("/api-keys/:key_id", s.RevokeAPIKey)

	// -------- Invoices --------
	authed.GET("/invoices", s.ListInvoices)
	authed.POST("/invoices", s.CreateInvoice)
	authed.POST("/invoices/preview", s.PreviewInvoice)
	authed.GET("/invoices/:id", s.GetInvoiceByID)
	authed.GET("/invoices/:id/pdf", s.DownloadInvoicePDF)
	authed.POST("/invoices/:id/items", s.AddInvoiceLineItem)
	authed.PATCH("/invoices/:id/items/:item_id", s.UpdateInvoiceLineItem)
	authed.DELETE("/invoices/:id/items/:item_id", s.RemoveInvoiceLineItem)
	authed.PUT("/invoices/:id/discount", s.UpdateInvoiceDiscount)
	authed.POST("/invoices/:id/send", s.SendInvoice)
	authed.POST("/invoices/:id/pay", s.MarkInvoicePaid)
	authed.POST("/invoices/:id/cancel", s.CancelInvoice)
	authed.POST("/invoices/:id/late-fee", s.ApplyInvoiceLateFee)
	authed.DELETE("/invoices/:id/late-fee", s.RemoveInvoiceLateFee)
	authed.PUT("/invoices/:id/late-fee/pause", s.PauseInvoiceLateFees)

	// -------- Batches --------
	authed.POST("/batches", s.UploadBatch)
	authed.GET("/batches", s.ListBatches)
	authed.GET("/batches/:id", s.GetBatch)
	authed.GET("/batches/:id/archive", s.DownloadBatchArchive)
	authed.POST("/batches/:id/process", s.ProcessBatch)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
