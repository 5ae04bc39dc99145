package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kigyomail/internal/batchlog"
	batchlogdomain "github.com/smallbiznis/kigyomail/internal/batchlog/domain"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/corporation"
	"github.com/smallbiznis/kigyomail/internal/ledger"
	"github.com/smallbiznis/kigyomail/internal/mailqueue"
	mailqueuedomain "github.com/smallbiznis/kigyomail/internal/mailqueue/domain"
	"github.com/smallbiznis/kigyomail/internal/observability"
	obsmiddleware "github.com/smallbiznis/kigyomail/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kigyomail/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kigyomail/internal/observability/tracing"
	"github.com/smallbiznis/kigyomail/internal/payment"
	paymentdomain "github.com/smallbiznis/kigyomail/internal/payment/domain"
	"github.com/smallbiznis/kigyomail/internal/pipeline"
	"github.com/smallbiznis/kigyomail/internal/ratelimit"
	"github.com/smallbiznis/kigyomail/internal/registry"
	"github.com/smallbiznis/kigyomail/internal/scheduler"
	"github.com/smallbiznis/kigyomail/internal/settlement"
	settlementdomain "github.com/smallbiznis/kigyomail/internal/settlement/domain"
	"github.com/smallbiznis/kigyomail/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/kigyomail/internal/subscription/domain"
	"github.com/smallbiznis/kigyomail/internal/usage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains is every service module the HTTP surface and the job runner need.
var Domains = fx.Options(
	registry.Module,
	corporation.Module,
	subscription.Module,
	mailqueue.Module,
	ledger.Module,
	usage.Module,
	settlement.Module,
	payment.Module,
	batchlog.Module,
	pipeline.Module,
	ratelimit.Module,
	scheduler.Module,
)

var Module = fx.Module("http.server",
	Domains,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
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

// JobRunner triggers the batch jobs. *scheduler.Scheduler satisfies it so
// HTTP triggers share the scheduler's single-flight lock and metrics.
type JobRunner interface {
	FetchCorporations(ctx context.Context, trigger string, date time.Time) (pipeline.Summary, error)
	LockQueue(ctx context.Context, trigger string) (mailqueuedomain.LockResult, error)
	SettleBilling(ctx context.Context, trigger string) (settlementdomain.Summary, error)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	jobs            JobRunner
	webhookSvc      paymentdomain.Service
	queueSvc        mailqueuedomain.Service
	subscriptionSvc subscriptiondomain.Service
	batchLogSvc     batchlogdomain.Service
	triggerLimiter  *ratelimit.TriggerLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Scheduler       *scheduler.Scheduler
	WebhookSvc      paymentdomain.Service
	QueueSvc        mailqueuedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	BatchLogSvc     batchlogdomain.Service
	TriggerLimiter  *ratelimit.TriggerLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		jobs:            p.Scheduler,
		webhookSvc:      p.WebhookSvc,
		queueSvc:        p.QueueSvc,
		subscriptionSvc: p.SubscriptionSvc,
		batchLogSvc:     p.BatchLogSvc,
		triggerLimiter:  p.TriggerLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	if p.Cfg.CronSecret == "" {
		svc.log.Warn("CRON_SECRET is empty, cron triggers will reject every request")
	}
	if p.Cfg.AdminAPIKey == "" {
		svc.log.Warn("ADMIN_API_KEY is empty, admin routes will reject every request")
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	cron := api.Group("/cron", s.CronAuthRequired(), s.TriggerRateLimit())
	{
		cron.GET("/fetch-corporations", s.FetchCorporations)
		cron.POST("/fetch-corporations", s.FetchCorporations)
		cron.GET("/lock-queue", s.LockQueue)
		cron.POST("/lock-queue", s.LockQueue)
		cron.GET("/monthly-billing", s.MonthlyBilling)
		cron.POST("/monthly-billing", s.MonthlyBilling)
	}

	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	admin := api.Group("/admin", s.AdminAuthRequired())
	{
		admin.GET("/queue", s.ListQueue)
		admin.POST("/queue/mark-sent", s.MarkQueueSent)
		admin.GET("/batch-logs", s.ListBatchLogs)
	}

	customer := api.Group("", s.AdminAuthRequired(), s.CustomerRequired())
	{
		customer.POST("/queue/:id/cancel", s.CancelQueueItem)
		customer.POST("/subscriptions/:id/toggle", s.ToggleSubscription)
	}
}
