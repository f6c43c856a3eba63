package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/observability"
	obsmiddleware "github.com/smallbiznis/recoverly/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	obstracing "github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/ratelimit"
	"github.com/smallbiznis/recoverly/internal/recovery"
	reminderdomain "github.com/smallbiznis/recoverly/internal/reminder/domain"
	storefrontdomain "github.com/smallbiznis/recoverly/internal/storefront/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(provideRunner),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterAPIRoutes()
	}),
	fx.Invoke(RunHTTP),
)

// RecoveryRunner triggers guarded per-tenant runs on demand.
type RecoveryRunner interface {
	SyncTenant(ctx context.Context, tenantID string) (cartdomain.SyncResult, error)
	DispatchTenant(ctx context.Context, tenantID string) (reminderdomain.DispatchResult, error)
}

func provideRunner(r *recovery.Runner) RecoveryRunner {
	return r
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
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

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http.server.start", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	auth          *TokenAuth
	cartSvc       cartdomain.Service
	reminderSvc   reminderdomain.Service
	storefrontSvc storefrontdomain.Service
	runner        RecoveryRunner
	limiter       *ratelimit.TriggerLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	CartSvc       cartdomain.Service
	ReminderSvc   reminderdomain.Service
	StorefrontSvc storefrontdomain.Service
	Runner        RecoveryRunner
	Limiter       *ratelimit.TriggerLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http"),
		auth:          NewTokenAuth(p.Cfg.AuthJWTSecret),
		cartSvc:       p.CartSvc,
		reminderSvc:   p.ReminderSvc,
		storefrontSvc: p.StorefrontSvc,
		runner:        p.Runner,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Storefront webhook (signed, not bearer) --------
	api.POST("/storefront/webhook", s.HandleStorefrontWebhook)

	authed := api.Group("", s.TenantAuthRequired())

	// -------- Carts --------
	authed.POST("/carts/sync", s.TriggerRateLimit(), s.SyncCarts)
	authed.POST("/carts/send-reminders", s.TriggerRateLimit(), s.SendReminders)
	authed.GET("/carts", s.ListCarts)
	authed.GET("/carts/stats", s.GetCartStats)
	authed.GET("/carts/:id", s.GetCartByID)

	// -------- Reminders --------
	authed.GET("/reminders/settings", s.GetReminderSettings)
	authed.PUT("/reminders/settings", s.UpdateReminderSettings)
	authed.GET("/reminders/templates", s.ListReminderTemplates)
	authed.POST("/reminders/templates", s.CreateReminderTemplate)
	authed.DELETE("/reminders/templates/:id", s.DeleteReminderTemplate)

	// -------- Storefront --------
	authed.GET("/storefront/connection", s.GetStorefrontConnection)
}
