package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/rentfold/rentfold/internal/billing/domain"
	"github.com/rentfold/rentfold/internal/config"
	rewardsdomain "github.com/rentfold/rentfold/internal/rewards/domain"
	"github.com/rentfold/rentfold/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	invoiceSvc  billingdomain.InvoiceService
	paymentSvc  billingdomain.PaymentService
	documentSvc billingdomain.DocumentService
	rewardsSvc  rewardsdomain.Service
	webhookSvc  webhook.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	InvoiceSvc  billingdomain.InvoiceService
	PaymentSvc  billingdomain.PaymentService
	DocumentSvc billingdomain.DocumentService
	RewardsSvc  rewardsdomain.Service
	WebhookSvc  webhook.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		documentSvc: p.DocumentSvc,
		rewardsSvc:  p.RewardsSvc,
		webhookSvc:  p.WebhookSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	r := s.engine

	r.POST("/webhooks/:provider", s.handleWebhook)

	v1 := r.Group("/v1")
	{
		v1.POST("/invoices", s.handleCreateInvoice)
		v1.GET("/invoices", s.handleListInvoices)
		v1.GET("/invoices/:id", s.handleGetInvoice)
		v1.GET("/invoices/:id/pdf", s.handleInvoicePDF)
		v1.POST("/invoices/:id/line-items", s.handleAddLineItem)
		v1.DELETE("/invoices/:id/line-items/:itemID", s.handleRemoveLineItem)

		v1.POST("/payments/online", s.handleInitiateOnlinePayment)
		v1.POST("/payments/manual", s.handleRecordManualPayment)
		v1.POST("/payments/:id/confirm", s.handleConfirmPayment)
		v1.GET("/payments/:id/receipt", s.handlePaymentReceipt)

		v1.POST("/rewards/grant", s.handleGrantReward)
		v1.POST("/rewards/apply", s.handleApplyRewards)
		v1.POST("/rewards/adjust", s.handleAdjustRewards)
	}
}

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(param))
	if err != nil {
		AbortWithError(c, newValidationError(param, "invalid_id", "must be a snowflake id"))
		return 0, false
	}
	return id, true
}
