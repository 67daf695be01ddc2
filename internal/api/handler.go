package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"bip-service/config"
	"bip-service/internal/models"
	"bip-service/internal/service"
	"bip-service/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// BipOperations is the bip workflow served over HTTP.
type BipOperations interface {
	IngestWebhook(ctx context.Context, req *service.WebhookRequest) (*service.WebhookResult, error)
	CancelBip(ctx context.Context, bipID int64, req *service.CancelRequest) (*service.CascadeResult, error)
	ReactivateBip(ctx context.Context, bipID int64) (*service.CascadeResult, error)
	GetBip(ctx context.Context, bipID int64) (*models.BipListItem, error)
	ListBips(ctx context.Context, q *service.BipListQuery) (*service.BipListResult, error)
	ExportBips(ctx context.Context, q *service.BipListQuery, w io.Writer) (int, error)
	AttachMedia(ctx context.Context, bipID int64, kind string, r io.Reader, size int64) (*models.Bip, error)
	RemoveMedia(ctx context.Context, bipID int64, kind string) (*models.Bip, error)
}

// SellOperations lists and records sales.
type SellOperations interface {
	ListSells(ctx context.Context, q *service.SellListQuery) (*service.SellListResult, error)
	IngestSale(ctx context.Context, req *service.SaleRequest, source string) (*service.IngestSaleResult, error)
}

// SuspectOperations manages suspect identifications.
type SuspectOperations interface {
	NextNumber(ctx context.Context) (int, error)
	Identify(ctx context.Context, req *service.CreateSuspectRequest, createdBy *int64) ([]models.SuspectIdentification, error)
	List(ctx context.Context, q *service.SuspectListQuery) (*service.SuspectListResult, error)
}

// ReportOperations builds dashboard reports.
type ReportOperations interface {
	DailyResults(ctx context.Context, date string) (*models.DailyResults, error)
	Rankings(ctx context.Context, dateFrom, dateTo string, limit int) (*models.Rankings, error)
}

// ReadinessChecker reports the last probe result per dependency.
type ReadinessChecker interface {
	Status() map[string]bool
}

// Services groups the handler's collaborators.
type Services struct {
	Bips      BipOperations
	Sells     SellOperations
	Suspects  SuspectOperations
	Reports   ReportOperations
	Readiness ReadinessChecker
}

// Handler contains HTTP handlers
type Handler struct {
	bips        BipOperations
	sells       SellOperations
	suspects    SuspectOperations
	reports     ReportOperations
	readiness   ReadinessChecker
	apiToken    string
	jwtSecret   []byte
	corsOrigins []string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, auth config.AuthConfig, corsOrigins []string) *Handler {
	registerValidators()

	return &Handler{
		bips:        svc.Bips,
		sells:       svc.Sells,
		suspects:    svc.Suspects,
		reports:     svc.Reports,
		readiness:   svc.Readiness,
		apiToken:    auth.APIToken,
		jwtSecret:   []byte(auth.JWTSecret),
		corsOrigins: corsOrigins,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(h.corsMiddleware())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/bipagens/webhook", h.requireWebhookAuth(), h.ingestWebhook)

	authed := api.Group("", h.requireJWT())
	{
		authed.GET("/bips", h.listBips)
		authed.GET("/bips/export", h.exportBips)
		authed.GET("/bips/:id", h.getBip)
		authed.PUT("/bips/:id/cancel", h.cancelBip)
		authed.PUT("/bips/:id/reactivate", h.reactivateBip)
		authed.POST("/bips/:id/video", h.attachMedia(service.MediaVideo))
		authed.DELETE("/bips/:id/video", h.removeMedia(service.MediaVideo))
		authed.POST("/bips/:id/image", h.attachMedia(service.MediaImage))
		authed.DELETE("/bips/:id/image", h.removeMedia(service.MediaImage))

		authed.GET("/sells", h.listSells)
		authed.POST("/sells", h.createSell)

		authed.GET("/suspect-identifications/next-number", h.nextSuspectNumber)
		authed.POST("/suspect-identifications", h.createSuspectIdentification)
		authed.GET("/suspect-identifications", h.listSuspectIdentifications)

		authed.GET("/reports/daily-results", h.dailyResults)
		authed.GET("/reports/rankings", h.rankings)
	}
}

func (h *Handler) corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(h.corsOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = h.corsOrigins
		cfg.AllowCredentials = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Authorization", "Idempotency-Key")
	cfg.AddExposeHeaders("Content-Disposition", "X-Total-Rows")
	return cors.New(cfg)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once every probed dependency answered.
func (h *Handler) readinessCheck(c *gin.Context) {
	if h.readiness == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
		return
	}

	deps := h.readiness.Status()
	ready := len(deps) > 0
	for _, up := range deps {
		ready = ready && up
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":       status,
		"dependencies": deps,
		"time":         time.Now().Unix(),
	})
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorBody{Error: "ID inválido", Code: "invalid_id"})
		return 0, false
	}
	return id, true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one zap line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		util.LoggerFromContext(c.Request.Context()).Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
