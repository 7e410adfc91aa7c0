package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lightkeepers/fieldsync/internal/config"
	"github.com/lightkeepers/fieldsync/internal/credential"
	"github.com/lightkeepers/fieldsync/internal/http/middleware"
	"github.com/lightkeepers/fieldsync/internal/metrics"
	"github.com/lightkeepers/fieldsync/internal/outbox"
	"github.com/lightkeepers/fieldsync/internal/repository"
	"github.com/lightkeepers/fieldsync/internal/syncqueue"
)

type Server struct{ e *echo.Echo }

// Deps collects the already-wired core components the API exposes.
type Deps struct {
	OutboxRepo repository.OutboxRepository
	Publisher  *outbox.Publisher
	Queue      *syncqueue.Queue
	Creds      *credential.Service
	Redis      *redis.Client // optional, enables rate limiting
}

func NewServer(cfg config.Config, deps Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// token issue is the only unauthenticated endpoint besides health; a
	// device cannot hold a credential before its first one is issued.
	e.POST("/v1/auth/token", issueTokenHandler(deps.Creds))

	// middlewares
	authMW := middleware.BearerMiddleware(deps.Creds)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          deps.Redis,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:user:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.POST("/auth/renew", renewTokenHandler(deps.Creds))
	v1.POST("/auth/revoke", revokeTokenHandler(deps.Creds))
	v1.POST("/sync/enqueue", enqueueHandler(deps.Queue))
	v1.GET("/sync/status", syncStatusHandler(deps.Queue))
	v1.GET("/outbox/status", outboxStatusHandler(deps.Publisher))
	v1.GET("/outbox/failed", listFailedHandler(deps.OutboxRepo))
	v1.POST("/outbox/retry/:id", retryFailedHandler(deps.OutboxRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
