package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/config"
	"github.com/streamgate/streamgate/internal/host"
	"github.com/streamgate/streamgate/internal/http/middleware"
	"github.com/streamgate/streamgate/internal/repository"
)

type Server struct{ e *echo.Echo }

// NewServer wires the admin API: health, metrics, and the read-only views
// over partition ownership, checkpoints, and the invocation log.
func NewServer(cfg config.Config, h *host.Host, cps checkpoint.Store, chDB *sqlx.DB, rds *redis.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(cfg.Admin.Tokens)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.Admin.RateLimit.RPS,
		Burst:          cfg.Admin.RateLimit.Burst,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)
	v1.GET("/partitions", partitionsHandler(h))
	v1.GET("/checkpoints", checkpointsHandler(h, cps))

	if chDB != nil {
		invocationsRepo := repository.NewInvocationsRepository(chDB)
		v1.GET("/invocations", listInvocationsHandler(invocationsRepo))
	}

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
