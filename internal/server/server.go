package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkbrief/linkbrief/internal/queue"
	"github.com/linkbrief/linkbrief/internal/quota"
)

// Server exposes the operational endpoints: liveness, a usage snapshot, and
// Prometheus metrics.
type Server struct {
	echo   *echo.Echo
	addr   string
	queue  *queue.Queue
	quota  *quota.Store
	logger *slog.Logger
}

func New(port string, q *queue.Queue, store *quota.Store, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		addr:   ":" + port,
		queue:  q,
		quota:  store,
		logger: logger,
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/stats", s.handleStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "addr", s.addr)
	if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type modelStats struct {
	UsedLastMinute    int `json:"used_last_minute"`
	RequestsPerMinute int `json:"requests_per_minute,omitempty"`
}

type statsResponse struct {
	QueueDepth int                              `json:"queue_depth"`
	Providers  map[string]map[string]modelStats `json:"providers"`
}

func (s *Server) handleStats(c echo.Context) error {
	resp := statsResponse{
		QueueDepth: s.queue.Depth(),
		Providers:  make(map[string]map[string]modelStats),
	}
	for _, provider := range []string{"gemini", "groq", "openrouter"} {
		names := s.quota.Models(provider)
		if len(names) == 0 {
			continue
		}
		resp.Providers[provider] = make(map[string]modelStats, len(names))
		for _, model := range names {
			limits, _ := s.quota.Limits(provider, model)
			resp.Providers[provider][model] = modelStats{
				UsedLastMinute:    s.quota.UsageLastMinute(provider, model),
				RequestsPerMinute: limits.RequestsPerMinute,
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}
