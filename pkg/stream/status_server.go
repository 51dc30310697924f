// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httplib "github.com/xataio/mystream/internal/http"
	loglib "github.com/xataio/mystream/pkg/log"
)

// StatusServer exposes the state of the source pipelines over HTTP.
type StatusServer struct {
	server  httplib.Server
	logger  loglib.Logger
	status  statusProvider
	address string
}

type statusProvider interface {
	Status() []SourceStatus
}

type StatusServerOption func(*StatusServer)

type healthResponse struct {
	Healthy       bool     `json:"healthy"`
	FailedSources []string `json:"failed_sources,omitempty"`
}

func NewStatusServer(cfg *StatusServerConfig, status statusProvider, metrics *Metrics, opts ...StatusServerOption) *StatusServer {
	s := &StatusServer{
		address: cfg.address(),
		status:  status,
		logger:  loglib.NewNoopLogger(),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.readTimeout()
	e.Server.WriteTimeout = cfg.writeTimeout()

	e.Use(middleware.Recover())

	e.GET("/status", s.getStatus)
	e.GET("/health", s.getHealth)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	}

	s.server = e

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func WithStatusServerLogger(l loglib.Logger) StatusServerOption {
	return func(s *StatusServer) {
		s.logger = loglib.NewLogger(l).WithFields(loglib.Fields{
			loglib.ModuleField: "status_server",
		})
	}
}

// Start will start the status server. This call is blocking.
func (s *StatusServer) Start() error {
	s.logger.Info(fmt.Sprintf("status server listening on: %s...", s.address))
	if err := s.server.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *StatusServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *StatusServer) getStatus(c echo.Context) error {
	s.logger.Trace("request received on /status endpoint")
	return c.JSON(http.StatusOK, s.status.Status())
}

// getHealth reports unhealthy as soon as one source stopped on failure.
func (s *StatusServer) getHealth(c echo.Context) error {
	resp := healthResponse{Healthy: true}
	for _, status := range s.status.Status() {
		if status.Failed() {
			resp.Healthy = false
			resp.FailedSources = append(resp.FailedSources, status.SourceID)
		}
	}
	if !resp.Healthy {
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}
