// Package httpapi exposes the poikeeper services over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/poikeeper/internal/logging"
	"github.com/dmitrijs2005/poikeeper/internal/server/config"
	"github.com/dmitrijs2005/poikeeper/internal/server/services"
)

const (
	shutdownTimeout = 10 * time.Second
	maxJSONBody     = 1 << 20
)

// Services bundles the business services the API delegates to.
type Services struct {
	Users    *services.UserService
	Records  *services.RecordService
	POIs     *services.POIService
	Offenses *services.OffenseService
	Pictures *services.PictureService
}

type Server struct {
	address         string
	logger          logging.Logger
	svc             Services
	metrics         *Metrics
	jwtSecret       []byte
	allowedOrigins  []string
	maxPictureBytes int64
}

func NewHTTPServer(cfg *config.Config, l logging.Logger, svc Services, m *Metrics) *Server {
	return &Server{
		address:         cfg.EndpointAddrHTTP,
		logger:          l.With("module", "http_server"),
		svc:             svc,
		metrics:         m,
		jwtSecret:       []byte(cfg.SecretKey),
		allowedOrigins:  cfg.CORSAllowedOrigins,
		maxPictureBytes: cfg.MaxPictureBytes,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.serve(ctx, listen)
}

func (s *Server) serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
