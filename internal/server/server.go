// Package server exposes the Responder over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/rates"
)

// PriceLookup serves the latest quote for a symbol.
type PriceLookup interface {
	GetPrice(ctx context.Context, symbol string) (*rates.PriceQuote, error)
}

// Pinger is a dependency the health check reports on.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Responder    *uma.Responder
	// Prices backs the price debug endpoint. The endpoint is not registered without it.
	Prices PriceLookup
	// Checks are pinged by /healthz, keyed by the name reported in the response.
	Checks map[string]Pinger
	Logger logrus.FieldLogger
}

type Server struct {
	httpServer *http.Server
	log        logrus.FieldLogger
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "http_server")
	h := &handlers{
		responder: cfg.Responder,
		prices:    cfg.Prices,
		checks:    cfg.Checks,
		log:       log,
	}
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      h.routes(),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Handler returns the routed handler without a listener, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start blocks serving requests until Shutdown is called.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.WithError(err).Error("HTTP server error")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("HTTP server shutdown error")
		return err
	}
	return nil
}
