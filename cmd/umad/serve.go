package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/uma-universal-money-address/uma-settlement-go/internal/config"
	"github.com/uma-universal-money-address/uma-settlement-go/internal/logger"
	"github.com/uma-universal-money-address/uma-settlement-go/internal/metrics"
	"github.com/uma-universal-money-address/uma-settlement-go/internal/server"
	"github.com/uma-universal-money-address/uma-settlement-go/uma"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/lightning"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/multiplier"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/rates"
	"github.com/uma-universal-money-address/uma-settlement-go/uma/store"
)

var serveCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Serve the LNURL-pay endpoints",
	Action: serve,
}

func serve(cliCtx *cli.Context) error {
	cfg, err := config.Load(cliCtx.String("config"))
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := buildServices(ctx, cfg, log.Logger)
	if err != nil {
		return err
	}
	defer svc.close()

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Responder:    svc.responder,
		Prices:       svc.oracle,
		Checks:       svc.checks,
		Logger:       log.Logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.WithComponent("umad").Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// services is everything the HTTP server needs, built from one config.
type services struct {
	oracle    *rates.Oracle
	responder *uma.Responder
	checks    map[string]server.Pinger
	closers   []func()
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func buildServices(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*services, error) {
	svc := &services{checks: make(map[string]server.Pinger)}
	clk := clock.NewDefaultClock()

	publisher, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	registry, paymentRequests, err := buildStores(ctx, cfg, clk, svc)
	if err != nil {
		svc.close()
		return nil, err
	}

	oracle, err := buildOracle(cfg, clk, log, publisher)
	if err != nil {
		svc.close()
		return nil, err
	}
	svc.oracle = oracle

	responderCfg := uma.ResponderConfig{
		Registry:          registry,
		PaymentRequests:   paymentRequests,
		Calculator:        multiplier.NewCalculator(oracle),
		Clock:             clk,
		Logger:            log,
		Metrics:           publisher,
		PaymentRequestTTL: cfg.PaymentRequestTTL,
		InvoiceExpiry:     cfg.Lightning.InvoiceExpiry,
	}
	if cfg.Lightning.Enabled() {
		invoices, err := lightning.NewLndInvoiceCreator(lightning.LndConfig{
			LndAddr:     cfg.Lightning.LndAddr,
			Network:     cfg.Lightning.Network,
			MacaroonDir: cfg.Lightning.MacaroonDir,
			TLSPath:     cfg.Lightning.TLSPath,
		}, log)
		if err != nil {
			svc.close()
			return nil, fmt.Errorf("failed to connect to lnd: %w", err)
		}
		svc.closers = append(svc.closers, invoices.Close)
		responderCfg.InvoiceCreator = invoices
	} else {
		log.Warn("no lnd configured, lightning pay requests will fail")
	}
	svc.responder = uma.NewResponder(responderCfg)
	return svc, nil
}

func buildPublisher(ctx context.Context, cfg *config.Config, log *logrus.Logger) (metrics.Publisher, error) {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}, nil
	}
	publisher, err := metrics.NewCloudWatchPublisher(ctx, cfg.Metrics.Region, cfg.Metrics.Namespace, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up cloudwatch metrics: %w", err)
	}
	return publisher, nil
}

// buildStores opens the registry and payment request store and seeds the registry from the domains section.
// Postgres is opened once when both use it.
func buildStores(
	ctx context.Context,
	cfg *config.Config,
	clk clock.Clock,
	svc *services,
) (store.Registry, store.PaymentRequestStore, error) {
	var postgres *store.PostgresStore
	openPostgres := func() (*store.PostgresStore, error) {
		if postgres != nil {
			return postgres, nil
		}
		pg, err := store.NewPostgresStore(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		svc.closers = append(svc.closers, func() { _ = pg.Close() })
		if err := pg.InitSchema(ctx); err != nil {
			return nil, err
		}
		svc.checks["postgres"] = pg
		postgres = pg
		return pg, nil
	}

	var registry interface {
		store.Registry
		store.Seeder
	}
	switch cfg.Storage.Registry {
	case config.StoragePostgres:
		pg, err := openPostgres()
		if err != nil {
			return nil, nil, err
		}
		registry = pg
	default:
		registry = store.NewMemoryRegistry()
	}
	seed := cfg.BuildSeed()
	for _, domain := range seed.Domains {
		if err := registry.PutDomain(ctx, domain); err != nil {
			return nil, nil, fmt.Errorf("failed to seed domain %s: %w", domain.Name, err)
		}
	}
	for _, user := range seed.Users {
		if err := registry.PutUser(ctx, user); err != nil {
			return nil, nil, fmt.Errorf("failed to seed user %s: %w", user.Username, err)
		}
	}

	var paymentRequests store.PaymentRequestStore
	switch cfg.Storage.PaymentRequests {
	case config.StoragePostgres:
		pg, err := openPostgres()
		if err != nil {
			return nil, nil, err
		}
		paymentRequests = pg
	case config.StorageRedis:
		redisStore, err := store.NewRedisPaymentRequestStore(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		svc.closers = append(svc.closers, func() { _ = redisStore.Close() })
		svc.checks["redis"] = redisStore
		paymentRequests = redisStore
	default:
		memory := store.NewMemoryPaymentRequestStore(clk)
		memory.StartSweeper(ctx, cfg.Storage.SweepInterval)
		paymentRequests = memory
	}
	return registry, paymentRequests, nil
}

func buildOracle(cfg *config.Config, clk clock.Clock, log logrus.FieldLogger, publisher metrics.Publisher) (*rates.Oracle, error) {
	var source rates.TickerSource
	switch cfg.Oracle.Source {
	case config.OracleSourceFixed:
		overrides, err := cfg.FixedPrices()
		if err != nil {
			return nil, err
		}
		source = rates.NewFixedSource(overrides)
		log.WithField("component", "umad").Info("serving fixed prices")
	default:
		source = rates.NewBinanceSource(rates.BinanceSourceConfig{
			BaseURL:    cfg.Oracle.BinanceBaseURL,
			QuoteAsset: cfg.Oracle.QuoteAsset,
			Logger:     log,
		})
	}
	return rates.NewOracle(rates.OracleConfig{
		Source:       source,
		Clock:        clk,
		TTL:          cfg.Oracle.TTL,
		FetchTimeout: cfg.Oracle.FetchTimeout,
		RateLimit:    rate.Limit(cfg.Oracle.RateLimit),
		Burst:        cfg.Oracle.Burst,
		Logger:       log,
		Metrics:      publisher,
	}), nil
}
