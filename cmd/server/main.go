package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/petition-hub/petition-hub/internal/api/http"
	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/application/counter"
	appInvalidation "github.com/petition-hub/petition-hub/internal/application/invalidation"
	"github.com/petition-hub/petition-hub/internal/application/jobs"
	"github.com/petition-hub/petition-hub/internal/application/notify"
	appPetition "github.com/petition-hub/petition-hub/internal/application/petition"
	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
	"github.com/petition-hub/petition-hub/internal/config"
	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/domain/signature"
	"github.com/petition-hub/petition-hub/internal/infrastructure/geo"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
	"github.com/petition-hub/petition-hub/internal/infrastructure/postgres"
	"github.com/petition-hub/petition-hub/internal/infrastructure/ratelimit"
	"github.com/petition-hub/petition-hub/internal/infrastructure/sse"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("config error")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("db error")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// repositories
	tx := postgres.NewTransactor(pool, m, logger)
	petitionRepo := postgres.NewPetitionRepository(pool)
	signatureRepo := postgres.NewSignatureRepository(pool)
	journalRepo := postgres.NewJournalRepository(pool, m)
	invalidationRepo := postgres.NewInvalidationRepository(pool)
	auditRepo := postgres.NewAuditRepository(pool)
	queue := postgres.NewJobQueue(pool)

	// infrastructure
	sseHub := sse.NewHub()
	defer sseHub.Stop()
	dispatcher := sse.NewDispatcher(sseHub, logger)

	var resolver signature.ConstituencyResolver
	if cfg.ConstituenciesFile != "" {
		static, err := geo.Load(cfg.ConstituenciesFile)
		if err != nil {
			logger.Fatal().Err(err).Msg("constituency lookup error")
		}
		logger.Info().Int("postcodes", static.Len()).Msg("constituency lookup loaded")
		resolver = static
	}

	gate, err := ratelimit.NewGate(rateCounter(ctx, cfg.RedisAddr, logger), ratelimit.Config(cfg.RateLimit), m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rate limit config error")
	}

	// services
	auditSvc := appAudit.NewService(auditRepo, logger, loadHexKey(cfg.AuditSigningKey, logger))
	defer auditSvc.Wait()

	counterEngine := counter.NewEngine(tx, petitionRepo, journalRepo, auditSvc,
		petition.Thresholds{Moderation: cfg.Site.ModerationThreshold}, m, logger)
	signatureSvc := appSignature.NewService(tx, signatureRepo, petitionRepo, counterEngine, auditSvc, appSignature.Options{
		Gate:           gate,
		Resolver:       resolver,
		AnonymizeKey:   []byte(cfg.AnonymizeSecret),
		AnonymizeBatch: cfg.Site.AnonymizeBatchSize,
	}, m, logger)
	petitionSvc := appPetition.NewService(tx, petitionRepo, resolver, auditSvc, appPetition.Settings{
		ReferralThreshold: cfg.Site.ReferralThreshold,
		DebateThreshold:   cfg.Site.DebateThreshold,
		Duration:          cfg.Site.PetitionDuration,
		ReferralDelay:     cfg.Site.ReferralDelay,
	}, logger)
	invalidationSvc := appInvalidation.NewService(tx, invalidationRepo, signatureSvc, auditSvc, dispatcher,
		cfg.Site.InvalidationBatchSize, m, logger)

	worker := jobs.NewWorker(queue, jobs.Options{Lease: cfg.Jobs.Lease, Backoff: cfg.Jobs.Backoff}, m, logger)
	worker.Register(job.NameSignatureValidated, counterEngine.HandleSignatureValidated)
	worker.Register(job.NameInvalidationRun, invalidationSvc.Handle)
	worker.Register(job.NamePetitionNotify, notify.NewHandler(dispatcher, logger).Handle)

	// API server
	operators := make([]httpapi.Operator, 0, len(cfg.Operators))
	for _, op := range cfg.Operators {
		operators = append(operators, httpapi.Operator{Name: op.Name, TokenHash: op.TokenHash})
	}
	apiServer := httpapi.NewServer(petitionSvc, signatureSvc, counterEngine, invalidationSvc, auditSvc, sseHub, operators, logger)

	// WriteTimeout stays zero for the event stream; other routes carry a handler timeout.
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx, cfg.Jobs.PollInterval, cfg.Jobs.BatchSize)
	})
	g.Go(func() error {
		every(gctx, cfg.Sweeps.CloseInterval, func(ctx context.Context) {
			if n, err := petitionSvc.CloseDue(ctx, 100); err != nil {
				logger.Error().Err(err).Msg("close sweep failed")
			} else if n > 0 {
				logger.Info().Int("closed", n).Msg("petitions closed")
			}
		})
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.Sweeps.ReferralInterval, func(ctx context.Context) {
			if n, err := petitionSvc.ProcessReferrals(ctx, 100); err != nil {
				logger.Error().Err(err).Msg("referral sweep failed")
			} else if n > 0 {
				logger.Info().Int("processed", n).Msg("referrals processed")
			}
		})
		return nil
	})
	g.Go(func() error {
		every(gctx, cfg.Sweeps.ReconcileInterval, func(ctx context.Context) {
			if n, err := counterEngine.Reconcile(ctx, cfg.Sweeps.ReconcileLimit); err != nil {
				logger.Error().Err(err).Msg("reconcile failed")
			} else if n > 0 {
				logger.Info().Int("petitions", n).Msg("signature counts reconciled")
			}
		})
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sseHub.Stop()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}

// every runs fn on each tick until ctx is done.
func every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// rateCounter uses Redis when it is configured and reachable, and process memory
// otherwise.
func rateCounter(ctx context.Context, addr string, logger zerolog.Logger) ratelimit.Counter {
	if addr == "" {
		return ratelimit.NewMemoryCounter()
	}
	client, err := ratelimit.Connect(ctx, addr)
	if err != nil {
		logger.Warn().Err(err).Str("addr", addr).Msg("redis unavailable, rate limits are per process")
		return ratelimit.NewMemoryCounter()
	}
	return ratelimit.NewRedisCounter(client)
}

func loadHexKey(hexStr string, logger zerolog.Logger) []byte {
	if hexStr == "" {
		return nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		logger.Warn().Err(err).Msg("audit signing key is not hex, audit entries are unsigned")
		return nil
	}
	return b
}
