package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	appAudit "github.com/petition-hub/petition-hub/internal/application/audit"
	"github.com/petition-hub/petition-hub/internal/application/counter"
	appInvalidation "github.com/petition-hub/petition-hub/internal/application/invalidation"
	appPetition "github.com/petition-hub/petition-hub/internal/application/petition"
	appSignature "github.com/petition-hub/petition-hub/internal/application/signature"
	"github.com/petition-hub/petition-hub/internal/config"
	"github.com/petition-hub/petition-hub/internal/domain/notification"
	"github.com/petition-hub/petition-hub/internal/domain/petition"
	"github.com/petition-hub/petition-hub/internal/infrastructure/postgres"
)

var Version = "dev"

var (
	configFile string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "petitionctl",
		Short:         "Operate the petition engine from the command line",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(journalsCmd())
	rootCmd.AddCommand(invalidationCmd())
	rootCmd.AddCommand(petitionsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine is the set of services a command needs, bound to one database pool.
type engine struct {
	cfg          *config.Config
	pool         *pgxpool.Pool
	audit        *appAudit.Service
	counter      *counter.Engine
	petitions    *appPetition.Service
	invalidation *appInvalidation.Service
}

func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	logger := zerolog.Nop()
	if verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	tx := postgres.NewTransactor(pool, nil, logger)
	petitionRepo := postgres.NewPetitionRepository(pool)
	auditSvc := appAudit.NewService(postgres.NewAuditRepository(pool), logger, nil)
	counterEngine := counter.NewEngine(tx, petitionRepo, postgres.NewJournalRepository(pool, nil), auditSvc,
		petition.Thresholds{Moderation: cfg.Site.ModerationThreshold}, nil, logger)
	signatureSvc := appSignature.NewService(tx, postgres.NewSignatureRepository(pool), petitionRepo, counterEngine,
		auditSvc, appSignature.Options{AnonymizeKey: []byte(cfg.AnonymizeSecret)}, nil, logger)

	return &engine{
		cfg:     cfg,
		pool:    pool,
		audit:   auditSvc,
		counter: counterEngine,
		petitions: appPetition.NewService(tx, petitionRepo, nil, auditSvc, appPetition.Settings{
			ReferralThreshold: cfg.Site.ReferralThreshold,
			DebateThreshold:   cfg.Site.DebateThreshold,
			Duration:          cfg.Site.PetitionDuration,
			ReferralDelay:     cfg.Site.ReferralDelay,
		}, logger),
		invalidation: appInvalidation.NewService(tx, postgres.NewInvalidationRepository(pool), signatureSvc,
			auditSvc, logDispatcher{logger: logger}, cfg.Site.InvalidationBatchSize, nil, logger),
	}, nil
}

func (e *engine) Close() {
	e.audit.Wait()
	e.pool.Close()
}

// logDispatcher reports progress events to the log; the CLI has no event stream.
type logDispatcher struct {
	logger zerolog.Logger
}

func (d logDispatcher) Dispatch(_ context.Context, event notification.Event) error {
	d.logger.Info().
		Str("event", string(event.Type)).
		Int64("invalidation_id", event.InvalidationID).
		Str("detail", event.Detail).
		Msg("event")
	return nil
}

// withEngine opens the engine for the duration of run.
func withEngine(run func(ctx context.Context, e *engine, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return run(ctx, e, cmd, args)
	}
}
