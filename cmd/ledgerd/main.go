// Command ledgerd is the process entrypoint: it wires pkg/config,
// pkg/sqlite, pkg/handlers, and pkg/maintenance together and runs them
// under pkg/runner's Runner-composition shape. No HTTP surface fronts this
// process; ledgerd exposes its command surface only through
// pkg/handlers.Dispatcher, used here by the "exec" subcommand for
// operational/manual invocation.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/atplabs/ledger/pkg/audit"
	"github.com/atplabs/ledger/pkg/config"
	"github.com/atplabs/ledger/pkg/handlers"
	"github.com/atplabs/ledger/pkg/idempotency"
	"github.com/atplabs/ledger/pkg/maintenance"
	"github.com/atplabs/ledger/pkg/middleware"
	"github.com/atplabs/ledger/pkg/projection"
	"github.com/atplabs/ledger/pkg/runner"
	"github.com/atplabs/ledger/pkg/sqlite"
	"github.com/atplabs/ledger/pkg/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerd",
		Short: "ATP ledger event-sourcing daemon",
	}
	root.AddCommand(newServeCmd(), newSeedCmd(), newExecCmd())
	return root
}

// deps wires every collaborator once, shared by serve/seed/exec.
type deps struct {
	cfg     *config.Config
	db      *sql.DB
	logger  *slog.Logger
	metrics *telemetry.PrometheusCollectors
	handlers.Deps
}

func wire(ctx context.Context) (*deps, error) {
	logger := slog.Default()

	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := sqlite.Open(cfg.DatabaseURL, cfg.DatabaseMaxConnections)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := sqlite.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	metrics, err := telemetry.NewPrometheusCollectors(prometheus.DefaultRegisterer)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register prometheus collectors: %w", err)
	}

	hdeps := handlers.Deps{
		Events:      sqlite.NewEventStore(db),
		Directory:   sqlite.NewDirectory(db),
		Projection:  projection.New(sqlite.NewProjectionStore(db)),
		Audit:       audit.New(sqlite.NewAuditStore(db)),
		Idempotency: idempotency.New(sqlite.NewIdempotencyStore(db)),
		UnitOfWork:  sqlite.NewStore(db),
		Metrics:     metrics,
	}

	return &deps{cfg: cfg, db: db, logger: logger, metrics: metrics, Deps: hdeps}, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "seed the SYSTEM_MINT/SYSTEM_BURN accounts if they don't already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx)
			if err != nil {
				return err
			}
			defer d.db.Close()
			return seedSystemAccounts(ctx, d.Deps, d.logger)
		},
	}
}

func seedSystemAccounts(ctx context.Context, deps handlers.Deps, logger *slog.Logger) error {
	if err := handlers.SeedSystemAccount(ctx, deps, handlers.SystemMintUserID, "system_mint", handlers.AccountTypeSystemMint); err != nil {
		return fmt.Errorf("seed SYSTEM_MINT: %w", err)
	}
	logger.Info("seeded system account", "account_type", handlers.AccountTypeSystemMint)

	if err := handlers.SeedSystemAccount(ctx, deps, handlers.SystemBurnUserID, "system_burn", handlers.AccountTypeSystemBurn); err != nil {
		return fmt.Errorf("seed SYSTEM_BURN: %w", err)
	}
	logger.Info("seeded system account", "account_type", handlers.AccountTypeSystemBurn)
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run maintenance jobs until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx)
			if err != nil {
				return err
			}
			defer d.db.Close()

			if err := seedSystemAccounts(ctx, d.Deps, d.logger); err != nil {
				return err
			}

			rlogger := runner.NewSlogLogger(d.logger)
			bucketStore := sqlite.NewRateLimitBucketStore(d.db)

			// handlers.IdempotencyRepo only exposes Complete, the one method
			// command handlers need; recovery needs RecoverStale and
			// CleanupExpired too, so reach for the concrete type wire()
			// actually constructed rather than widen the handler-facing
			// interface for a maintenance-only concern.
			idemRepo := d.Idempotency.(*idempotency.Repository)

			services := []runner.Service{
				maintenance.NewRateLimitGC(bucketStore, rlogger, d.metrics),
				maintenance.NewIdempotencyRecovery(idemRepo, rlogger, d.metrics),
				maintenance.NewPartitionRollover(func(ctx context.Context, suffix string) error {
					return sqlite.CreateMonthlyPartitions(ctx, d.db, suffix)
				}, rlogger, d.metrics),
			}

			r := runner.New(services,
				runner.WithLogger(rlogger),
				runner.WithShutdownTimeout(30*time.Second),
				runner.WithStartupTimeout(time.Minute),
			)

			return r.Run(ctx)
		},
	}
}

func newExecCmd() *cobra.Command {
	var idempotencyKey string

	cmd := &cobra.Command{
		Use:   "exec <command-type> <json-payload>",
		Short: "dispatch a single command (create_user, transfer, mint, burn, update_user, deactivate_user)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			d, err := wire(ctx)
			if err != nil {
				return err
			}
			defer d.db.Close()

			dispatcher := handlers.NewDispatcher(d.Deps)
			env := handlers.Envelope{CommandType: args[0], CommandID: uuid.NewString()}
			if idempotencyKey != "" {
				env.IdempotencyKey = &idempotencyKey
			}
			env.OpContext = env.OpContext.EnsureCorrelationID()

			result, err := dispatcher.Dispatch(ctx, env, []byte(args[1]),
				middleware.RecoveryMiddleware(d.logger),
				middleware.LoggingMiddleware(d.logger),
			)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "idempotency key (UUID) for this request")
	return cmd
}
