// Package main provides waiverctl, the operator CLI for the waiver engine.
// It talks to PostgreSQL and ClickHouse directly and needs no running worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"waiver-wire/internal/config"
	"waiver-wire/internal/reporting"
	chstore "waiver-wire/internal/storage/clickhouse"
	pgstore "waiver-wire/internal/storage/postgres"
	"waiver-wire/internal/waiver"
)

var (
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&cfg.ClickhouseDSN, "clickhouse-dsn", cfg.ClickhouseDSN, "ClickHouse connection string")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")

	rootCmd.AddCommand(migrateCmd, seedCmd, submitCmd, cancelCmd, resolveCmd, sweepCmd, rerankCmd, claimsCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "waiverctl",
	Short: "Operate the waiver-wire claim engine",
	Long: `waiverctl applies migrations, seeds leagues and drives the waiver
engine by hand: submit and cancel claims, force a resolution run, sweep
expired claims and re-rank priority.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = cfg.Logger()
		return nil
	},
}

// engine is the waiver service wired to the database stores.
type engine struct {
	*waiver.Service
	pool   *pgstore.Pool
	conn   *chstore.Conn
	league *pgstore.LeagueStore
}

func (e *engine) Close() {
	e.conn.Close()
	e.pool.Close()
}

// openEngine connects to both databases. Run results are recorded in the
// ClickHouse history, as the worker does.
func openEngine(ctx context.Context) (*engine, error) {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}

	reporter := reporting.NewReporter(reporting.Options{
		MaxElapsed: cfg.ReportMaxElapsed,
		Logger:     logger,
	})
	reporter.AddSink("history", chstore.NewEventStore(conn))

	leagues := pgstore.NewLeagueStore(pool)
	teams := pgstore.NewTeamStore(pool)
	svc := waiver.New(waiver.Options{
		Leagues:     leagues,
		Teams:       teams,
		Roster:      teams,
		Claims:      pgstore.NewClaimStore(pool),
		Reporter:    reporter,
		Logger:      logger,
		InstanceID:  "waiverctl",
		LeaseTTL:    cfg.LeaseTTL,
		Workers:     cfg.RunWorkers,
		ExpiryGrace: cfg.ExpiryGrace,
	})
	return &engine{Service: svc, pool: pool, conn: conn, league: leagues}, nil
}
