package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"waiver-wire/internal/domain"
	"waiver-wire/internal/reporting"
	"waiver-wire/internal/seed"
	"waiver-wire/internal/storage/migrations"
	pgstore "waiver-wire/internal/storage/postgres"
	"waiver-wire/internal/waiver"
)

// Submit flags
var (
	submitTeam string
	submitKind string
	submitAdd  string
	submitDrop string
	submitBid  int64
)

// Cancel flags
var (
	cancelTeam         string
	cancelCommissioner bool
)

// Claims flags
var (
	claimsSeason int
	claimsWeek   int
	claimsFormat string
)

var resolveFormat string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply PostgreSQL and ClickHouse migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
			return err
		}
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logger)
		if err != nil {
			return err
		}
		return conn.Close()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load leagues, teams and rosters from a YAML fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := seed.LoadFile(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		target := seed.Target{
			PutLeague: pgstore.NewLeagueStore(pool).Upsert,
			PutTeam:   pgstore.NewTeamStore(pool).Upsert,
		}
		if err := fx.Apply(ctx, target); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d leagues, %d teams\n", len(fx.Leagues), fx.Teams())
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a waiver claim",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		c, err := e.SubmitClaim(ctx, waiver.SubmitRequest{
			TeamID:       submitTeam,
			Kind:         domain.ClaimKind(strings.ToUpper(submitKind)),
			AddPlayerID:  submitAdd,
			DropPlayerID: submitDrop,
			BidAmount:    submitBid,
		})
		if err != nil {
			return describeErr(err)
		}
		return printJSON(cmd, c)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <claim-id>",
	Short: "Cancel a pending claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cancelTeam == "" && !cancelCommissioner {
			return errors.New("either --team or --commissioner is required")
		}

		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		var c *domain.Claim
		if cancelCommissioner {
			c, err = e.CancelClaimAsCommissioner(ctx, args[0])
		} else {
			c, err = e.CancelClaim(ctx, args[0], cancelTeam)
		}
		if err != nil {
			return describeErr(err)
		}
		return printJSON(cmd, c)
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <league-id>",
	Short: "Run waiver resolution for a league now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		run, err := e.TriggerResolution(ctx, args[0])
		if err != nil {
			return describeErr(err)
		}
		switch resolveFormat {
		case "md", "markdown":
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderMarkdown(run, reporting.Summarize(run.Claims)))
		case "csv":
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderCSV(run.Claims))
		default:
			return fmt.Errorf("unknown format %q", resolveFormat)
		}
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending claims past their deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		n, err := e.ExpireStale(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "expired %d claims\n", n)
		return nil
	},
}

var rerankCmd = &cobra.Command{
	Use:   "rerank <league-id>",
	Short: "Re-rank waiver priority by record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.RerankLeague(ctx, args[0]); err != nil {
			return describeErr(err)
		}
		teams, err := pgstore.NewTeamStore(e.pool).GetByLeague(ctx, args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PRIORITY\tTEAM\tW-L-T\tPF")
		for _, t := range teams {
			fmt.Fprintf(w, "%d\t%s\t%d-%d-%d\t%.1f\n", t.WaiverPriority, t.ID, t.Record.Wins, t.Record.Losses, t.Record.Ties, t.Record.PointsFor)
		}
		return w.Flush()
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims <league-id>",
	Short: "List a league's claims for one waiver period",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		league, err := e.league.GetByID(ctx, args[0])
		if err != nil {
			return describeErr(err)
		}
		season, week := league.Season, league.CurrentWeek
		if claimsSeason > 0 {
			season = claimsSeason
		}
		if claimsWeek > 0 {
			week = claimsWeek
		}

		claims, err := e.ListLeagueClaims(ctx, league.ID, season, week)
		if err != nil {
			return err
		}
		switch claimsFormat {
		case "csv":
			fmt.Fprint(cmd.OutOrStdout(), reporting.RenderCSV(claims))
		case "json":
			return printJSON(cmd, claims)
		default:
			return fmt.Errorf("unknown format %q", claimsFormat)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitTeam, "team", "", "Submitting team ID")
	submitCmd.Flags().StringVar(&submitKind, "kind", "ADD", "Claim kind: ADD, DROP or ADD_DROP")
	submitCmd.Flags().StringVar(&submitAdd, "add", "", "Player to add")
	submitCmd.Flags().StringVar(&submitDrop, "drop", "", "Player to drop")
	submitCmd.Flags().Int64Var(&submitBid, "bid", 0, "FAAB bid")
	_ = submitCmd.MarkFlagRequired("team")

	cancelCmd.Flags().StringVar(&cancelTeam, "team", "", "Owning team ID")
	cancelCmd.Flags().BoolVar(&cancelCommissioner, "commissioner", false, "Cancel as league commissioner")
	cancelCmd.MarkFlagsMutuallyExclusive("team", "commissioner")

	resolveCmd.Flags().StringVar(&resolveFormat, "format", "md", "Output format: md or csv")

	claimsCmd.Flags().IntVar(&claimsSeason, "season", 0, "Season (default: league's current)")
	claimsCmd.Flags().IntVar(&claimsWeek, "week", 0, "Week (default: league's current)")
	claimsCmd.Flags().StringVar(&claimsFormat, "format", "csv", "Output format: csv or json")
}

// describeErr turns validation failures into their reason code.
func describeErr(err error) error {
	var ve *waiver.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("rejected: %s: %s", ve.Code, ve.Message)
	}
	return err
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
