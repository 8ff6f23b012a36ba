package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/Lllllllleong/gazetteflow/internal/app"
	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/services"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	envFiles []string
	verbose  bool
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "gazettectl",
		Short: "Operate the gazette results store from the command line",
		Long: `gazettectl ingests result gazettes, asks questions about the stored records
and prints dashboard statistics, using the same configuration as the server.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "load variables from these .env files (default .env)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at the configured LOG_LEVEL instead of warnings only")

	cmd.AddCommand(ingestCmd(opts))
	cmd.AddCommand(askCmd(opts))
	cmd.AddCommand(statsCmd(opts))
	return cmd
}

// load reads the configuration and builds a logger on stderr so stdout stays clean
// for command output.
func (o *rootOptions) load() (*app.Config, *slog.Logger, error) {
	app.LoadDotEnv(o.envFiles...)
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	level := slog.LevelWarn
	if o.verbose {
		level, _ = app.ParseLevel(cfg.LogLevel)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func (o *rootOptions) container(ctx context.Context) (*app.Container, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.NewContainer(ctx, cfg, logger)
}

func ingestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <gazette.pdf>",
		Short: "Extract a gazette PDF and replace the stored records with its rows",
		Example: `  gazettectl ingest ./results-sem1.pdf
  gazettectl --env-file prod.env ingest gazette.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			res, err := c.Ingestor.Ingest(ctx, filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			printIngestResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func askCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ask <question...>",
		Short:   "Ask a natural-language question about the stored results",
		Example: `  gazettectl ask "Who scored the highest grand total?"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := opts.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			answer := c.Chat.Answer(ctx, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
}

func statsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard statistics for the stored records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			// Stats only need the store, not the model or staging bucket.
			st, err := app.OpenStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := services.NewStatsService(st).Stats(ctx)
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printIngestResult(w io.Writer, res *services.IngestResult) {
	ok := color.New(color.FgGreen, color.Bold)
	warn := color.New(color.FgYellow)

	if res.RecordsProcessed == 0 {
		warn.Fprintln(w, "No records extracted; stored results were left unchanged.")
	} else {
		ok.Fprintf(w, "Stored %d records.\n", res.RecordsProcessed)
	}
	fmt.Fprintf(w, "  Ingestion: %s\n", res.IngestionID)
	fmt.Fprintf(w, "  Pages:     %d processed of %d", res.PagesProcessed, res.PageCount)
	if res.PagesFailed > 0 {
		warn.Fprintf(w, " (%d failed)", res.PagesFailed)
	}
	fmt.Fprintln(w)
}

func printStats(w io.Writer, stats *models.Stats) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "Results summary")
	fmt.Fprintf(w, "  Students:     %d\n", stats.Total)
	fmt.Fprintf(w, "  Average CGPA: %.2f\n", stats.AvgCGPA)
	if len(stats.PassFail) == 0 {
		return
	}

	fmt.Fprintln(w)
	bold.Fprintln(w, "Remarks")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, rc := range stats.PassFail {
		label := "(none)"
		if rc.ID != nil {
			label = *rc.ID
		}
		fmt.Fprintf(tw, "  %s\t%d\n", label, rc.Count)
	}
	_ = tw.Flush()
}
