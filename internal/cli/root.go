package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-bulletin-etl/internal/adapter/csvarchive"
	kafkaadapter "github.com/couchcryptid/quake-bulletin-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-bulletin-etl/internal/adapter/phivolcs"
	"github.com/couchcryptid/quake-bulletin-etl/internal/config"
	"github.com/couchcryptid/quake-bulletin-etl/internal/observability"
	"github.com/couchcryptid/quake-bulletin-etl/internal/pipeline"
	"github.com/couchcryptid/quake-bulletin-etl/internal/report"
)

const pushTimeout = 10 * time.Second

// RootOptions holds flags shared by all commands. Zero values defer to the
// environment configuration.
type RootOptions struct {
	Years     int
	OutputDir string
	Verbose   bool
}

// NewRootCommand creates the root command, which runs a scrape.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "quake-etl",
		Short: "Archive PHIVOLCS monthly earthquake bulletins as CSV",
		Long: `Fetch the PHIVOLCS monthly earthquake bulletins for the trailing years,
merge new events into one CSV archive per year, and regenerate the combined
all-years archive. Safe to re-run: existing events are never duplicated or
removed.

Example:
  quake-etl
  quake-etl --years 5 --output-dir ./data --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, opts)
		},
	}

	cmd.PersistentFlags().IntVar(&opts.Years, "years", 0, "trailing years to scrape, including the current one (default $YEARS_TO_SCRAPE or 3)")
	cmd.PersistentFlags().StringVar(&opts.OutputDir, "output-dir", "", "archive directory (default $OUTPUT_DIR or data)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command, opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("years") {
		cfg.YearsToScrape = opts.Years
	}
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func runScrape(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := phivolcs.NewClient(phivolcs.ClientOptions{
		BaseURL:     cfg.SourceBaseURL,
		Timeout:     cfg.SourceTimeout,
		MaxAttempts: cfg.SourceMaxAttempts,
		InsecureTLS: cfg.SourceInsecureTLS,
	}, logger)
	store := csvarchive.New(cfg.OutputDir, cfg.ArchivePrefix)

	var publisher pipeline.Publisher
	if cfg.KafkaEnabled() {
		kp := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		publisher = kp
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	p := pipeline.New(client, store, publisher, logger, metrics, pipeline.Options{
		Years:        cfg.YearsToScrape,
		RequestDelay: cfg.SourceRequestDelay,
	})
	res, runErr := p.Run(ctx)

	if err := report.Print(cmd.OutOrStdout(), res, report.Options{
		TopN:  cfg.TopN,
		Files: archiveFiles(store, res),
	}); err != nil {
		logger.Error("print summary failed", "error", err)
	}

	pushMetrics(metrics, cfg.PushgatewayURL, logger)
	return runErr
}

func archiveFiles(store *csvarchive.Store, res pipeline.Result) []string {
	var files []string
	for _, y := range res.Years {
		if _, ok := res.ByYear[y]; ok {
			files = append(files, store.YearPath(y))
		}
	}
	if res.Combined != nil {
		files = append(files, store.CombinedPath()+" (combined)")
	}
	return files
}

// pushMetrics uses its own deadline so metrics still leave after an interrupt.
func pushMetrics(metrics *observability.Metrics, url string, logger *slog.Logger) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := metrics.Push(ctx, url); err != nil {
		logger.Warn("pushgateway unavailable", "url", url, "error", err)
		return
	}
	logger.Debug("metrics pushed", "url", url)
}
