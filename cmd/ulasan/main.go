package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/matthewjhunter/ulasan"
	"github.com/matthewjhunter/ulasan/internal/auth"
	"github.com/matthewjhunter/ulasan/internal/logging"
	"github.com/matthewjhunter/ulasan/internal/output"
	"github.com/matthewjhunter/ulasan/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	logger       *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "ulasan",
		Short:         "Aspect-based sentiment analytics for app store reviews",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(daemonCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(initConfigCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	var err error
	cfg, err = storage.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err = logging.New(cfg.Logging.Mode, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func newFormatter() (*output.Formatter, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(format), nil
}

func openEngine() (*ulasan.Engine, error) {
	engine, err := ulasan.NewEngineFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [path...]",
		Short: "Ingest JSON files or directories of JSON files (default: the configured seed directory)",
		Long: `Classify and ingest each JSON file as daily sentiment summaries or app
version records. Directories contribute their *.json files in name order.
Re-seeding the same files is safe: summaries and details are upserted and
versions already on record are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			paths := args
			if len(paths) == 0 {
				paths = []string{cfg.Ingest.SeedDir}
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, cancel := signalContext()
			defer cancel()

			result, err := engine.IngestPaths(ctx, paths)
			if err != nil {
				return err
			}
			if err := formatter.OutputIngestResult(result); err != nil {
				return err
			}
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", result.Failed, len(result.Batches))
			}
			return nil
		},
	}
}

func queryCmd() *cobra.Command {
	var (
		platformID int64
		aspectID   int64
		from, to   string
		sentiment  string
		date       string
	)

	run := func(fn func(ctx context.Context, engine *ulasan.Engine, f *output.Formatter) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return fn(ctx, engine, formatter)
		}
	}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run an analytical query against the ingested data",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "platforms",
		Short: "List platforms",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			platforms, err := e.Platforms(ctx)
			if err != nil {
				return err
			}
			return f.OutputPlatforms(platforms)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "aspects",
		Short: "List aspects",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			aspects, err := e.Aspects(ctx)
			if err != nil {
				return err
			}
			return f.OutputAspects(aspects)
		}),
	})

	timeseries := &cobra.Command{
		Use:   "timeseries",
		Short: "Daily sentiment counts per platform and aspect",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			points, err := e.SentimentTimeSeries(ctx, ulasan.TimeSeriesQuery{
				PlatformID: platformID, AspectID: aspectID, StartDate: from, EndDate: to,
			})
			if err != nil {
				return err
			}
			return f.OutputTimeSeries(points)
		}),
	}
	timeseries.Flags().Int64Var(&platformID, "platform", 0, "platform id (default: all)")
	timeseries.Flags().Int64Var(&aspectID, "aspect", 0, "aspect id (default: all)")
	cmd.AddCommand(timeseries)

	totals := &cobra.Command{
		Use:   "totals",
		Short: "Sentiment totals per platform",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			rows, err := e.AggregatedSentiment(ctx, ulasan.TotalsQuery{AspectID: aspectID, StartDate: from, EndDate: to})
			if err != nil {
				return err
			}
			return f.OutputTotals(rows)
		}),
	}
	totals.Flags().Int64Var(&aspectID, "aspect", 0, "aspect id (default: all)")
	cmd.AddCommand(totals)

	distribution := &cobra.Command{
		Use:   "distribution",
		Short: "Per-aspect counts of one sentiment on each platform",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			rows, err := e.AspectDistribution(ctx, ulasan.DistributionQuery{SentimentType: sentiment, StartDate: from, EndDate: to})
			if err != nil {
				return err
			}
			return f.OutputDistribution(rows)
		}),
	}
	distribution.Flags().StringVarP(&sentiment, "sentiment", "s", "negative", "positive, neutral or negative")
	cmd.AddCommand(distribution)

	versions := &cobra.Command{
		Use:   "versions",
		Short: "Release timeline of one platform",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			rows, err := e.VersionHistory(ctx, ulasan.VersionQuery{PlatformID: platformID, StartDate: from, EndDate: to})
			if err != nil {
				return err
			}
			return f.OutputVersions(rows)
		}),
	}
	versions.Flags().Int64Var(&platformID, "platform", 0, "platform id")
	_ = versions.MarkFlagRequired("platform")
	cmd.AddCommand(versions)

	day := &cobra.Command{
		Use:   "day",
		Short: "Stored summary and aspect details for one platform and day",
		RunE: run(func(ctx context.Context, e *ulasan.Engine, f *output.Formatter) error {
			breakdown, err := e.DailyBreakdown(ctx, platformID, date)
			if err != nil {
				if errors.Is(err, ulasan.ErrNotFound) {
					return fmt.Errorf("no summary for platform %d on %s", platformID, date)
				}
				return err
			}
			return f.OutputDay(breakdown)
		}),
	}
	day.Flags().Int64Var(&platformID, "platform", 0, "platform id")
	day.Flags().StringVar(&date, "date", "", "day to show (YYYY-MM-DD)")
	_ = day.MarkFlagRequired("platform")
	_ = day.MarkFlagRequired("date")
	cmd.AddCommand(day)

	for _, sub := range []*cobra.Command{timeseries, totals, distribution, versions} {
		sub.Flags().StringVar(&from, "from", "", "first day, inclusive (YYYY-MM-DD)")
		sub.Flags().StringVar(&to, "to", "", "last day, inclusive (YYYY-MM-DD)")
	}

	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <review text>",
		Short: "Label one review per aspect with the configured Ollama model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			result, err := engine.Analyze(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return formatter.OutputAnalysis(result)
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the web upload endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := newFormatter()
			if err != nil {
				return err
			}
			if cfg.Server.UploadSecret == "" {
				return errors.New("server.upload_secret (or ULASAN_UPLOAD_SECRET) is not set")
			}
			issuer, err := auth.NewIssuer(cfg.Server.UploadSecret)
			if err != nil {
				return err
			}
			token, err := issuer.Mint(subject, ttl)
			if err != nil {
				return err
			}
			return formatter.OutputToken(token, time.Now().Add(ttl))
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Create config directory
			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			// Check if config already exists
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}
