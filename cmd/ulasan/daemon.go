package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon [path...]",
		Short: "Re-seed the seed directory in a loop with configurable interval",
		Long: `Continuously ingest the configured seed directory (or the given paths)
on a timer, so files dropped there by the upstream labelling job show up
without a manual seed. Re-ingesting unchanged files is idempotent.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			log := logger.Named("daemon")
			log.Info("starting", zap.Duration("interval", interval), zap.Strings("paths", paths))

			cycle := 1
			for {
				start := time.Now()
				result, err := engine.IngestPaths(ctx, paths)
				if err != nil {
					log.Error("cycle failed", zap.Int("cycle", cycle), zap.Error(err))
				} else {
					log.Info("cycle completed",
						zap.Int("cycle", cycle),
						zap.String("run_id", result.RunID),
						zap.Int("succeeded", result.Succeeded),
						zap.Int("failed", result.Failed),
						zap.Duration("took", time.Since(start).Round(time.Millisecond)))
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-ctx.Done():
					timer.Stop()
					log.Info("received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Minute, "duration between seed cycles (e.g. 5m, 30s, 1h)")
	return cmd
}
