// Command adbrollctl runs matcher operations against the configured stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/adbroll/matcher/config"
	"github.com/adbroll/matcher/internal/app"
	"github.com/adbroll/matcher/internal/domain"
	"github.com/adbroll/matcher/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	configPath string
	logLevel   string
	out        io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(&cli{out: os.Stdout}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "adbrollctl",
		Short:        "Run Adbroll video-to-product matching from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: ./config.yaml, ./config/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level for command output")

	root.AddCommand(
		c.matchCommand(),
		c.rebuildCommand(),
		c.resetCommand(),
		c.importCommand(),
		c.enqueueCommand(),
		c.workCommand(),
	)
	return root
}

// withApp loads config, builds the application and closes it after fn
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.Application) error) error {
	cfg, err := config.LoadFrom(c.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:       c.logLevel,
		Format:      "console",
		Environment: cfg.Server.Environment,
		Service:     "adbrollctl",
	})
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.Build(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Failed to close resources", zap.Error(err))
		}
	}()

	return fn(cmd.Context(), a)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) matchCommand() *cobra.Command {
	var (
		request domain.BatchRequest
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run one batch, or every batch with --all",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				if !all {
					summary, err := a.Matcher.MatchBatch(ctx, request)
					if err != nil {
						return err
					}
					return c.print(summary)
				}

				for {
					summary, err := a.Matcher.MatchBatch(ctx, request)
					if err != nil {
						return err
					}
					if err := c.print(summary); err != nil {
						return err
					}
					if summary.Complete || summary.NextOffset == request.Offset {
						return nil
					}
					request.Offset = summary.NextOffset
				}
			})
		},
	}

	cmd.Flags().IntVar(&request.Offset, "offset", 0, "window offset")
	cmd.Flags().IntVar(&request.BatchSize, "batch-size", 0, "window size (default from config)")
	cmd.Flags().Float64Var(&request.Threshold, "threshold", 0, "acceptance threshold (default from config)")
	cmd.Flags().BoolVar(&request.UseAI, "ai", false, "run the AI fallback pass")
	cmd.Flags().BoolVar(&all, "all", false, "keep paging until the run is complete")
	return cmd
}

func (c *cli) rebuildCommand() *cobra.Command {
	var request domain.RebuildRequest

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Clear non-manual matches and rematch every video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				summary, err := a.Matcher.Rebuild(ctx, request)
				if err != nil {
					return err
				}
				return c.print(summary)
			})
		},
	}

	cmd.Flags().IntVar(&request.BatchSize, "batch-size", 0, "window size (default from config)")
	cmd.Flags().Float64Var(&request.Threshold, "threshold", 0, "acceptance threshold (default from config)")
	cmd.Flags().BoolVar(&request.UseAI, "ai", false, "run the AI fallback pass")
	return cmd
}

func (c *cli) resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Make attempted-unmatched videos candidates again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				n, err := a.Matcher.ResetAttempts(ctx)
				if err != nil {
					return err
				}
				return c.print(map[string]int64{"reset": n})
			})
		},
	}
}

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a CSV or XLSX product catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				summary, err := a.Importer.Import(ctx, args[0], f)
				if err != nil {
					return err
				}
				return c.print(summary)
			})
		},
	}
}

func (c *cli) enqueueCommand() *cobra.Command {
	var params domain.JobParams

	cmd := &cobra.Command{
		Use:       "enqueue <batch|smart|rebuild>",
		Short:     "Queue a matcher job for the worker",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(domain.JobKindBatch), string(domain.JobKindSmart), string(domain.JobKindRebuild)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				job, err := a.JobQueue.Enqueue(ctx, domain.JobKind(args[0]), params)
				if err != nil {
					return err
				}
				return c.print(job)
			})
		},
	}

	cmd.Flags().IntVar(&params.Offset, "offset", 0, "window offset")
	cmd.Flags().IntVar(&params.BatchSize, "batch-size", 0, "window size (default from config)")
	cmd.Flags().Float64Var(&params.Threshold, "threshold", 0, "acceptance threshold (default from config)")
	return cmd
}

func (c *cli) workCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Drain due jobs from the queue once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app.Application) error {
				n, err := a.JobQueue.Drain(ctx, limit)
				if err != nil {
					return fmt.Errorf("drained %d jobs before failing: %w", n, err)
				}
				return c.print(map[string]int{"processed": n})
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum jobs to run (0 = until the queue is empty)")
	return cmd
}
