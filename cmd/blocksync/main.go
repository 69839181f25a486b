package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mwfern/blocksync/internal/config"
	"github.com/mwfern/blocksync/internal/engine"
	"github.com/mwfern/blocksync/internal/event"
	"github.com/mwfern/blocksync/internal/stats"
	"github.com/mwfern/blocksync/internal/ui"
)

var version = "dev"

// Exit codes. Distinct values let scripts distinguish failure modes.
const (
	exitOK           = 0
	exitConfig       = 1
	exitSource       = 2
	exitDestination  = 3
	exitSizeMismatch = 4
	exitInterrupted  = 5
	exitIO           = 6
)

func main() {
	os.Exit(run())
}

//nolint:gocyclo // main CLI entry point orchestrates flag parsing and wiring
func run() int {
	var (
		blockSizeStr string
		depth        int
		resume       bool
		noResume     bool
		dryRun       bool
		grow         bool
		verifyFlag   bool
		digestFlag   bool
		bwLimitStr   string
		useIOURing   bool
		quiet        bool
		verbose      bool
		logFile      string
		showVersion  bool
	)

	rootCmd := &cobra.Command{
		Use:   "blocksync [flags] <source> <destination>",
		Short: "Synchronize block devices and disk images, writing only differing blocks",
		Args: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				return nil
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(os.Stdout, "blocksync %s\n", version)
				return nil
			}

			srcPath, dstPath := args[0], args[1]

			// Load optional config file.
			cfg, err := config.Load()
			if err != nil {
				slog.Warn("failed to load config", "error", err)
			}
			applyConfigDefaults(cmd.Flags(), cfg.Defaults,
				&blockSizeStr, &depth, &resume, &verifyFlag, &digestFlag, &bwLimitStr, &useIOURing)

			var blockSize int64
			if blockSizeStr != "" {
				blockSize, err = config.ParseSize(blockSizeStr)
				if err != nil {
					return fmt.Errorf("invalid --block-size: %w", err)
				}
			}

			var bwLimit int64
			if bwLimitStr != "" {
				bwLimit, err = config.ParseSize(bwLimitStr)
				if err != nil {
					return fmt.Errorf("invalid --bwlimit: %w", err)
				}
			}

			// Configure logging.
			logLevel := slog.LevelWarn
			if verbose {
				logLevel = slog.LevelDebug
			} else if !quiet {
				logLevel = slog.LevelInfo
			}
			textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logLevel,
			})
			var logHandler slog.Handler = textHandler
			if logFile != "" {
				lf, lfErr := os.Create(logFile)
				if lfErr != nil {
					return fmt.Errorf("open log file: %w", lfErr)
				}
				defer lf.Close()
				jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})
				logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
			}
			slog.SetDefault(slog.New(logHandler))

			if dryRun {
				slog.Info("dry run mode, destination will not be modified")
			}

			// Set up context with signal handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector := stats.NewCollector()
			events := make(chan event.Event, 256)

			presenter := ui.NewPresenter(ui.Config{
				Writer:    os.Stdout,
				ErrWriter: os.Stderr,
				Stats:     collector,
				IsTTY:     ui.IsTTY(os.Stderr.Fd()) && !verbose,
				Quiet:     quiet,
				Verbose:   verbose,
				DryRun:    dryRun,
			})

			var presenterWg sync.WaitGroup
			presenterWg.Add(1)
			go func() {
				defer presenterWg.Done()
				if err := presenter.Run(events); err != nil {
					fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
				}
			}()

			result := engine.Run(ctx, engine.Config{
				SourcePath: srcPath,
				DstPath:    dstPath,
				BlockSize:  blockSize,
				Depth:      depth,
				Resume:     resume && !noResume,
				DryRun:     dryRun,
				Grow:       grow,
				Verify:     verifyFlag,
				Digest:     digestFlag,
				UseIOURing: useIOURing,
				BWLimit:    bwLimit,
				Events:     events,
				Stats:      collector,
			})
			stop()
			close(events)
			presenterWg.Wait()

			if !quiet {
				if summary := presenter.Summary(); summary != "" {
					fmt.Fprintln(os.Stderr, summary)
				}
			}

			if result.Err != nil {
				slog.Error("sync failed", "error", result.Err)
				return &exitError{code: exitCode(result.Err)}
			}
			return nil
		},
	}

	rootCmd.Flags().BoolVar(&showVersion, "version", false, "print version and exit")
	rootCmd.Flags().
		StringVarP(&blockSizeStr, "block-size", "b", "", "comparison block size (e.g. 1M, 4M; default 4M)")
	rootCmd.Flags().
		IntVar(&depth, "depth", 0, "in-flight blocks per pipeline stage (default 4)")
	rootCmd.Flags().
		BoolVar(&resume, "resume", true, "resume from a checkpoint when one matches")
	rootCmd.Flags().
		BoolVar(&noResume, "no-resume", false, "ignore checkpoints and rescan from the start")
	rootCmd.Flags().
		BoolVar(&dryRun, "dry-run", false, "report differing blocks without writing")
	rootCmd.Flags().
		BoolVar(&grow, "grow", false, "grow a regular-file destination to the source length")
	rootCmd.Flags().
		BoolVar(&verifyFlag, "verify", false, "verify checksums after sync (BLAKE3)")
	rootCmd.Flags().
		BoolVar(&digestFlag, "digest", false, "compare blocks by digest before byte comparison")
	rootCmd.Flags().
		StringVar(&bwLimitStr, "bwlimit", "", "destination write bandwidth limit (e.g. 100M)")
	rootCmd.Flags().
		BoolVar(&useIOURing, "iouring", false, "use io_uring for block reads (Linux only)")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().StringVar(&logFile, "log", "", "write structured JSON log to FILE")

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfig
	}
	return exitOK
}

// exitCode maps an engine error onto the documented exit codes.
func exitCode(err error) int {
	if errors.Is(err, engine.ErrSizeIncompatible) {
		return exitSizeMismatch
	}
	if errors.Is(err, engine.ErrCancelled) || errors.Is(err, context.Canceled) {
		return exitInterrupted
	}

	var openErr *engine.OpenError
	if errors.As(err, &openErr) {
		if openErr.Endpoint == "source" {
			return exitSource
		}
		return exitDestination
	}

	var srcErr *engine.SourceIOError
	var dstWriteErr *engine.DestWriteError
	var dstReadErr *engine.DestReadError
	var verifyErr *engine.VerifyError
	if errors.As(err, &srcErr) || errors.As(err, &dstWriteErr) ||
		errors.As(err, &dstReadErr) || errors.As(err, &verifyErr) {
		return exitIO
	}

	return exitConfig
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(
	flags *pflag.FlagSet,
	defaults config.DefaultsConfig,
	blockSize *string,
	depth *int,
	resume *bool,
	verify *bool,
	digest *bool,
	bwLimit *string,
	iouring *bool,
) {
	if !flags.Changed("block-size") && defaults.BlockSize != nil {
		*blockSize = *defaults.BlockSize
	}
	if !flags.Changed("depth") && defaults.Depth != nil {
		*depth = *defaults.Depth
	}
	if !flags.Changed("resume") && defaults.Resume != nil {
		*resume = *defaults.Resume
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		*verify = *defaults.Verify
	}
	if !flags.Changed("digest") && defaults.Digest != nil {
		*digest = *defaults.Digest
	}
	if !flags.Changed("bwlimit") && defaults.BWLimit != nil {
		*bwLimit = *defaults.BWLimit
	}
	if !flags.Changed("iouring") && defaults.IOURing != nil {
		*iouring = *defaults.IOURing
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
