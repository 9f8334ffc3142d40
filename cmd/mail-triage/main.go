package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/calibration"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/normalize"
	"github.com/mikey/mail-triage/internal/senders"
	"github.com/mikey/mail-triage/internal/triage"
)

func main() {
	flags, err := di.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Keep stdout clean when it carries the JSON document
	console := io.Writer(os.Stdout)
	if flags.OutputFile == "-" && flags.EvalFile == "" && len(flags.Files) == 0 {
		console = os.Stderr
	}

	container, err := di.BuildCLIContainer(flags, console)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	flags *di.CLIFlags,
	cliFilter *filter.CliFilter,
	service *triage.Service,
	store senders.Store,
) error {
	defer logger.Sync()
	defer closeStore(logger, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case flags.EvalFile != "":
		return evaluate(ctx, logger, service, flags.EvalFile, flags.UserEmail, os.Stdout)
	case len(flags.Files) > 0:
		return processFiles(ctx, logger, cliFilter, flags.Files)
	default:
		return runBatch(ctx, logger, cliFilter, flags)
	}
}

func runBatch(ctx context.Context, logger *zap.Logger, cliFilter *filter.CliFilter, flags *di.CLIFlags) error {
	in := io.Reader(os.Stdin)
	if flags.InputFile != "" && flags.InputFile != "-" {
		file, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer file.Close()
		in = file
		logger.Info("Reading messages from file", zap.String("file", flags.InputFile))
	} else {
		logger.Info("Reading messages from stdin")
	}

	records, err := filter.DecodeRecords(in, logger)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Warn("No messages to triage")
	}

	out, err := cliFilter.RunBatch(ctx, records)
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if flags.OutputFile != "-" && flags.OutputFile != "" {
		file, err := os.Create(flags.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}
	if err := filter.WriteOutput(w, out, flags.Indent); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if w != io.Writer(os.Stdout) {
		logger.Info("Wrote triage output", zap.String("file", flags.OutputFile))
	}
	return nil
}

func processFiles(ctx context.Context, logger *zap.Logger, cliFilter *filter.CliFilter, files []string) error {
	for _, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if _, err := cliFilter.ProcessMessage(ctx, raw, normalize.Envelope{}); err != nil {
			logger.Error("Failed to triage message", zap.String("file", path), zap.Error(err))
		}
	}
	return cliFilter.Stop()
}

// evaluate scores a labeled dataset the way a batch run would, against the
// stored sender history, but without AI verdicts and without recording the
// decisions. The user is inferred from the dataset unless userEmail is set.
func evaluate(ctx context.Context, logger *zap.Logger, service *triage.Service, path, userEmail string, w io.Writer) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open dataset: %w", err)
	}
	defer file.Close()

	samples, err := calibration.LoadDataset(file)
	if err != nil {
		return err
	}

	msgs := calibration.Messages(samples)
	results, resolved := service.DryRun(ctx, msgs, userEmail)
	logger.Info("Evaluating heuristics",
		zap.String("dataset", path),
		zap.Int("samples", len(samples)),
		zap.String("user_email", resolved))

	decisions := make(map[*core.NormalizedMessage]core.Decision, len(msgs))
	for i, msg := range msgs {
		decisions[msg] = results[i].Decision
	}
	report, err := calibration.Evaluate(samples, func(msg *core.NormalizedMessage) core.Decision {
		return decisions[msg]
	})
	if err != nil {
		return err
	}
	return calibration.WriteReport(w, path, report)
}

func closeStore(logger *zap.Logger, store senders.Store) {
	if closer, ok := store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close sender history store", zap.Error(err))
		}
	}
}
