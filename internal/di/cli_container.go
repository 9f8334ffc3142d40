package di

import (
	"flag"
	"io"
	"os"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/cache"
	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	ConfigFile string

	// Input and output
	InputFile  string
	OutputFile string
	EvalFile   string
	Indent     int
	Files      []string

	// Triage overrides
	UserEmail   string
	ProfilePath string

	// AI classification
	AI       bool
	Provider string
	MaxAI    int

	Verbose bool
	JSONLog bool
}

// ParseFlags parses command line flags and returns a CLIFlags struct.
// Remaining arguments are raw message files.
func ParseFlags(args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet("mail-triage", flag.ContinueOnError)

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	fs.StringVar(&flags.InputFile, "input", "", "JSON array or JSONL of normalized messages (- for stdin)")
	fs.StringVar(&flags.OutputFile, "output", "-", "Where to write the triage JSON (- for stdout)")
	fs.StringVar(&flags.EvalFile, "eval", "", "Labeled JSONL dataset to evaluate the heuristics against")
	fs.IntVar(&flags.Indent, "indent", 2, "JSON indent width, 0 for compact output")

	fs.StringVar(&flags.UserEmail, "user-email", "", "Address of the mailbox owner (inferred when empty)")
	fs.StringVar(&flags.ProfilePath, "profiles", "", "Sender history file (overrides profiles.path)")

	fs.BoolVar(&flags.AI, "ai", false, "Classify messages without a verdict using the configured model")
	fs.StringVar(&flags.Provider, "provider", "", "Classifier provider (openai, gemini, bedrock)")
	fs.IntVar(&flags.MaxAI, "max-ai", -1, "Maximum model calls per run (-1 keeps the configured value)")

	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose output")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	flags.Files = fs.Args()
	return flags, nil
}

// BuildCLIContainer creates and configures a dependency injection container
// for the CLI application. Console output goes to console.
func BuildCLIContainer(flags *CLIFlags, console io.Writer) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		var cfg *config.Config
		if flags.ConfigFile != "" {
			var err error
			cfg, err = config.New(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
		} else {
			cfg = config.NewFromViper(config.NewEmptyViper())
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// No verdict cache for one-shot runs
	if err := container.Provide(func() cache.VerdictStore { return nil }); err != nil {
		return nil, err
	}

	// Register CLI filter
	if err := container.Provide(func(f *factory.FilterFactory) *filter.CliFilter {
		if console == nil {
			console = os.Stdout
		}
		return f.CreateCliFilter(console)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags layers command line overrides on top of the configuration
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)
	cfg.Set("classifier.cache.enabled", false)

	if flags.UserEmail != "" {
		cfg.Set("triage.user_email", flags.UserEmail)
	}
	if flags.ProfilePath != "" {
		cfg.Set("profiles.type", "file")
		cfg.Set("profiles.path", flags.ProfilePath)
	}
	if flags.AI {
		cfg.Set("classifier.enabled", true)
	}
	if flags.Provider != "" {
		cfg.Set("classifier.provider", flags.Provider)
	}
	if flags.MaxAI >= 0 {
		cfg.Set("classifier.max_ai", flags.MaxAI)
	}
}
