// Command vadcal calibrates voice activity detection thresholds.
//
// It analyses recorded speech-probability traces offline and can drive a full
// two-phase calibration against a replayed trace, a TTS voice and a YAML
// settings file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/vadcal/internal/config"
	"github.com/MrWong99/vadcal/internal/report"
)

var version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Config   string           `short:"c" type:"path" default:"vadcal.yaml" help:"Path to the YAML configuration file. A missing file selects the defaults."`
	LogLevel config.LogLevel  `help:"Override server.log_level (debug, info, warn, error)."`
	Version  kong.VersionFlag `short:"v" help:"Show version information."`

	Analyze  AnalyzeCmd  `cmd:"" help:"Analyse recorded probability traces offline."`
	Simulate SimulateCmd `cmd:"" help:"Run a complete calibration against replayed traces."`
	History  HistoryCmd  `cmd:"" help:"List recorded calibration runs."`
	Voices   VoicesCmd   `cmd:"" help:"List the voices of the configured TTS provider."`
}

// appContext is handed to every command's Run method.
type appContext struct {
	ctx context.Context
	cfg *config.Config
}

func main() {
	os.Exit(run())
}

func run() int {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("vadcal"),
		kong.Description("Voice activity detection calibration"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", report.WarnStyle.Render("vadcal:"), err)
		return 1
	}
	if cli.LogLevel != "" {
		if !cli.LogLevel.IsValid() {
			fmt.Fprintf(os.Stderr, "vadcal: --log-level %q is invalid\n", cli.LogLevel)
			return 1
		}
		cfg.Server.LogLevel = cli.LogLevel
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Debug("vadcal starting", "config", cli.Config, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := kctx.Run(&appContext{ctx: ctx, cfg: cfg}); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("interrupted")
			return 130
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", report.WarnStyle.Render("vadcal:"), err)
		return 1
	}
	return 0
}

// loadConfig loads path, falling back to an empty configuration when the file
// does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return &config.Config{}, nil
	}
	return cfg, err
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
