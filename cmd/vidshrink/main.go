// Package main provides the CLI entry point for vidshrink.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"

	"github.com/user/vidshrink/pkg/adapters/logger"
	"github.com/user/vidshrink/pkg/adapters/smartruntime"
	"github.com/user/vidshrink/pkg/config"
	"github.com/user/vidshrink/pkg/ports"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Compress CompressCmd `cmd:"" help:"Compress one or more videos through the fallback ladder."`
	Probe    ProbeCmd    `cmd:"" help:"Show source metadata and which ladder formats the runtime can record."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`
}

// CommonFlags are shared by compress and probe.
type CommonFlags struct {
	Config string  `short:"c" type:"existingfile" help:"YAML configuration file."`
	Preset *string `short:"p" help:"Ladder preset (default, fast, compat)."`

	// Runtime selection
	Runtime     *string `short:"r" help:"Encoding runtime (auto, chrome, ffmpeg, mjpeg)."`
	UseBrowser  bool    `help:"Include the headless browser runtime in auto mode."`
	FFmpegPath  string  `help:"Path to ffmpeg (falls back to FFMPEG_PATH env, then PATH)."`
	FFprobePath string  `help:"Path to ffprobe (falls back to FFPROBE_PATH env, then PATH)."`
	ChromePath  string  `help:"Path to Chrome executable (falls back to CHROME_PATH env, then system default)."`

	// Logging options
	LogLevel  *string `short:"l" help:"Log level (debug, info, warn, error)."`
	LogFormat *string `help:"Log format (console, json)."`
	Quiet     bool    `short:"Q" help:"Suppress all log output."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("vidshrink"),
		kong.Description(l10n.T("Shrink videos by re-recording them through a ladder of encoder settings.")),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("vidshrink version %s", version))
	return nil
}

// loadConfig reads the config file, if any, and applies flag overrides.
func (f *CommonFlags) loadConfig() (config.Config, error) {
	cfg := config.Defaults()
	if f.Config != "" {
		loaded, err := config.LoadFromFile(f.Config)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if f.Preset != nil {
		cfg.Preset = *f.Preset
	}
	if f.Runtime != nil {
		cfg.Runtime = *f.Runtime
	}
	if f.UseBrowser {
		cfg.UseBrowser = true
	}
	if f.FFmpegPath != "" {
		cfg.FFmpegPath = f.FFmpegPath
	}
	if f.FFprobePath != "" {
		cfg.FFprobePath = f.FFprobePath
	}
	if f.ChromePath != "" {
		cfg.ChromePath = f.ChromePath
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
	if f.LogFormat != nil {
		cfg.LogFormat = *f.LogFormat
	}

	return cfg, nil
}

func newLogger(cfg config.Config, quiet bool) ports.Logger {
	level := ports.ParseLogLevel(cfg.LogLevel)
	switch {
	case quiet:
		return logger.NewNoop()
	case cfg.LogFormat == "json":
		return logger.NewJSON(level)
	default:
		return logger.NewConsole(level)
	}
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(log ports.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openRuntime selects the encoding runtime. The returned func releases it.
func openRuntime(ctx context.Context, cfg config.Config, log ports.Logger) (ports.EncodingRuntime, smartruntime.Info, func(), error) {
	backend, err := smartruntime.ParseBackend(cfg.Runtime)
	if err != nil {
		return nil, smartruntime.Info{}, nil, err
	}

	rt, info, err := smartruntime.New(ctx, backend, smartruntime.Options{
		FFmpegPath:    cfg.FFmpegPath,
		ChromePath:    cfg.ChromePath,
		UseBrowser:    cfg.UseBrowser,
		AllowFallback: true,
		Logger:        log,
	})
	if err != nil {
		return nil, info, nil, err
	}
	log.Info(l10n.F("Using %s runtime", rt.Name()))

	release := func() {
		if c, ok := rt.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return rt, info, release, nil
}

// janitorInterval is how often the job store is swept during long batches.
const janitorInterval = time.Minute
