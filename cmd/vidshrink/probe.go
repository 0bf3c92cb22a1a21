package main

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/ideamans/go-l10n"

	"github.com/user/vidshrink/pkg/adapters/osfilesystem"
	"github.com/user/vidshrink/pkg/adapters/smartdecoder"
	"github.com/user/vidshrink/pkg/pipeline"
	"github.com/user/vidshrink/pkg/stages/probe"
)

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	CommonFlags

	Input string `arg:"" optional:"" type:"existingfile" help:"Video file to inspect (omit to list runtime support only)."`
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	cfg, err := cmd.loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := newLogger(cfg, cmd.Quiet)
	ctx, cancel := signalContext(log)
	defer cancel()

	fs := osfilesystem.New()

	if cmd.Input != "" {
		data, err := fs.ReadFile(cmd.Input)
		if err != nil {
			return fmt.Errorf("read %s: %w", cmd.Input, err)
		}

		decoder, _ := smartdecoder.New(fs, smartdecoder.Options{
			FFmpegPath:  cfg.FFmpegPath,
			FFprobePath: cfg.FFprobePath,
			Logger:      log.WithComponent("decoder"),
		})
		src := pipeline.SourceMedia{
			Data:     data,
			MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(cmd.Input))),
			Filename: filepath.Base(cmd.Input),
		}
		session, err := decoder.Open(ctx, src.Media())
		if err != nil {
			return fmt.Errorf("open %s: %w", cmd.Input, err)
		}
		info := session.Info()
		_ = session.Close()

		fmt.Println(l10n.F("Source: %s", cmd.Input))
		fmt.Println(l10n.F("  Decoder: %s", decoder.Select(data)))
		fmt.Println(l10n.F("  Container: %s, codec: %s", info.Container, info.VideoCodec))
		fmt.Println(l10n.F("  Size: %dx%d, %.2f fps", info.Width, info.Height, info.FrameRate))
		fmt.Println(l10n.F("  Duration: %s, audio: %t", info.Duration.Round(time.Millisecond), info.HasAudio))
		fmt.Println()
	}

	runtime, _, release, err := openRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	stage := probe.NewStage(runtime, log)
	for _, plan := range cfg.Build().Plans {
		result, err := stage.Execute(ctx, pipeline.ProbeInput{
			Candidates:          plan.Candidates,
			AllowRuntimeDefault: plan.AllowRuntimeDefault,
		})
		if err != nil {
			return err
		}

		fmt.Println(l10n.F("%s (%.0f%%, %d fps, skip %d):", plan.Method, plan.Scale*100, plan.FrameRate, plan.FrameSkip))
		if !result.Found {
			fmt.Println(l10n.T("  no supported format"))
			continue
		}
		for _, target := range result.Supported {
			fmt.Printf("  %s\n", target)
		}
	}

	return nil
}
