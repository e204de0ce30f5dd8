package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vidscribe/internal/config"
	"vidscribe/internal/services"
	"vidscribe/internal/task"
)

type runFlags struct {
	format    string
	model     string
	language  string
	proxy     string
	outputDir string
	device    string
	noCookies bool
	forceASR  bool
	plain     bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <url>",
		Short: "Transcribe one video",
		Long: `Transcribe one video. A caption track published with the video is used
when one is available in an acceptable language; otherwise the audio is
downloaded and run through speech recognition. The transcript path is printed
on success. Ctrl-C cancels the task and leaves no partial output behind.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := task.OptionsFromConfig(cfg)
			flags.apply(cmd, cfg, &opts)

			live := isTerminal(cmd.ErrOrStderr())
			logger, err := ctx.newLogger(!live)
			if err != nil {
				return err
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			p := buildPipeline(signalCtx, cfg, logger)
			defer p.Close()

			tk, err := p.orch.Submit(signalCtx, task.Request{URL: args[0], Options: opts})
			if err != nil {
				return err
			}
			renderer := newProgressRenderer(cmd.ErrOrStderr(), live)
			for ev := range tk.Events() {
				renderer.Update(ev)
			}
			renderer.Finish()

			res, err := tk.Wait(context.Background())
			if err != nil {
				return err
			}
			p.orch.Release(res.TaskID)
			return reportResult(cmd, res)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.format, "format", "f", "", "Output format: text, srt or vtt")
	f.StringVarP(&flags.model, "model", "m", "", "Speech recognition model size")
	f.StringVarP(&flags.language, "language", "l", "", "Spoken language code, or auto")
	f.StringVar(&flags.proxy, "proxy", "", "HTTP or SOCKS proxy URL")
	f.StringVarP(&flags.outputDir, "output-dir", "o", "", "Directory for the transcript")
	f.StringVar(&flags.device, "device", "", "Compute device: auto, cpu or cuda")
	f.BoolVar(&flags.noCookies, "no-cookies", false, "Do not import browser cookies")
	f.BoolVar(&flags.forceASR, "force-asr", false, "Ignore caption tracks and always run speech recognition")
	f.BoolVar(&flags.plain, "paragraphs", false, "Render plain text as paragraphs without timestamps")
	return cmd
}

// apply overrides opts with the flags the user set explicitly.
func (f runFlags) apply(cmd *cobra.Command, cfg *config.Config, opts *task.Options) {
	changed := cmd.Flags().Changed
	if changed("format") {
		opts.OutputFormat = f.format
	}
	if changed("model") {
		opts.ModelSize = f.model
	}
	if changed("language") {
		opts.Language = f.language
	}
	if changed("proxy") {
		opts.Proxy = f.proxy
	}
	if changed("output-dir") {
		if expanded, err := config.ExpandPath(f.outputDir); err == nil {
			opts.OutputDir = expanded
		} else {
			opts.OutputDir = f.outputDir
		}
	}
	if changed("device") {
		opts.Device = f.device
	}
	if f.noCookies {
		opts.UseCredentials = false
	}
	if f.forceASR {
		opts.ForceASR = true
	}
	if f.plain {
		opts.WithTimestamps = false
	}
	if opts.BeamSize <= 0 {
		opts.BeamSize = cfg.Transcription.BeamSize
	}
}

func reportResult(cmd *cobra.Command, res task.Result) error {
	switch res.State {
	case task.StateDone:
		fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
		return nil
	case task.StateCancelled:
		fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
		if res.Err != nil {
			return res.Err
		}
		return context.Canceled
	default:
		msg := res.Message()
		if msg == "" {
			msg = "task did not complete"
		}
		err := errors.New(msg)
		if res.Kind != services.KindNone {
			err = fmt.Errorf("%s: %s", res.Kind, msg)
		}
		if errors.Is(res.Err, services.ErrAuth) {
			err = fmt.Errorf("%w (the video needs a signed-in session; check download.credential_browser)", err)
		}
		return err
	}
}
