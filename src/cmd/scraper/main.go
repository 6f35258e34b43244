package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat-scraper/src/bubble"
	"chat-scraper/src/clipboard"
	"chat-scraper/src/config"
	"chat-scraper/src/export"
	"chat-scraper/src/framehash"
	"chat-scraper/src/hotkey"
	"chat-scraper/src/logutil"
	"chat-scraper/src/ocr"
	"chat-scraper/src/runtimeinit"
	"chat-scraper/src/scraper"
	"chat-scraper/src/scroll"
)

type cliOptions struct {
	region        string
	iterations    int
	output        string
	screenshotDir string
	lang          string
	verbose       bool
	dryRun        bool
	noHotkey      bool
}

func main() {
	if err := newRootCmd(&cliOptions{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chat-scraper",
		Short:         "Scroll a chat window, OCR its bubbles and export the messages to xlsx",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *opts)
		},
	}

	cmd.Flags().StringVar(&opts.region, "region", "", "Capture region as x,y,width,height (default 1360,0,540,940)")
	cmd.Flags().IntVarP(&opts.iterations, "iterations", "n", 0, "Number of captures (default 150)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output spreadsheet path")
	cmd.Flags().StringVar(&opts.screenshotDir, "screenshot-dir", "", "Directory for numbered screenshots")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "Tesseract language (default chi_sim)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Capture and OCR without moving the mouse")
	cmd.Flags().BoolVar(&opts.noHotkey, "no-hotkey", false, "Do not install the global stop hotkey")

	cmd.AddCommand(newFileCmd())
	return cmd
}

func run(parent context.Context, opts cliOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions: config.LoadOptions{
			Region:        opts.region,
			Iterations:    opts.iterations,
			OutputFile:    opts.output,
			ScreenshotDir: opts.screenshotDir,
			Language:      opts.lang,
		},
		SetupLogging:    func(enableFileLogging bool) { logutil.Setup(opts.verbose, enableFileLogging) },
		BeforeScreen:    enableDPIAwareness,
		SkipScreenCheck: opts.dryRun,
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if !opts.noHotkey && !opts.dryRun {
		stop := func() {
			fmt.Fprintf(os.Stderr, "Stop hotkey pressed, finishing up\n")
			cancel()
		}
		if err := hotkey.Listen(ctx, cfg.StopHotkey, stop); err != nil {
			log.Printf("Stop hotkey disabled: %v", err)
		} else {
			fmt.Fprintf(os.Stderr, "Press %s to stop early\n", cfg.StopHotkey)
		}
	}

	res, err := scraper.Run(ctx, buildOptions(cfg, opts.dryRun))
	if err != nil {
		return err
	}

	if cfg.CopyToClipboard {
		if err := clipboard.Write(export.Join(res.Messages)); err != nil {
			log.Printf("Clipboard write failed: %v", err)
		}
	}

	return printSummary(os.Stdout, res)
}

func buildOptions(cfg *config.Config, dryRun bool) scraper.Options {
	params := bubble.Params{MinWidth: cfg.MinBubbleWidth, MinHeight: cfg.MinBubbleHeight}
	threshold := bubble.Threshold{Lower: cfg.WhiteLower, Upper: cfg.WhiteUpper}

	opts := scraper.Options{
		Region:        runtimeinit.ToRegion(cfg.Region),
		Iterations:    cfg.Iterations,
		ScrollStep:    cfg.ScrollStep,
		Pause:         cfg.ScrollPause,
		ScreenshotDir: cfg.ScreenshotDir,
		OutputFile:    cfg.OutputFile,
		SaveMasks:     cfg.SaveMasks,
		Workers:       cfg.OCRWorkers,
		OCR:           ocr.NewTesseract(cfg.Language, cfg.TessdataPrefix),
		Scroller:      scroll.NewMouse(),
		Detect: func(img image.Image) ([]image.Rectangle, error) {
			return bubble.Detect(img, params)
		},
		Mask: func(img image.Image, rect image.Rectangle) ([]byte, error) {
			return bubble.MaskWhite(img, rect, threshold)
		},
	}
	if cfg.StaticFrameLimit > 0 {
		opts.Frames = framehash.NewTracker(cfg.StaticFrameLimit, cfg.MaxHashDistance)
	}
	if dryRun {
		opts.Scroller = scroll.Noop{}
	}
	return opts
}

func printSummary(w io.Writer, res scraper.Result) error {
	_, err := fmt.Fprintf(w, "%d iterations, %d captures, %d bubbles, %d messages written to %s (%s)\n",
		res.Iterations, res.Captures, res.Rectangles, len(res.Messages), res.OutputFile, res.Reason)
	return err
}
