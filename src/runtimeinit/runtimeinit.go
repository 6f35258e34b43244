package runtimeinit

import (
	"fmt"
	"log"

	"chat-scraper/src/clipboard"
	"chat-scraper/src/config"
	"chat-scraper/src/screenshot"
)

type Options struct {
	LoadOptions  config.LoadOptions
	SetupLogging func(enableFileLogging bool)

	// BeforeScreen runs once logging is configured and before the first
	// display query.
	BeforeScreen func()

	// SkipScreenCheck disables the display bounds check, for dry runs on
	// machines whose layout differs from the target one.
	SkipScreenCheck bool
}

// Bootstrap loads and validates configuration, configures logging and
// prepares optional desktop integrations.
func Bootstrap(opts Options) (*config.Config, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.BeforeScreen != nil {
		opts.BeforeScreen()
	}

	if !opts.SkipScreenCheck {
		if err := screenshot.CheckRegion(ToRegion(cfg.Region)); err != nil {
			return nil, fmt.Errorf("capture region: %w", err)
		}
	}

	if cfg.CopyToClipboard {
		if err := clipboard.Init(); err != nil {
			log.Printf("Clipboard unavailable, disabling copy: %v", err)
			cfg.CopyToClipboard = false
		}
	}

	log.Printf("Region: %s, iterations: %d, scroll: %d every %v", cfg.Region, cfg.Iterations, cfg.ScrollStep, cfg.ScrollPause)
	log.Printf("OCR language: %s, output: %s", cfg.Language, cfg.OutputFile)
	return cfg, nil
}

// ToRegion converts the configured region to a capture region.
func ToRegion(r config.Region) screenshot.Region {
	return screenshot.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}
