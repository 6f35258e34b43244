package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"chat-scraper/src/bubble"
	"chat-scraper/src/config"
	"chat-scraper/src/export"
	"chat-scraper/src/logutil"
	"chat-scraper/src/ocr"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}

type fileOptions struct {
	filePath   string
	jsonOutput bool
	verbose    bool
	lang       string
}

// newFileCmd re-runs bubble detection and OCR on a saved screenshot.
func newFileCmd() *cobra.Command {
	opts := &fileOptions{}
	cmd := &cobra.Command{
		Use:           "file",
		Short:         "Extract chat messages from a saved PNG screenshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "Tesseract language (default chi_sim)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

type FileResult struct {
	Source    string   `json:"source"`
	Timestamp string   `json:"timestamp"`
	Duration  float64  `json:"duration_seconds"`
	Bubbles   int      `json:"bubble_count"`
	Messages  []string `json:"messages"`
}

func runFile(ctx context.Context, opts fileOptions, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logutil.Setup(opts.verbose, false)

	cfg, err := config.LoadWithOptions(config.LoadOptions{Language: opts.lang})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := readInput(opts.filePath, stdin)
	if err != nil {
		return err
	}
	if err := validatePNG(data); err != nil {
		return err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode PNG: %w", err)
	}

	start := time.Now()
	messages, bubbles, err := extractMessages(ctx, img, cfg, ocr.NewTesseract(cfg.Language, cfg.TessdataPrefix))
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if opts.jsonOutput {
		res := FileResult{
			Source:    opts.filePath,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Duration:  elapsed.Seconds(),
			Bubbles:   bubbles,
			Messages:  messages,
		}
		encoder := json.NewEncoder(stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(res); err != nil {
			return fmt.Errorf("failed to encode JSON output: %w", err)
		}
		return nil
	}

	_, err = fmt.Fprintln(stdout, strings.Join(messages, "\n"))
	return err
}

func extractMessages(ctx context.Context, img image.Image, cfg *config.Config, engine ocr.Engine) ([]string, int, error) {
	rects, err := bubble.Detect(img, bubble.Params{MinWidth: cfg.MinBubbleWidth, MinHeight: cfg.MinBubbleHeight})
	if err != nil {
		return nil, 0, fmt.Errorf("detection failed: %w", err)
	}
	th := bubble.Threshold{Lower: cfg.WhiteLower, Upper: cfg.WhiteUpper}

	messages := make([]string, 0, len(rects))
	for j, rect := range rects {
		if err := ctx.Err(); err != nil {
			return messages, len(rects), err
		}
		mask, err := bubble.MaskWhite(img, rect, th)
		if err != nil {
			log.Printf("Mask error for bubble %d %v: %v", j, rect, err)
			messages = append(messages, "")
			continue
		}
		text, err := engine.Recognize(ctx, mask)
		if err != nil {
			log.Printf("OCR error for bubble %d: %v", j, err)
			text = ""
		}
		messages = append(messages, export.Normalize(text))
	}
	return messages, len(rects), nil
}

func readInput(filePath string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}
