// Package scraper drives the capture, detect, mask, OCR, scroll loop and
// exports what it collected.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chat-scraper/src/bubble"
	"chat-scraper/src/export"
	"chat-scraper/src/framehash"
	"chat-scraper/src/ocr"
	"chat-scraper/src/screenshot"
	"chat-scraper/src/scroll"
	"chat-scraper/src/worker"
)

type CaptureFunc func(region screenshot.Region) (image.Image, error)

type SaveFunc func(img image.Image, dir, name string) (string, error)

type DetectFunc func(img image.Image) ([]image.Rectangle, error)

type MaskFunc func(img image.Image, rect image.Rectangle) ([]byte, error)

type ExportFunc func(path string, messages []string) error

type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Region        screenshot.Region
	Iterations    int
	ScrollStep    int
	Pause         time.Duration
	ScreenshotDir string
	OutputFile    string
	// SaveMasks writes each bubble's mask next to its screenshot.
	SaveMasks bool
	// Workers > 1 runs a frame's bubbles through that many OCR workers.
	Workers int

	OCR      ocr.Engine
	Scroller scroll.Scroller
	// Frames, when set, ends the run once the capture stops changing.
	Frames *framehash.Tracker

	Capture CaptureFunc
	Save    SaveFunc
	Detect  DetectFunc
	Mask    MaskFunc
	Export  ExportFunc
	Sleep   SleepFunc
}

type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopCancelled StopReason = "cancelled"
	StopStatic    StopReason = "static"
)

type Result struct {
	Iterations int
	Captures   int
	Rectangles int
	Messages   []string
	OutputFile string
	Reason     StopReason
}

// Run executes the scraping loop. Failures inside an iteration are logged
// and skipped; only invalid options and export errors are returned.
// Cancelling ctx stops the loop early, and the messages collected so far are
// still exported.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.OCR == nil {
		return Result{}, errors.New("OCR engine is required")
	}
	if opts.Iterations < 1 {
		return Result{}, fmt.Errorf("iterations must be at least 1, got %d", opts.Iterations)
	}
	if strings.TrimSpace(opts.OutputFile) == "" {
		return Result{}, errors.New("output file is required")
	}
	opts = withDefaults(opts)

	var pool *worker.Pool
	if opts.Workers > 1 {
		pool = worker.New(opts.Workers, opts.OCR)
		defer pool.Close()
	}

	var msgs export.Messages
	res := Result{OutputFile: opts.OutputFile, Reason: StopCompleted}

	for i := 0; i < opts.Iterations; i++ {
		if ctx.Err() != nil {
			res.Reason = StopCancelled
			break
		}
		res.Iterations++

		img, ok := captureStep(opts, i)
		if ok {
			res.Captures++
			if opts.Frames != nil && opts.Frames.Observe(img) {
				log.Printf("Capture %d unchanged for %d frames, stopping", i, opts.Frames.Static())
				res.Reason = StopStatic
				break
			}

			texts, rects := extractStep(ctx, opts, pool, img, i)
			res.Rectangles += rects
			msgs.Add(texts...)
			log.Printf("Capture %d: %d bubbles, %d messages total", i, rects, msgs.Len())
		}

		if ctx.Err() != nil {
			res.Reason = StopCancelled
			break
		}
		if err := opts.Scroller.Scroll(opts.Region, opts.ScrollStep); err != nil {
			log.Printf("Scroll error: %v", err)
		}
		if err := opts.Sleep(ctx, opts.Pause); err != nil {
			res.Reason = StopCancelled
			break
		}
	}

	res.Messages = msgs.All()
	if err := opts.Export(opts.OutputFile, res.Messages); err != nil {
		return res, fmt.Errorf("export failed: %w", err)
	}
	log.Printf("Exported %d messages to %s (%s)", len(res.Messages), opts.OutputFile, res.Reason)
	return res, nil
}

func captureStep(opts Options, i int) (image.Image, bool) {
	log.Printf("DEBUG: Capturing region: X=%d Y=%d Width=%d Height=%d", opts.Region.X, opts.Region.Y, opts.Region.Width, opts.Region.Height)
	img, err := opts.Capture(opts.Region)
	if err != nil {
		log.Printf("Capture error: %v", err)
		return nil, false
	}
	if _, err := opts.Save(img, opts.ScreenshotDir, screenshot.FileName(i)); err != nil {
		log.Printf("Capture error: %v", err)
		return nil, false
	}
	return img, true
}

// extractStep returns one message per detected bubble, in detection order.
// A bubble that cannot be masked or read contributes an empty message. On
// cancellation the bubbles not yet read are left out.
func extractStep(ctx context.Context, opts Options, pool *worker.Pool, img image.Image, i int) ([]string, int) {
	rects, err := opts.Detect(img)
	if err != nil {
		log.Printf("Detection error: %v", err)
		return nil, 0
	}

	masks := make([][]byte, len(rects))
	for j, rect := range rects {
		mask, err := opts.Mask(img, rect)
		if err != nil {
			log.Printf("Mask error for bubble %d %v: %v", j, rect, err)
			continue
		}
		if opts.SaveMasks {
			saveMask(opts.ScreenshotDir, i, j, mask)
		}
		masks[j] = mask
	}

	if pool != nil {
		pending := make([][]byte, 0, len(masks))
		for _, m := range masks {
			if m != nil {
				pending = append(pending, m)
			}
		}
		texts := pool.RecognizeAll(ctx, pending)
		out := make([]string, len(masks))
		k := 0
		for j, m := range masks {
			if m == nil {
				continue
			}
			// Cancelled before this bubble reached a worker.
			if k == len(texts) {
				return out[:j], len(rects)
			}
			out[j] = texts[k]
			k++
		}
		return out, len(rects)
	}

	texts := make([]string, len(masks))
	for j, m := range masks {
		if m == nil {
			continue
		}
		if ctx.Err() != nil {
			return texts[:j], len(rects)
		}
		text, err := opts.OCR.Recognize(ctx, m)
		if err != nil {
			log.Printf("OCR error for bubble %d: %v", j, err)
			continue
		}
		texts[j] = text
	}
	return texts, len(rects)
}

func saveMask(dir string, i, j int, data []byte) {
	name := filepath.Join(dir, fmt.Sprintf("screenshot%d_bubble%d.png", i, j))
	if err := os.WriteFile(name, data, 0600); err != nil {
		log.Printf("Warning: Could not save mask image: %v", err)
	}
}

func withDefaults(opts Options) Options {
	if opts.Capture == nil {
		opts.Capture = func(r screenshot.Region) (image.Image, error) {
			img, err := screenshot.CaptureRegion(r)
			if err != nil {
				return nil, err
			}
			return img, nil
		}
	}
	if opts.Save == nil {
		opts.Save = screenshot.Save
	}
	if opts.Detect == nil {
		opts.Detect = func(img image.Image) ([]image.Rectangle, error) {
			return bubble.Detect(img, bubble.DefaultParams)
		}
	}
	if opts.Mask == nil {
		opts.Mask = func(img image.Image, rect image.Rectangle) ([]byte, error) {
			return bubble.MaskWhite(img, rect, bubble.White)
		}
	}
	if opts.Scroller == nil {
		opts.Scroller = scroll.NewMouse()
	}
	if opts.Export == nil {
		opts.Export = export.WriteXLSX
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.ScreenshotDir == "" {
		opts.ScreenshotDir = "screenshots"
	}
	return opts
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
