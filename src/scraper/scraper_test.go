package scraper

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chat-scraper/src/framehash"
	"chat-scraper/src/screenshot"
)

type fakeOCR struct {
	fail map[string]bool
}

func (f *fakeOCR) Recognize(ctx context.Context, data []byte) (string, error) {
	key := string(data)
	if f.fail[key] {
		return "", errors.New("tesseract failed")
	}
	return "text:" + key, nil
}

type fakeScroller struct {
	calls int
	steps []int
}

func (f *fakeScroller) Scroll(region screenshot.Region, step int) error {
	f.calls++
	f.steps = append(f.steps, step)
	return nil
}

type harness struct {
	opts     Options
	scroller *fakeScroller
	exported []string
	path     string
	saved    []string
	sleeps   int
}

func newHarness(t *testing.T, iterations int) *harness {
	t.Helper()
	h := &harness{scroller: &fakeScroller{}}
	h.opts = Options{
		Region:        screenshot.Region{X: 1360, Y: 0, Width: 540, Height: 940},
		Iterations:    iterations,
		ScrollStep:    800,
		Pause:         500 * time.Millisecond,
		ScreenshotDir: t.TempDir(),
		OutputFile:    "out.xlsx",
		OCR:           &fakeOCR{},
		Scroller:      h.scroller,
		Capture: func(r screenshot.Region) (image.Image, error) {
			return image.NewRGBA(image.Rect(0, 0, r.Width, r.Height)), nil
		},
		Save: func(img image.Image, dir, name string) (string, error) {
			h.saved = append(h.saved, name)
			return filepath.Join(dir, name), nil
		},
		Detect: func(img image.Image) ([]image.Rectangle, error) {
			return []image.Rectangle{image.Rect(0, 0, 520, 140), image.Rect(0, 200, 520, 400)}, nil
		},
		Mask: func(img image.Image, rect image.Rectangle) ([]byte, error) {
			return []byte(fmt.Sprintf("%d", rect.Min.Y)), nil
		},
		Export: func(path string, messages []string) error {
			h.path = path
			h.exported = messages
			return nil
		},
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleeps++
			return ctx.Err()
		},
	}
	return h
}

func TestRunCollectsInOrderAndExports(t *testing.T) {
	h := newHarness(t, 3)

	res, err := Run(context.Background(), h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"text:0", "text:200", "text:0", "text:200", "text:0", "text:200"}
	if strings.Join(h.exported, ",") != strings.Join(want, ",") {
		t.Errorf("exported %v, want %v", h.exported, want)
	}
	if h.path != "out.xlsx" {
		t.Errorf("exported to %q", h.path)
	}
	if res.Iterations != 3 || res.Captures != 3 || res.Rectangles != 6 || res.Reason != StopCompleted {
		t.Errorf("unexpected result %+v", res)
	}
	if h.scroller.calls != 3 || h.sleeps != 3 {
		t.Errorf("expected a scroll and a pause per iteration, got %d scrolls, %d sleeps", h.scroller.calls, h.sleeps)
	}
	if h.scroller.steps[0] != 800 {
		t.Errorf("expected scroll step 800, got %d", h.scroller.steps[0])
	}
	if strings.Join(h.saved, ",") != "screenshot0.png,screenshot1.png,screenshot2.png" {
		t.Errorf("unexpected screenshot names %v", h.saved)
	}
}

func TestRunCaptureFailureStillScrolls(t *testing.T) {
	h := newHarness(t, 2)
	calls := 0
	h.opts.Capture = func(r screenshot.Region) (image.Image, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("no display")
		}
		return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
	}

	res, err := Run(context.Background(), h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Captures != 1 {
		t.Errorf("expected 1 successful capture, got %d", res.Captures)
	}
	if len(h.exported) != 2 {
		t.Errorf("expected messages from the second capture only, got %v", h.exported)
	}
	if h.scroller.calls != 2 {
		t.Errorf("expected scrolling after a failed capture, got %d scrolls", h.scroller.calls)
	}
}

func TestRunSaveFailureSkipsCapture(t *testing.T) {
	h := newHarness(t, 1)
	h.opts.Save = func(img image.Image, dir, name string) (string, error) {
		return "", errors.New("disk full")
	}

	res, err := Run(context.Background(), h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Captures != 0 || len(h.exported) != 0 {
		t.Errorf("expected capture to be skipped, got %+v", res)
	}
}

func TestRunDetectionFailureSkipsFrame(t *testing.T) {
	h := newHarness(t, 2)
	h.opts.Detect = func(img image.Image) ([]image.Rectangle, error) {
		return nil, errors.New("opencv error")
	}

	res, err := Run(context.Background(), h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(h.exported) != 0 || res.Rectangles != 0 {
		t.Errorf("expected nothing collected, got %v", h.exported)
	}
	if h.scroller.calls != 2 {
		t.Errorf("expected 2 scrolls, got %d", h.scroller.calls)
	}
}

func TestRunOCRAndMaskFailuresRecordEmptyMessages(t *testing.T) {
	h := newHarness(t, 1)
	h.opts.OCR = &fakeOCR{fail: map[string]bool{"0": true}}
	h.opts.Detect = func(img image.Image) ([]image.Rectangle, error) {
		return []image.Rectangle{image.Rect(0, 0, 520, 140), image.Rect(0, 200, 520, 400), image.Rect(0, 500, 520, 700)}, nil
	}
	h.opts.Mask = func(img image.Image, rect image.Rectangle) ([]byte, error) {
		if rect.Min.Y == 500 {
			return nil, errors.New("bad crop")
		}
		return []byte(fmt.Sprintf("%d", rect.Min.Y)), nil
	}

	if _, err := Run(context.Background(), h.opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	want := []string{"", "text:200", ""}
	if len(h.exported) != 3 || h.exported[0] != want[0] || h.exported[1] != want[1] || h.exported[2] != want[2] {
		t.Errorf("exported %q, want %q", h.exported, want)
	}
}

func TestRunCancelledStillExports(t *testing.T) {
	h := newHarness(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	h.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps++
		if h.sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	}

	res, err := Run(ctx, h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Reason != StopCancelled {
		t.Errorf("expected cancelled, got %s", res.Reason)
	}
	if res.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", res.Iterations)
	}
	if len(h.exported) != 4 {
		t.Errorf("expected messages from 2 captures to be exported, got %v", h.exported)
	}
}

type cancellingOCR struct {
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingOCR) Recognize(ctx context.Context, data []byte) (string, error) {
	c.calls++
	c.cancel()
	return "text:" + string(data), nil
}

func TestRunCancelledMidFrameDropsUnreadBubbles(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	engine := &cancellingOCR{cancel: cancel}
	h.opts.OCR = engine

	res, err := Run(ctx, h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Reason != StopCancelled {
		t.Errorf("expected cancelled, got %s", res.Reason)
	}
	if engine.calls != 1 {
		t.Errorf("expected OCR to stop after cancellation, got %d calls", engine.calls)
	}
	if len(h.exported) != 1 || h.exported[0] != "text:0" {
		t.Errorf("expected only the bubble read before cancellation, got %q", h.exported)
	}
	if res.Rectangles != 2 {
		t.Errorf("expected both detected bubbles counted, got %d", res.Rectangles)
	}
}

func TestRunStopsOnStaticFrames(t *testing.T) {
	h := newHarness(t, 10)
	frame := image.NewRGBA(image.Rect(0, 0, 64, 64))
	draw.Draw(frame, image.Rect(0, 0, 32, 64), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	h.opts.Capture = func(r screenshot.Region) (image.Image, error) { return frame, nil }
	h.opts.Frames = framehash.NewTracker(1, 0)

	res, err := Run(context.Background(), h.opts)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Reason != StopStatic {
		t.Fatalf("expected static stop, got %s", res.Reason)
	}
	if res.Iterations != 2 {
		t.Errorf("expected to stop on the second capture, got %d iterations", res.Iterations)
	}
	if len(h.exported) != 2 {
		t.Errorf("expected only the first capture's messages, got %v", h.exported)
	}
}

func TestRunExportFailure(t *testing.T) {
	h := newHarness(t, 1)
	boom := errors.New("permission denied")
	h.opts.Export = func(path string, messages []string) error { return boom }

	_, err := Run(context.Background(), h.opts)
	if !errors.Is(err, boom) {
		t.Errorf("expected export error, got %v", err)
	}
}

func TestRunValidatesOptions(t *testing.T) {
	h := newHarness(t, 0)
	if _, err := Run(context.Background(), h.opts); err == nil {
		t.Error("expected error for zero iterations")
	}

	h = newHarness(t, 1)
	h.opts.OCR = nil
	if _, err := Run(context.Background(), h.opts); err == nil {
		t.Error("expected error without OCR engine")
	}

	h = newHarness(t, 1)
	h.opts.OutputFile = " "
	if _, err := Run(context.Background(), h.opts); err == nil {
		t.Error("expected error without output file")
	}
}

func TestRunSavesMasks(t *testing.T) {
	h := newHarness(t, 1)
	h.opts.SaveMasks = true

	if _, err := Run(context.Background(), h.opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(h.opts.ScreenshotDir, "screenshot0_bubble1.png"))
	if err != nil {
		t.Fatalf("expected mask file: %v", err)
	}
	if string(data) != "200" {
		t.Errorf("unexpected mask content %q", data)
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("unexpected error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("cancelled sleep should return immediately")
	}
}

func TestRunWithWorkersKeepsBubbleOrder(t *testing.T) {
	h := newHarness(t, 2)
	h.opts.Workers = 3
	h.opts.OCR = &fakeOCR{fail: map[string]bool{"200": true}}
	h.opts.Detect = func(img image.Image) ([]image.Rectangle, error) {
		return []image.Rectangle{image.Rect(0, 0, 520, 140), image.Rect(0, 200, 520, 400), image.Rect(0, 500, 520, 700), image.Rect(0, 800, 520, 940)}, nil
	}
	h.opts.Mask = func(img image.Image, rect image.Rectangle) ([]byte, error) {
		if rect.Min.Y == 500 {
			return nil, errors.New("bad crop")
		}
		return []byte(fmt.Sprintf("%d", rect.Min.Y)), nil
	}

	if _, err := Run(context.Background(), h.opts); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	frame := []string{"text:0", "", "", "text:800"}
	want := append(append([]string{}, frame...), frame...)
	if strings.Join(h.exported, "|") != strings.Join(want, "|") {
		t.Errorf("exported %q, want %q", h.exported, want)
	}
}
