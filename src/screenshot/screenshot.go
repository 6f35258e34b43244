package screenshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/kbinani/screenshot"
)

// Region represents a screen region to capture, in virtual-screen coordinates.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Bounds returns the region as an image rectangle.
func (r Region) Bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Center returns the pixel the mouse is parked on before scrolling.
func (r Region) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// CaptureRegion captures a specific region of the screen
func CaptureRegion(region Region) (*image.RGBA, error) {
	if region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}

	img, err := screenshot.CaptureRect(region.Bounds())
	if err != nil {
		return nil, fmt.Errorf("failed to capture region: %w", err)
	}
	return img, nil
}

// VirtualBounds returns the union of all active display bounds.
func VirtualBounds() (image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return image.Rectangle{}, fmt.Errorf("no active displays found")
	}
	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union, nil
}

// CheckRegion verifies the region lies entirely on the attached displays.
func CheckRegion(region Region) error {
	screen, err := VirtualBounds()
	if err != nil {
		return err
	}
	return checkWithin(region, screen)
}

func checkWithin(region Region, screen image.Rectangle) error {
	if region.Width <= 0 || region.Height <= 0 {
		return fmt.Errorf("invalid region dimensions: width=%d, height=%d", region.Width, region.Height)
	}
	if !region.Bounds().In(screen) {
		return fmt.Errorf("region %v is outside the screen %v", region.Bounds(), screen)
	}
	return nil
}

// FileName returns the name of the i-th screenshot.
func FileName(i int) string {
	return fmt.Sprintf("screenshot%d.png", i)
}

// Save writes img as PNG into dir (created when missing) and returns the path.
func Save(img image.Image, dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to encode image as PNG: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
