// Package bubble finds chat bubbles in a capture and isolates their
// white text for OCR.
package bubble

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrEmptyCrop is returned when a rectangle does not overlap the image.
var ErrEmptyCrop = errors.New("rectangle outside image bounds")

// Params controls bubble detection.
type Params struct {
	MinWidth  int
	MinHeight int
}

// DefaultParams match the chat pane layout the tool is tuned for.
var DefaultParams = Params{MinWidth: 500, MinHeight: 135}

// Detect returns the bounding rectangles of the outer contours in img that
// are at least MinWidth x MinHeight, in contour order.
func Detect(img image.Image, p Params) ([]image.Rectangle, error) {
	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, 50, 150)

	// Close gaps in the bubble outline so each bubble yields one contour.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5))
	defer kernel.Close()
	closed := gocv.NewMat()
	defer closed.Close()
	gocv.MorphologyEx(edges, &closed, gocv.MorphClose, kernel)

	contours := gocv.FindContours(closed, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	rects := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		rects = append(rects, gocv.BoundingRect(contours.At(i)))
	}
	return FilterRects(rects, p.MinWidth, p.MinHeight), nil
}

// FilterRects keeps rectangles with width >= minW and height >= minH.
func FilterRects(rects []image.Rectangle, minW, minH int) []image.Rectangle {
	out := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		if r.Dx() >= minW && r.Dy() >= minH {
			out = append(out, r)
		}
	}
	return out
}

// Threshold is an inclusive per-channel color range.
type Threshold struct {
	Lower uint8
	Upper uint8
}

// White keeps near-white text pixels.
var White = Threshold{Lower: 230, Upper: 255}

// MaskWhite crops rect out of img and returns a grayscale PNG in which pixels
// whose three channels all fall inside th are 255 and everything else is 0.
func MaskWhite(img image.Image, rect image.Rectangle, th Threshold) ([]byte, error) {
	crop := rect.Intersect(img.Bounds())
	if crop.Empty() {
		return nil, ErrEmptyCrop
	}

	src, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer src.Close()

	// Mat coordinates start at zero regardless of img.Bounds().Min.
	box := src.Region(crop.Sub(img.Bounds().Min))
	defer box.Close()

	lower := gocv.NewScalar(float64(th.Lower), float64(th.Lower), float64(th.Lower), 0)
	upper := gocv.NewScalar(float64(th.Upper), float64(th.Upper), float64(th.Upper), 0)
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(box, lower, upper, &mask)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, mask)
	if err != nil {
		return nil, fmt.Errorf("encode mask: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases C memory that buf.Close releases.
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
