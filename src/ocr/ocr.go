package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine turns an encoded image into text.
type Engine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// client is the subset of *gosseract.Client used here.
type client interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	SetTessdataPrefix(prefix string) error
	Text() (string, error)
	Close() error
}

// Tesseract recognizes text with a fixed language through gosseract.
type Tesseract struct {
	Language       string
	TessdataPrefix string

	newClient func() client
}

// NewTesseract returns an engine for language (e.g. "chi_sim"). An empty
// tessdataPrefix leaves Tesseract's TESSDATA_PREFIX lookup in effect.
func NewTesseract(language, tessdataPrefix string) *Tesseract {
	return &Tesseract{
		Language:       language,
		TessdataPrefix: tessdataPrefix,
		newClient:      func() client { return gosseract.NewClient() },
	}
}

// Recognize runs OCR on a PNG (or any format Leptonica reads) and returns
// the text with leading and trailing whitespace removed.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", fmt.Errorf("empty image")
	}

	c := t.newClient()
	defer c.Close()

	if t.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if t.Language != "" {
		if err := c.SetLanguage(t.Language); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
