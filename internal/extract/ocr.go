package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// ErrImageDecode marks engine failures caused by unreadable image bytes.
var ErrImageDecode = errors.New("image could not be decoded")

// Engine recognizes text in an image using one language locale.
type Engine interface {
	Recognize(ctx context.Context, image []byte, language string) (string, error)
}

// TesseractEngine implements Engine with the gosseract client.
type TesseractEngine struct {
	clientFactory  func() *gosseract.Client
	tessdataPrefix string
}

// NewTesseractEngine constructs a Tesseract-backed OCR engine. An empty
// tessdataPrefix leaves Tesseract's own lookup (TESSDATA_PREFIX) in charge.
func NewTesseractEngine(tessdataPrefix string) *TesseractEngine {
	return &TesseractEngine{clientFactory: gosseract.NewClient, tessdataPrefix: tessdataPrefix}
}

// Recognize runs OCR with a fresh client per call; clients are not goroutine safe.
func (e *TesseractEngine) Recognize(ctx context.Context, image []byte, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer c.Close()

	if e.tessdataPrefix != "" {
		c.TessdataPrefix = e.tessdataPrefix
	}
	if language != "" {
		if err := c.SetLanguage(language); err != nil {
			return "", fmt.Errorf("set language %s: %w", language, err)
		}
	}
	if err := c.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
