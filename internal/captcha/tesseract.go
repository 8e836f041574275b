//go:build tesseract

package captcha

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

const tesseractWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Tesseract recognizes images with a local libtesseract.
type Tesseract struct{}

// NewTesseract returns the tesseract engine.
func NewTesseract() *Tesseract { return &Tesseract{} }

// Name implements Engine.
func (*Tesseract) Name() string { return "tesseract" }

// Recognize implements Engine.
func (*Tesseract) Recognize(_ context.Context, image []byte) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetWhitelist(tesseractWhitelist); err != nil {
		return "", 0, fmt.Errorf("tesseract whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return "", 0, fmt.Errorf("tesseract psm: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", 0, fmt.Errorf("tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("tesseract text: %w", err)
	}
	return text, 0, nil
}
