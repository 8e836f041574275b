//go:build !tesseract

package captcha

import (
	"context"
	"fmt"
)

// Tesseract is unavailable in builds without the tesseract tag.
type Tesseract struct{}

// NewTesseract returns the tesseract engine.
func NewTesseract() *Tesseract { return &Tesseract{} }

// Name implements Engine.
func (*Tesseract) Name() string { return "tesseract" }

// Recognize always fails with ErrEngineUnavailable.
func (*Tesseract) Recognize(context.Context, []byte) (string, float64, error) {
	return "", 0, fmt.Errorf("%w: built without the tesseract tag", ErrEngineUnavailable)
}
