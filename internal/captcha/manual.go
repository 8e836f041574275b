package captcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// Manual asks a human to read the image. The image is written to a temporary
// file whose path is shown in the prompt.
type Manual struct {
	tempDir string
	stdin   io.ReadCloser
	stdout  io.WriteCloser
}

// NewManual returns a terminal prompt engine. An empty tempDir uses the
// system default.
func NewManual(tempDir string) *Manual {
	return &Manual{tempDir: tempDir}
}

// Name implements Engine.
func (*Manual) Name() string { return "manual" }

// Recognize implements Engine.
func (m *Manual) Recognize(ctx context.Context, image []byte) (string, float64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	f, err := os.CreateTemp(m.tempDir, "captcha-*.png")
	if err != nil {
		return "", 0, fmt.Errorf("create captcha file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(image); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("write captcha file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close captcha file: %w", err)
	}

	prompt := promptui.Prompt{
		Label: fmt.Sprintf("Captcha saved to %s, enter code", path),
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("code must not be empty")
			}
			return nil
		},
		Stdin:  m.stdin,
		Stdout: m.stdout,
	}
	code, err := prompt.Run()
	if err != nil {
		return "", 0, fmt.Errorf("captcha prompt: %w", err)
	}
	return code, 1, nil
}
