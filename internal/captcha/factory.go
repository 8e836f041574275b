package captcha

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/config"
)

// EngineByName builds a named engine.
func EngineByName(name string, cfg config.CaptchaConfig) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "remote", "ddddocr":
		return NewRemote(cfg.RemoteEndpoint, nil), nil
	case "tesseract":
		return NewTesseract(), nil
	default:
		return nil, fmt.Errorf("unknown captcha engine %q", name)
	}
}

// New builds a Solver from configuration. Unknown engine names are skipped
// with a warning. Manual entry is the fallback until SetManualFallback(false).
func New(cfg config.CaptchaConfig, logger *zap.Logger) (*Solver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engines := make([]Engine, 0, len(cfg.Engines))
	for _, name := range cfg.Engines {
		engine, err := EngineByName(name, cfg)
		if err != nil {
			logger.Warn("skipping captcha engine", zap.Error(err))
			continue
		}
		engines = append(engines, engine)
	}

	var samples *SampleArchive
	if cfg.SampleDir != "" {
		archive, err := NewSampleArchive(cfg.SampleDir)
		if err != nil {
			return nil, fmt.Errorf("captcha samples: %w", err)
		}
		samples = archive
	}

	return NewSolver(Options{
		Mode:           cfg.Mode,
		MinConfidence:  cfg.MinConfidence,
		Engines:        engines,
		Manual:         NewManual(""),
		ManualFallback: true,
		Samples:        samples,
		Logger:         logger,
	}), nil
}
