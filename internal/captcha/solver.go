package captcha

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/metrics"
	"github.com/JakeFAU/coursebot/internal/portal"
)

const (
	// ModeAuto runs the engine chain before falling back to manual entry.
	ModeAuto = "auto"
	// ModeManual skips the engines.
	ModeManual = "manual"

	processedConfidence = 0.95
	originalConfidence  = 0.8
)

// ErrEngineUnavailable is returned by engines that were not compiled in or
// configured.
var ErrEngineUnavailable = errors.New("captcha engine unavailable")

// Engine recognizes the text in one image. A zero confidence means the
// engine does not report one.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, image []byte) (code string, confidence float64, err error)
}

// Options configures a Solver.
type Options struct {
	Mode          string
	MinConfidence float64
	Engines       []Engine
	// Manual is consulted when every engine fails and ManualFallback is set.
	Manual Engine
	// ManualFallback enables prompting through Manual.
	ManualFallback bool
	Samples        *SampleArchive
	Logger         *zap.Logger
}

// Solver runs the engine chain.
type Solver struct {
	opts   Options
	logger *zap.Logger
	manual atomic.Bool
}

var _ portal.CaptchaSolver = (*Solver)(nil)

// NewSolver builds a solver from opts.
func NewSolver(opts Options) *Solver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}
	s := &Solver{opts: opts, logger: logger}
	s.manual.Store(opts.ManualFallback)
	return s
}

// SetManualFallback turns the manual prompt on or off for later Solve calls.
func (s *Solver) SetManualFallback(on bool) {
	s.manual.Store(on)
}

// ManualFallback reports whether Solve may prompt for manual entry.
func (s *Solver) ManualFallback() bool {
	return s.manual.Load() && s.opts.Manual != nil
}

// Solve returns a code for image or portal.ErrCaptchaUnsolved.
func (s *Solver) Solve(ctx context.Context, image []byte) (portal.CaptchaAnswer, error) {
	sample := s.archive(ctx, image)

	if s.opts.Mode != ModeManual {
		if answer, ok := s.runEngines(ctx, image); ok {
			s.label(ctx, sample, answer)
			return answer, nil
		}
	}

	if !s.ManualFallback() {
		return portal.CaptchaAnswer{}, portal.ErrCaptchaUnsolved
	}
	code, _, err := s.opts.Manual.Recognize(ctx, image)
	code = Normalize(code)
	if err != nil || code == "" {
		metrics.ObserveCaptcha(s.opts.Manual.Name(), false)
		if err == nil {
			err = errors.New("empty input")
		}
		return portal.CaptchaAnswer{}, fmt.Errorf("%w: %v", portal.ErrCaptchaUnsolved, err)
	}
	metrics.ObserveCaptcha(s.opts.Manual.Name(), true)
	answer := portal.CaptchaAnswer{Code: code, Confidence: 1, Engine: s.opts.Manual.Name(), Manual: true}
	s.label(ctx, sample, answer)
	return answer, nil
}

func (s *Solver) runEngines(ctx context.Context, original []byte) (portal.CaptchaAnswer, bool) {
	processed, err := Preprocess(original)
	if err != nil {
		s.logger.Debug("captcha preprocess failed", zap.Error(err))
	}

	type variant struct {
		data       []byte
		confidence float64
	}
	variants := make([]variant, 0, 2)
	if processed != nil {
		variants = append(variants, variant{processed, processedConfidence})
	}
	variants = append(variants, variant{original, originalConfidence})

	for _, engine := range s.opts.Engines {
		for _, v := range variants {
			if ctx.Err() != nil {
				return portal.CaptchaAnswer{}, false
			}
			code, reported, err := engine.Recognize(ctx, v.data)
			if err != nil {
				s.logger.Debug("captcha engine failed",
					zap.String("engine", engine.Name()),
					zap.Error(err),
				)
				metrics.ObserveCaptcha(engine.Name(), false)
				if errors.Is(err, ErrEngineUnavailable) {
					break
				}
				continue
			}
			code = Normalize(code)
			confidence := v.confidence
			if reported > 0 && reported < confidence {
				confidence = reported
			}
			if code == "" || confidence <= s.opts.MinConfidence {
				metrics.ObserveCaptcha(engine.Name(), false)
				continue
			}
			metrics.ObserveCaptcha(engine.Name(), true)
			s.logger.Info("captcha recognized",
				zap.String("engine", engine.Name()),
				zap.String("code", code),
				zap.Float64("confidence", confidence),
			)
			return portal.CaptchaAnswer{Code: code, Confidence: confidence, Engine: engine.Name()}, true
		}
	}
	return portal.CaptchaAnswer{}, false
}

func (s *Solver) archive(ctx context.Context, image []byte) string {
	if s.opts.Samples == nil {
		return ""
	}
	name, err := s.opts.Samples.Save(ctx, image)
	if err != nil {
		s.logger.Warn("captcha sample not saved", zap.Error(err))
		return ""
	}
	return name
}

func (s *Solver) label(ctx context.Context, sample string, answer portal.CaptchaAnswer) {
	if s.opts.Samples == nil || sample == "" {
		return
	}
	if err := s.opts.Samples.Label(ctx, sample, answer); err != nil {
		s.logger.Warn("captcha label not saved", zap.Error(err))
	}
}

// Normalize trims a recognized code and drops any embedded whitespace.
func Normalize(code string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
}
