package ui

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/JakeFAU/coursebot/internal/enroll"
)

// Progress draws a single bar for a bulk selection run.
type Progress struct {
	p   *mpb.Progress
	bar *mpb.Bar

	selected atomic.Int64
	last     atomic.Value
}

// NewProgress starts a bar over total candidates writing to w.
func NewProgress(w io.Writer, label string, total int) *Progress {
	pr := &Progress{
		p: mpb.New(
			mpb.WithWidth(48),
			mpb.WithOutput(w),
			mpb.WithRefreshRate(120*time.Millisecond),
		),
	}
	pr.last.Store("")
	pr.bar = pr.p.New(
		int64(total),
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(label+"  "),
			decor.CountersNoUnit("%d/%d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string {
				return fmt.Sprintf(" | ok %d", pr.selected.Load())
			}),
			decor.Any(func(decor.Statistics) string {
				return " | " + pr.last.Load().(string)
			}),
		),
	)
	return pr
}

// Observe advances the bar. It has the enroll.Observer signature.
func (pr *Progress) Observe(done, total int, r enroll.CourseResult) {
	if r.Result == enroll.ResultSelected || r.Result == enroll.ResultWouldSelect {
		pr.selected.Add(1)
	}
	pr.last.Store(fmt.Sprintf("%s %s", r.Course.ID, r.Result))
	pr.bar.SetTotal(int64(total), false)
	pr.bar.SetCurrent(int64(done))
}

// Wait completes the bar and waits for the final render.
func (pr *Progress) Wait() {
	pr.bar.SetTotal(-1, true)
	pr.p.Wait()
}
