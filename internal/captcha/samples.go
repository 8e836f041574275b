package captcha

import (
	"context"
	"time"

	"github.com/JakeFAU/coursebot/internal/hash/sha256"
	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/snapshot"
)

// LabelsFile is the JSON-lines file that pairs stored images with answers.
const LabelsFile = "labels.jsonl"

// SampleArchive keeps captcha images content-addressed for later training.
type SampleArchive struct {
	store  *snapshot.Store
	hasher *sha256.Hasher
	now    func() time.Time
}

// Label is one line of the labels file.
type Label struct {
	File       string    `json:"file"`
	Code       string    `json:"code"`
	Engine     string    `json:"engine"`
	Confidence float64   `json:"confidence"`
	Manual     bool      `json:"manual"`
	Labeled    time.Time `json:"labeled"`
}

// NewSampleArchive stores samples under dir.
func NewSampleArchive(dir string) (*SampleArchive, error) {
	store, err := snapshot.New(snapshot.Config{BaseDir: dir})
	if err != nil {
		return nil, err
	}
	return &SampleArchive{store: store, hasher: sha256.New(), now: time.Now}, nil
}

// Save writes image once and returns its file name.
func (a *SampleArchive) Save(ctx context.Context, image []byte) (string, error) {
	name := a.hasher.Name(image, ".png")
	if a.store.Exists(name) {
		return name, nil
	}
	if _, err := a.store.Put(ctx, name, image); err != nil {
		return "", err
	}
	return name, nil
}

// Label appends the accepted answer for a stored image.
func (a *SampleArchive) Label(ctx context.Context, file string, answer portal.CaptchaAnswer) error {
	return a.store.AppendJSON(ctx, LabelsFile, Label{
		File:       file,
		Code:       answer.Code,
		Engine:     answer.Engine,
		Confidence: answer.Confidence,
		Manual:     answer.Manual,
		Labeled:    a.now().UTC(),
	})
}
