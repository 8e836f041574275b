// Package snapshot writes debug artifacts (page HTML, captcha images and
// label logs) under a local directory.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Config captures the parameters for the snapshot store.
type Config struct {
	// BaseDir is the root directory where artifacts are written.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store writes artifacts to the local filesystem.
type Store struct {
	baseDir string
	now     func() time.Time

	appendMu sync.Mutex
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// New creates a snapshot store rooted at cfg.BaseDir, creating it if needed.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}
	return &Store{baseDir: cfg.BaseDir, now: time.Now}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.baseDir
}

// Put writes data to path relative to the base directory and returns the
// absolute file path.
func (s *Store) Put(_ context.Context, path string, data []byte) (string, error) {
	fullPath, err := s.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fullPath, nil
}

// Exists reports whether path already exists under the base directory.
func (s *Store) Exists(path string) bool {
	fullPath, err := s.resolve(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// AppendJSON appends v as one JSON line to path.
func (s *Store) AppendJSON(_ context.Context, path string, v any) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json line: %w", err)
	}
	s.appendMu.Lock()
	defer s.appendMu.Unlock()
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append %s: %w", path, err)
	}
	return nil
}

// DumpHTML stores a page under a timestamped, step-labelled name such as
// "20240901-080000.123_select_K001.html".
func (s *Store) DumpHTML(ctx context.Context, step string, html string) (string, error) {
	name := fmt.Sprintf("%s_%s.html",
		s.now().Format("20060102-150405.000"),
		sanitize(step),
	)
	return s.Put(ctx, name, []byte(html))
}

func (s *Store) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Join(s.baseDir, path)
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}

func sanitize(step string) string {
	step = unsafeName.ReplaceAllString(strings.TrimSpace(step), "_")
	step = strings.Trim(step, "_")
	if step == "" {
		return "page"
	}
	return step
}

// Clean removes every artifact under the base directory but keeps the
// directory itself.
func (s *Store) Clean() error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("read base directory: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.baseDir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}
