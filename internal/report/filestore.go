package report

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrEmptyReport is returned when saving blank report text.
	ErrEmptyReport = errors.New("no report text to save")
	// ErrNotFound is returned when a report does not exist.
	ErrNotFound = errors.New("report not found")
)

// FileStore writes report text verbatim to plain files.
type FileStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewFileStore creates a store rooted at baseDir. The directory is
// created on first save.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Dir returns the base directory.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Save writes text to filename under the base directory. An empty
// filename gets a timestamped name. Returns the written path.
func (s *FileStore) Save(filename, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReport
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = fmt.Sprintf("report_%s.txt", timestamp)
	}
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid report filename %q", filename)
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	path := filepath.Join(s.baseDir, filename)
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

// Load reads a report back verbatim. Relative names resolve against the
// base directory when not found as given.
func (s *FileStore) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !filepath.IsAbs(path) {
		data, err = os.ReadFile(filepath.Join(s.baseDir, path))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read report: %w", err)
	}
	return string(data), nil
}

// List returns saved report filenames, newest name first.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".txt") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
