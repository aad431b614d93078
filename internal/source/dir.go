package source

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// DirSource replays the still images of a directory in name order.
type DirSource struct {
	mu       sync.Mutex
	files    []string
	next     int
	loop     bool
	interval time.Duration
	last     time.Time
	frameNum uint64
	closed   bool
}

// NewDirSource lists the images under dir. interval paces reads
// (0 = as fast as possible).
func NewDirSource(dir string, loop bool, interval time.Duration) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrExhausted, dir)
	}

	return &DirSource{files: files, loop: loop, interval: interval}, nil
}

// Len returns the number of images.
func (s *DirSource) Len() int {
	return len(s.files)
}

// Read decodes the next image. A decode failure consumes the file and is
// returned so the caller can count it and continue.
func (s *DirSource) Read(ctx context.Context) (*types.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrExhausted
	}
	if s.next >= len(s.files) {
		if !s.loop {
			return nil, ErrExhausted
		}
		s.next = 0
	}

	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	path := s.files[s.next]
	s.next++

	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	s.frameNum++
	return types.NewFrame(img, time.Now(), s.frameNum), nil
}

func (s *DirSource) pace(ctx context.Context) error {
	if s.interval > 0 && !s.last.IsZero() {
		if wait := s.interval - time.Since(s.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.last = time.Now()
	return nil
}

// Close stops the source; later reads report ErrExhausted.
func (s *DirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
