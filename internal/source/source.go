// Package source supplies frames to the pipeline.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

var (
	// ErrExhausted reports that a source has no more frames.
	ErrExhausted = errors.New("frame source exhausted")
	// ErrNoCamera is returned when no camera backend is available.
	ErrNoCamera = errors.New("camera unavailable")
)

// Source kinds
const (
	KindDir    = "dir"
	KindCamera = "camera"
)

// Source yields frames at its own pace. Read blocks until a frame is
// available, ctx is done, or the source fails. A failed read is not
// fatal; ErrExhausted means no further frames will come.
type Source interface {
	Read(ctx context.Context) (*types.Frame, error)
	Close() error
}

// Options configures a source.
type Options struct {
	Dir      string        // Directory of still images (dir)
	Loop     bool          // Restart from the first image at the end (dir)
	Interval time.Duration // Pacing between frames (dir)
	Device   int           // Capture device index (camera)
	Width    int           // Requested capture width (camera)
	Height   int           // Requested capture height (camera)
}

// Open creates a source of the given kind.
func Open(kind string, opts Options) (Source, error) {
	switch kind {
	case KindDir, "":
		src, err := NewDirSource(opts.Dir, opts.Loop, opts.Interval)
		if err != nil {
			return nil, err
		}
		return src, nil
	case KindCamera:
		return OpenCamera(opts.Device, opts.Width, opts.Height)
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}
