// Package detection turns an expensive, intermittently-run face/emotion
// detector into a smooth per-frame estimate.
package detection

import (
	"context"
	"errors"
	"image"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// ErrDetector wraps every fault raised by a Detector invocation.
var ErrDetector = errors.New("detector failed")

// Detector is the opaque detection model boundary. Implementations receive
// an already downscaled image and return regions in that image's coordinates.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]types.Detection, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]types.Detection, error)

// Detect calls f(ctx, img).
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]types.Detection, error) {
	return f(ctx, img)
}

// Largest returns the detection with the largest region area.
// Ties keep the first encountered. Returns nil for an empty slice.
func Largest(dets []types.Detection) *types.Detection {
	if len(dets) == 0 {
		return nil
	}
	best := 0
	for i := 1; i < len(dets); i++ {
		if dets[i].Region.Area() > dets[best].Region.Area() {
			best = i
		}
	}
	d := dets[best]
	return &d
}
