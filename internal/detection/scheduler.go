package detection

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// Default scheduling parameters
const (
	DefaultStride      = 3
	DefaultTargetWidth = 480
)

// Result describes one scheduler cycle.
type Result struct {
	FrameIndex uint64           // 1-based cycle counter
	Ran        bool             // Detector was invoked this cycle
	Found      int              // Number of detections returned
	Detection  *types.Detection // Largest detection in native coordinates, nil if none
	Latency    time.Duration    // Detector call duration
	Err        error            // Recoverable detector fault, wraps ErrDetector
}

// Scheduler decides per frame whether to run the detector and maps its
// output back to native frame coordinates. Not safe for concurrent use:
// the frame path is single-flow.
type Scheduler struct {
	detector    Detector
	stride      uint64
	targetWidth int
	timeout     time.Duration
	counter     uint64
}

// NewScheduler creates a scheduler that runs detector every stride frames.
// timeout bounds each invocation (0 = rely on the caller's context).
func NewScheduler(detector Detector, stride, targetWidth int, timeout time.Duration) *Scheduler {
	if stride < 1 {
		stride = DefaultStride
	}
	if targetWidth < 1 {
		targetWidth = DefaultTargetWidth
	}
	return &Scheduler{
		detector:    detector,
		stride:      uint64(stride),
		targetWidth: targetWidth,
		timeout:     timeout,
	}
}

// Counter returns the index of the last processed cycle.
func (s *Scheduler) Counter() uint64 {
	return s.counter
}

// Due reports whether the next call to Next will invoke the detector.
func (s *Scheduler) Due() bool {
	return s.detector != nil && (s.counter+1)%s.stride == 0
}

// Next advances the cycle counter and, on stride multiples, runs the
// detector on a downscaled copy of img.
func (s *Scheduler) Next(ctx context.Context, img image.Image) Result {
	s.counter++
	res := Result{FrameIndex: s.counter}

	if s.detector == nil || s.counter%s.stride != 0 {
		return res
	}
	res.Ran = true

	small, scale := Downscale(img, s.targetWidth)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	dets, err := s.invoke(ctx, small)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("%w: frame %d: %v", ErrDetector, s.counter, err)
		return res
	}

	res.Found = len(dets)
	if best := Largest(dets); best != nil {
		best.Region = Remap(best.Region, scale)
		res.Detection = best
	}
	return res
}

// invoke shields the pipeline from a panicking detector.
func (s *Scheduler) invoke(ctx context.Context, img image.Image) (dets []types.Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.detector.Detect(ctx, img)
}
