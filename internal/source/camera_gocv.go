//go:build gocv

package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// Camera reads frames from a local capture device through OpenCV.
type Camera struct {
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	mat      gocv.Mat
	frameNum uint64
}

// OpenCamera opens the capture device and requests the given resolution.
func OpenCamera(device, width, height int) (Source, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrNoCamera, device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d not opened", ErrNoCamera, device)
	}
	if width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(width))
	}
	if height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}

	return &Camera{capture: capture, mat: gocv.NewMat()}, nil
}

// Read grabs the next frame from the device.
func (c *Camera) Read(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrExhausted
	}
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("camera read failed")
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("camera frame conversion: %w", err)
	}

	c.frameNum++
	return types.NewFrame(img, time.Now(), c.frameNum), nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.mat.Close()
	c.capture = nil
	return err
}
