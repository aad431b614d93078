//go:build !gocv

package source

import "fmt"

// OpenCamera reports ErrNoCamera: this build has no OpenCV backend.
// Rebuild with -tags gocv to enable webcam capture.
func OpenCamera(device, width, height int) (Source, error) {
	return nil, fmt.Errorf("%w: device %d: built without gocv", ErrNoCamera, device)
}
