package detection

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/dj-oyu/toastmaster-toolbox/coach-server/pkg/types"
)

// Downscale converts img to NRGBA and resizes it to targetWidth, preserving
// aspect ratio. It returns the resized image and scale = targetWidth/srcWidth.
func Downscale(img image.Image, targetWidth int) (*image.NRGBA, float64) {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW <= 0 || srcH <= 0 || targetWidth <= 0 {
		return imaging.Clone(img), 1
	}

	scale := float64(targetWidth) / float64(srcW)
	h := int(float64(srcH) * scale)
	if h < 1 {
		h = 1
	}

	// Resize always yields NRGBA, which is the detector's input format.
	return imaging.Resize(img, targetWidth, h, imaging.Box), scale
}

// Remap converts a region from downscaled to native coordinates by dividing
// each component by scale and truncating toward zero.
func Remap(r types.Region, scale float64) types.Region {
	if scale <= 0 {
		return r
	}
	return types.Region{
		X: int(float64(r.X) / scale),
		Y: int(float64(r.Y) / scale),
		W: int(float64(r.W) / scale),
		H: int(float64(r.H) / scale),
	}
}
