package sensor

import (
	"image"
	"time"

	"go.viam.com/rdk/rimage"
)

// Frame is one synchronized color(+depth) sample from a camera. Depth values
// are integer millimeters; Depth may be nil for color-only sources. Frames are
// never mutated after publication, so consumers treat them as read-only.
type Frame struct {
	Color *rimage.Image
	Depth *rimage.DepthMap

	// Seq is a monotonically increasing sequence number assigned by the
	// Stream when the frame enters the buffer. Frames obtained via
	// Immediate bypass the buffer and carry Seq 0.
	Seq uint64

	// Stamp is the acquisition time reported by the source.
	Stamp time.Time
}

// Bounds returns the pixel bounds of the color image, or the zero rectangle
// if the frame has no color payload.
func (f *Frame) Bounds() image.Rectangle {
	if f == nil || f.Color == nil {
		return image.Rectangle{}
	}
	return f.Color.Bounds()
}

// DepthAt returns the depth in millimeters at pixel (x, y), or 0 if the frame
// has no depth payload or the pixel is out of bounds. A zero return is also
// how the camera reports "no valid depth at this pixel", so callers treat 0 as
// an invalid sample either way.
func (f *Frame) DepthAt(x, y int) float64 {
	if f == nil || f.Depth == nil {
		return 0
	}
	if x < 0 || y < 0 || x >= f.Depth.Width() || y >= f.Depth.Height() {
		return 0
	}
	return float64(f.Depth.GetDepth(x, y))
}
