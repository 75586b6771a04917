package boxpose

import (
	"math"

	"github.com/golang/geo/r3"
)

// BackProject lifts an observation into the camera frame. Depth is in
// millimeters; the result is in meters, with each coordinate truncated to
// whole millimeters before scaling.
func (p *Pipeline) BackProject(obs Observation) (r3.Vector, error) {
	if obs.Depth <= 0 {
		return r3.Vector{}, ErrZeroDepth
	}
	x, y, z := p.intrinsics.PixelToPoint(float64(obs.Pixel.X), float64(obs.Pixel.Y), obs.Depth)
	return r3.Vector{
		X: math.Trunc(x) * 0.001,
		Y: math.Trunc(y) * 0.001,
		Z: math.Trunc(z) * 0.001,
	}, nil
}
