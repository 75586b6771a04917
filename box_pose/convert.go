package boxpose

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/spatialmath"
)

// ToBase maps a camera-frame point into the robot base frame by chaining the
// hand-eye transform with the end-effector pose that was current at capture
// time. The returned pose keeps current's orientation: the target is a
// position to reach, not an orientation to match.
func (p *Pipeline) ToBase(camPt r3.Vector, current PoseVec) PoseVec {
	target := spatialmath.Compose(
		current.Transform(),
		spatialmath.Compose(p.handEye, spatialmath.NewPoseFromPoint(camPt)),
	)
	pt := target.Point()
	out := current
	out[0], out[1], out[2] = pt.X, pt.Y, pt.Z
	return out
}
