package boxpose

import (
	"fmt"
	"image"

	"github.com/golang/geo/r3"

	"go.viam.com/rdk/spatialmath"
)

// PoseVec is a 6-DOF pose [x, y, z, rx, ry, rz] in the robot base frame,
// meters and radians. The rotation is extrinsic-XYZ Euler, which is the
// convention the arm reports its end-effector pose in and identical to
// spatialmath's EulerAngles (roll about X, pitch about Y, yaw about Z).
type PoseVec [6]float64

// Point returns the translation component.
func (p PoseVec) Point() r3.Vector {
	return r3.Vector{X: p[0], Y: p[1], Z: p[2]}
}

// EulerAngles returns the rotation component.
func (p PoseVec) EulerAngles() *spatialmath.EulerAngles {
	return &spatialmath.EulerAngles{Roll: p[3], Pitch: p[4], Yaw: p[5]}
}

// Transform returns the pose as a rigid transform for composition.
func (p PoseVec) Transform() spatialmath.Pose {
	return spatialmath.NewPose(p.Point(), p.EulerAngles())
}

// WithOrientationOf returns a copy of p carrying o's rotation component.
func (p PoseVec) WithOrientationOf(o PoseVec) PoseVec {
	p[3], p[4], p[5] = o[3], o[4], o[5]
	return p
}

// Shifted returns a copy of p translated by delta along the given axis.
func (p PoseVec) Shifted(axis Axis, delta float64) PoseVec {
	p[int(axis)] += delta
	return p
}

func (p PoseVec) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f | %.4f %.4f %.4f]", p[0], p[1], p[2], p[3], p[4], p[5])
}

// FromTransform converts a rigid transform back to a PoseVec.
func FromTransform(pose spatialmath.Pose) PoseVec {
	pt := pose.Point()
	ea := pose.Orientation().EulerAngles()
	return PoseVec{pt.X, pt.Y, pt.Z, ea.Roll, ea.Pitch, ea.Yaw}
}

// Axis selects a translation axis of the robot base frame.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return "unknown"
	}
}

// ParseAxis converts an axis name from configuration ("x", "y" or "z") to an
// Axis value.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("unknown axis %q", s)
	}
}

// ApproachSpec describes how the prepared and final waypoints are derived
// from the object position: both are shifted along Axis in the Dir direction,
// by Retreat and Contact meters respectively. Retreat is expected to exceed
// Contact so the prepared pose sits farther back than the touch pose; the
// pipeline assumes this but leaves enforcement to configuration validation.
type ApproachSpec struct {
	Axis    Axis
	Dir     float64 // +1 or -1
	Retreat float64 // meters
	Contact float64 // meters
}

// Waypoints is the ordered triple of base-frame poses a grasp moves through:
// the object position itself, the safe prepared pose behind it, and the final
// contact pose. Prepared and Final share the end-effector orientation that
// was current when they were computed.
type Waypoints struct {
	Object   PoseVec
	Prepared PoseVec
	Final    PoseVec
}

// Observation is the 2D evidence a grasp was computed from: the pixel of
// interest, the depth sample in millimeters, and for mask mode the major-axis
// angle of the mask component (radians, image coordinates, y down).
type Observation struct {
	Pixel    image.Point
	Depth    float64
	Angle    float64
	FromMask bool
}
