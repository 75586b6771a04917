package boxpose

import (
	"fmt"

	"go.viam.com/rdk/rimage/transform"
	"go.viam.com/rdk/spatialmath"
)

// Pipeline turns 2D detections on an aligned color/depth pair into robot
// base-frame grasp waypoints. It is pure computation: callers own image
// acquisition and motion.
type Pipeline struct {
	intrinsics *transform.PinholeCameraIntrinsics
	handEye    spatialmath.Pose
}

// NewPipeline validates the calibration and builds the pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	intr := cfg.Intrinsics
	if err := intr.CheckValid(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCalibration, err)
	}
	rot, err := spatialmath.NewRotationMatrix(cfg.HandEye.Rotation[:])
	if err != nil {
		return nil, fmt.Errorf("%w: hand-eye rotation: %v", ErrBadCalibration, err)
	}
	return &Pipeline{
		intrinsics: &intr,
		handEye:    spatialmath.NewPose(cfg.HandEye.Translation, rot),
	}, nil
}

// Intrinsics exposes the validated color intrinsics.
func (p *Pipeline) Intrinsics() *transform.PinholeCameraIntrinsics {
	return p.intrinsics
}
