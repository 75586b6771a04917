package boxpose

import "errors"

var (
	// ErrZeroDepth is returned when the depth camera has no valid sample at
	// the point of interest, so the target cannot be back-projected.
	ErrZeroDepth = errors.New("no valid depth at target point")

	// ErrEmptyMask is returned when a segmentation mask has no foreground pixels.
	ErrEmptyMask = errors.New("segmentation mask is empty")

	// ErrNilDepthMap is returned when a nil depth map is passed.
	ErrNilDepthMap = errors.New("depth map is nil")

	// ErrPointOutOfBounds is returned when the point of interest lies outside the image.
	ErrPointOutOfBounds = errors.New("target point outside image bounds")

	// ErrMaskShapeMismatch is returned when mask and depth map dimensions disagree.
	ErrMaskShapeMismatch = errors.New("mask and depth map dimensions differ")

	// ErrBadCalibration is returned when the configured intrinsics or hand-eye
	// transform cannot produce a valid pipeline.
	ErrBadCalibration = errors.New("invalid camera calibration")
)
