package boxpose

import (
	"github.com/golang/geo/r3"

	"go.viam.com/rdk/rimage/transform"
)

// Config holds the per-camera calibration the pose pipeline needs.
type Config struct {
	Intrinsics transform.PinholeCameraIntrinsics `yaml:"color_intr"` // Color intrinsics the depth map is aligned to
	HandEye    HandEyeConfig                     `yaml:"hand_eye"`
}

// HandEyeConfig is the camera-to-gripper rigid transform from hand-eye
// calibration. Rotation is row-major 3x3; Translation is meters.
type HandEyeConfig struct {
	Rotation    [9]float64 `yaml:"rotation_matrix"`
	Translation r3.Vector  `yaml:"translation_vector"`
}

// DefaultConfig returns the calibration of the left wrist camera.
func DefaultConfig() Config {
	return Config{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  640,
			Height: 480,
			Fx:     607.5119018554688,
			Fy:     607.0875854492188,
			Ppx:    329.98211669921875,
			Ppy:    246.95748901367188,
		},
		HandEye: HandEyeConfig{
			Rotation: [9]float64{
				0.01063683, 0.99986326, -0.01266192,
				-0.99992363, 0.01055608, -0.00642741,
				-0.00629287, 0.01272932, 0.99989918,
			},
			Translation: r3.Vector{X: -0.09011056, Y: 0.02759339, Z: 0.02540262},
		},
	}
}
