package robot2

import (
	"fmt"
	"os"
	"time"

	"go.viam.com/rdk/rimage/transform"
	"gopkg.in/yaml.v3"

	boxpose "github.com/IcedVodka/robot2/box_pose"
	boxvision "github.com/IcedVodka/robot2/box_vision"
)

// JointVec is a full set of arm joint angles in degrees, the unit joints are
// configured and reported in. The arm driver converts to radians at the
// hardware boundary.
type JointVec []float64

// Config holds the full configuration for the dual-arm pick-and-place
// machine. It is immutable after LoadConfig; everything downstream receives
// it by injection.
type Config struct {
	Arms      ArmsConfig       `yaml:"arms"`
	Cameras   CamerasConfig    `yaml:"cameras"`
	Vision    boxvision.Config `yaml:"vision"`
	Segmenter SegmenterConfig  `yaml:"segmenter"`
	Resample  ResampleConfig   `yaml:"resample"`
	Server    ServerConfig     `yaml:"server"`
	Debug     DebugConfig      `yaml:"debug"`

	// PlansDir, when set, is a directory for persisting cached place-move
	// trajectories to disk. Empty disables plan caching.
	PlansDir string `yaml:"plans_dir"`
}

// ArmsConfig holds the per-side arm parameters.
type ArmsConfig struct {
	Left  ArmConfig `yaml:"left"`
	Right ArmConfig `yaml:"right"`
}

// ArmConfig is the frozen parameter set for one arm. The machine owns the
// network transport; arms are addressed by resource name.
type ArmConfig struct {
	Name    string `yaml:"name"`    // arm resource name on the machine
	Gripper string `yaml:"gripper"` // end-effector resource name (suction or hand)

	InitJoints  JointVec `yaml:"arm_init_joints"` // imaging/travel pose, degrees
	PlaceJoints JointVec `yaml:"arm_fang_joints"` // above the basket, degrees
	MoveSpeed   int      `yaml:"arm_move_speed"`  // percent, 1-100

	Adjustment   [2]float64 `yaml:"adjustment"`    // [retreat, contact] meters along the approach axis
	ApproachAxis string     `yaml:"approach_axis"` // "x", "y" or "z"
	ApproachDir  float64    `yaml:"approach_dir"`  // +1 or -1

	Lift          float64 `yaml:"lift"`          // post-contact raise, meters
	LateralAxis   string  `yaml:"lateral_axis"`  // axis of the retreat side-step
	LateralOffset float64 `yaml:"lateral_offset"` // signed meters; sign differs per side
	SettleMs      int     `yaml:"settle_ms"`      // pause after prepared and contact moves

	GraspOrientation [3]float64 `yaml:"grasp_orientation"` // fixed vertical-grasp [rx ry rz], radians

	Hand          bool  `yaml:"is_hand"`        // dexterous hand instead of suction
	GripAngles    []int `yaml:"grip_angles"`    // finger angles for hand grip
	ReleaseAngles []int `yaml:"release_angles"` // finger angles for hand release
}

// CamerasConfig names the three cameras: one on each wrist plus the fixed
// prescription camera. Only the wrist cameras need calibration.
type CamerasConfig struct {
	Left         CameraConfig `yaml:"left"`
	Right        CameraConfig `yaml:"right"`
	Prescription CameraConfig `yaml:"prescription"`
}

// CameraConfig identifies one camera and its calibration.
type CameraConfig struct {
	Name        string         `yaml:"name"`   // camera resource name on the machine
	Serial      string         `yaml:"serial"` // device serial, for log correlation
	ColorSource string         `yaml:"color_source"` // named image of the color plane
	DepthSource string         `yaml:"depth_source"` // named image of the depth plane
	Calibration boxpose.Config `yaml:"calibration"`
}

// SegmenterConfig points at the segmentation sidecar.
type SegmenterConfig struct {
	BaseURL  string `yaml:"base_url"`
	TimeoutS int    `yaml:"timeout_s"`
}

// ResampleConfig bounds the zero-depth retry loop during point selection.
type ResampleConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
	IntervalMs  int `yaml:"interval_ms"`
}

// ServerConfig holds the task HTTP API settings.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MedicinesFile string `yaml:"medicines_file"` // persisted prescription list, one name per line
}

// DebugConfig gates optional diagnostic artifacts.
type DebugConfig struct {
	SavePCD       bool   `yaml:"save_pcd"` // export the segmented region as a PCD file
	PCDDir        string `yaml:"pcd_dir"`
	DrawWaypoints bool   `yaml:"draw_waypoints"` // send grasp waypoints to the motion visualizer
}

// DefaultConfig returns the configuration of the lab machine. The right wrist
// camera still carries pre-calibration identity extrinsics; a deployment
// overlay replaces them once that camera has been through hand-eye
// calibration.
func DefaultConfig() Config {
	return Config{
		Arms: ArmsConfig{
			Left: ArmConfig{
				Name:             "left-arm",
				Gripper:          "left-suction",
				InitJoints:       LeftInitJoints,
				PlaceJoints:      LeftPlaceJoints,
				MoveSpeed:        20,
				Adjustment:       [2]float64{0.1, 0.03},
				ApproachAxis:     "y",
				ApproachDir:      -1,
				Lift:             0.02,
				LateralAxis:      "x",
				LateralOffset:    0.05,
				SettleMs:         2000,
				GraspOrientation: [3]float64{3.1416, 0, 0},
			},
			Right: ArmConfig{
				Name:             "right-arm",
				Gripper:          "right-suction",
				InitJoints:       RightInitJoints,
				PlaceJoints:      RightPlaceJoints,
				MoveSpeed:        20,
				Adjustment:       [2]float64{0.1, 0.03},
				ApproachAxis:     "y",
				ApproachDir:      -1,
				Lift:             0.02,
				LateralAxis:      "x",
				LateralOffset:    -0.05,
				SettleMs:         2000,
				GraspOrientation: [3]float64{3.1416, 0, 3.1416},
			},
		},
		Cameras: CamerasConfig{
			Left: CameraConfig{
				Name:        "left-cam",
				Serial:      "327122072195",
				ColorSource: "color",
				DepthSource: "depth",
				Calibration: boxpose.DefaultConfig(),
			},
			Right: CameraConfig{
				Name:        "right-cam",
				Serial:      "207522073950",
				ColorSource: "color",
				DepthSource: "depth",
				Calibration: identityCalibration(),
			},
			Prescription: CameraConfig{
				Name:        "prescription-cam",
				Serial:      "000000000000",
				ColorSource: "color",
			},
		},
		Vision: boxvision.DefaultConfig(),
		Segmenter: SegmenterConfig{
			BaseURL:  "http://127.0.0.1:8100",
			TimeoutS: 30,
		},
		Resample: ResampleConfig{
			MaxAttempts: 200,
			IntervalMs:  50,
		},
		Server: ServerConfig{
			Addr:          ":5000",
			MedicinesFile: "medicines.txt",
		},
		Debug: DebugConfig{
			PCDDir: "pointclouds",
		},
	}
}

// identityCalibration is the stand-in calibration for a camera that has not
// been through hand-eye calibration yet.
func identityCalibration() boxpose.Config {
	return boxpose.Config{
		Intrinsics: transform.PinholeCameraIntrinsics{
			Width:  640,
			Height: 480,
			Fx:     600,
			Fy:     600,
			Ppx:    320,
			Ppy:    240,
		},
		HandEye: boxpose.HandEyeConfig{
			Rotation: [9]float64{
				1, 0, 0,
				0, 1, 0,
				0, 0, 1,
			},
		},
	}
}

// LoadConfig overlays the YAML file at path (when non-empty) over
// DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the pipeline assumes. It is the
// configuration's job to catch a retreat/contact inversion; the waypoint
// pipeline takes the offsets at face value.
func (c *Config) Validate() error {
	if err := c.Arms.Left.validate("left"); err != nil {
		return err
	}
	if err := c.Arms.Right.validate("right"); err != nil {
		return err
	}

	wrist := []struct {
		side string
		cam  CameraConfig
	}{
		{"left", c.Cameras.Left},
		{"right", c.Cameras.Right},
	}
	for _, w := range wrist {
		if w.cam.Name == "" {
			return fmt.Errorf("%s camera: name required", w.side)
		}
		if w.cam.ColorSource == "" || w.cam.DepthSource == "" {
			return fmt.Errorf("%s camera: color_source and depth_source required", w.side)
		}
		if err := w.cam.Calibration.Intrinsics.CheckValid(); err != nil {
			return fmt.Errorf("%s camera intrinsics: %w", w.side, err)
		}
	}
	if c.Cameras.Prescription.Name == "" {
		return fmt.Errorf("prescription camera: name required")
	}
	if c.Cameras.Prescription.ColorSource == "" {
		return fmt.Errorf("prescription camera: color_source required")
	}

	if c.Resample.MaxAttempts <= 0 {
		return fmt.Errorf("resample: max_attempts must be positive, got %d", c.Resample.MaxAttempts)
	}
	if c.Resample.IntervalMs <= 0 {
		return fmt.Errorf("resample: interval_ms must be positive, got %d", c.Resample.IntervalMs)
	}
	if c.Segmenter.BaseURL == "" {
		return fmt.Errorf("segmenter: base_url required")
	}
	if c.Server.MedicinesFile == "" {
		return fmt.Errorf("server: medicines_file required")
	}
	return nil
}

func (a ArmConfig) validate(side string) error {
	if a.Name == "" {
		return fmt.Errorf("%s arm: name required", side)
	}
	if a.Gripper == "" {
		return fmt.Errorf("%s arm: gripper required", side)
	}
	if len(a.InitJoints) != 6 {
		return fmt.Errorf("%s arm: arm_init_joints must have 6 entries, got %d", side, len(a.InitJoints))
	}
	if len(a.PlaceJoints) != 6 {
		return fmt.Errorf("%s arm: arm_fang_joints must have 6 entries, got %d", side, len(a.PlaceJoints))
	}
	if a.MoveSpeed < 1 || a.MoveSpeed > 100 {
		return fmt.Errorf("%s arm: arm_move_speed must be in 1..100, got %d", side, a.MoveSpeed)
	}
	if a.Adjustment[1] < 0 {
		return fmt.Errorf("%s arm: contact offset must be non-negative, got %.3f", side, a.Adjustment[1])
	}
	if a.Adjustment[0] <= a.Adjustment[1] {
		return fmt.Errorf("%s arm: retreat offset %.3f must exceed contact offset %.3f",
			side, a.Adjustment[0], a.Adjustment[1])
	}
	if _, err := boxpose.ParseAxis(a.ApproachAxis); err != nil {
		return fmt.Errorf("%s arm approach: %w", side, err)
	}
	if a.ApproachDir != 1 && a.ApproachDir != -1 {
		return fmt.Errorf("%s arm: approach_dir must be +1 or -1, got %v", side, a.ApproachDir)
	}
	if _, err := boxpose.ParseAxis(a.LateralAxis); err != nil {
		return fmt.Errorf("%s arm lateral: %w", side, err)
	}
	if a.SettleMs < 0 {
		return fmt.Errorf("%s arm: settle_ms must be non-negative, got %d", side, a.SettleMs)
	}
	if a.Hand && (len(a.GripAngles) == 0 || len(a.ReleaseAngles) == 0) {
		return fmt.Errorf("%s arm: hand mode requires grip_angles and release_angles", side)
	}
	return nil
}

// Approach returns the waypoint derivation spec for this arm. Call only on a
// validated config.
func (a ArmConfig) Approach() boxpose.ApproachSpec {
	axis, _ := boxpose.ParseAxis(a.ApproachAxis)
	return boxpose.ApproachSpec{
		Axis:    axis,
		Dir:     a.ApproachDir,
		Retreat: a.Adjustment[0],
		Contact: a.Adjustment[1],
	}
}

func (a ArmConfig) lateralAxis() boxpose.Axis {
	axis, _ := boxpose.ParseAxis(a.LateralAxis)
	return axis
}

func (a ArmConfig) settle() time.Duration {
	return time.Duration(a.SettleMs) * time.Millisecond
}

func (r ResampleConfig) interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

func (s SegmenterConfig) timeout() time.Duration {
	return time.Duration(s.TimeoutS) * time.Second
}
