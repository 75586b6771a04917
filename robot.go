package robot2

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"google.golang.org/protobuf/encoding/protojson"

	boxpose "github.com/IcedVodka/robot2/box_pose"
	boxvision "github.com/IcedVodka/robot2/box_vision"
	"github.com/IcedVodka/robot2/sensor"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/components/camera"
	"go.viam.com/rdk/components/gripper"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/motionplan"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/robot"
	"go.viam.com/rdk/services/motion"
	"go.viam.com/rdk/spatialmath"
	"go.viam.com/rdk/utils"
)

// motionServiceName is the resource name of the builtin motion service.
const motionServiceName = "builtin"

// ArmState is one reading of an arm: joint angles in degrees and the
// end-effector pose in base-frame meters and radians.
type ArmState struct {
	Joints JointVec
	Pose   boxpose.PoseVec
}

// actuator is the motion surface a stage handler drives. Implementations wrap
// one arm plus its end effector; the scripted fakes in the tests implement it
// too.
type actuator interface {
	State(ctx context.Context) (ArmState, error)
	MoveJoints(ctx context.Context, joints JointVec) error
	MovePose(ctx context.Context, pose boxpose.PoseVec, linear bool) error
	SetSuction(ctx context.Context, on bool) error
	MoveToPlace(ctx context.Context) error
}

// boxDetector is the LLM-backed vision collaborator.
type boxDetector interface {
	DetectBox(ctx context.Context, img image.Image, name string) (image.Rectangle, bool, error)
	ReadPrescription(ctx context.Context, img image.Image) ([]string, error)
}

// maskSegmenter refines a detection into an object mask.
type maskSegmenter interface {
	Segment(ctx context.Context, img image.Image, hint boxvision.SegmentHint) (*boxvision.Segmentation, error)
}

// frameStream is the slice of sensor.Stream the stage handlers consume.
type frameStream interface {
	Start(ctx context.Context) error
	Stop()
	Latest() (*sensor.Frame, bool)
	Immediate(ctx context.Context) (*sensor.Frame, error)
}

// side bundles everything needed to pick with one arm: its actuator, its
// wrist camera stream, and the pose pipeline built from that camera's
// calibration.
type side struct {
	name   string
	act    actuator
	stream frameStream
	pipe   *boxpose.Pipeline
	cfg    ArmConfig
}

// Robot holds the hardware handles, collaborators, and job state for the
// dual-arm pick-and-place machine.
type Robot struct {
	logger  logging.Logger
	machine robot.Robot
	cfg     *Config

	// sides in pick order: the right arm tries every item first.
	sides        []*side
	prescription frameStream

	detector boxDetector
	seg      maskSegmenter

	task *TaskState
}

// NewRobot looks up all hardware resources from the machine and wires the
// collaborators. Every resource named in the config is required.
func NewRobot(ctx context.Context, machine robot.Robot, cfg *Config, logger logging.Logger) (*Robot, error) {
	motionSvc, err := motion.FromProvider(machine, motionServiceName)
	if err != nil {
		return nil, fmt.Errorf("motion service: %w", err)
	}

	right, err := newSide(machine, motionSvc, "right", cfg.Arms.Right, cfg.Cameras.Right, cfg.PlansDir, logger)
	if err != nil {
		return nil, err
	}
	left, err := newSide(machine, motionSvc, "left", cfg.Arms.Left, cfg.Cameras.Left, cfg.PlansDir, logger)
	if err != nil {
		return nil, err
	}

	presCam, err := camera.FromProvider(machine, cfg.Cameras.Prescription.Name)
	if err != nil {
		return nil, fmt.Errorf("prescription camera %q: %w", cfg.Cameras.Prescription.Name, err)
	}
	presSource := sensor.NewCameraSource(presCam, cfg.Cameras.Prescription.ColorSource, "", false)

	detector, err := boxvision.NewClient(cfg.Vision, logger)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	return &Robot{
		logger:       logger,
		machine:      machine,
		cfg:          cfg,
		sides:        []*side{right, left},
		prescription: sensor.NewStream("prescription", presSource, sensor.DefaultStreamConfig(), logger),
		detector:     detector,
		seg:          boxvision.NewSegmenter(cfg.Segmenter.BaseURL, cfg.Segmenter.timeout(), logger),
		task:         &TaskState{},
	}, nil
}

func newSide(machine robot.Robot, motionSvc motion.Service, name string, armCfg ArmConfig, camCfg CameraConfig, plansDir string, logger logging.Logger) (*side, error) {
	a, err := arm.FromProvider(machine, armCfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%s arm %q: %w", name, armCfg.Name, err)
	}
	g, err := gripper.FromProvider(machine, armCfg.Gripper)
	if err != nil {
		return nil, fmt.Errorf("%s gripper %q: %w", name, armCfg.Gripper, err)
	}
	cam, err := camera.FromProvider(machine, camCfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%s camera %q: %w", name, camCfg.Name, err)
	}
	pipe, err := boxpose.NewPipeline(camCfg.Calibration)
	if err != nil {
		return nil, fmt.Errorf("%s camera calibration: %w", name, err)
	}

	src := sensor.NewCameraSource(cam, camCfg.ColorSource, camCfg.DepthSource, true)
	return &side{
		name: name,
		act: &armUnit{
			name:     name,
			arm:      a,
			gripper:  g,
			machine:  machine,
			motion:   motionSvc,
			cfg:      armCfg,
			plansDir: plansDir,
			logger:   logger,
		},
		stream: sensor.NewStream(name+"-cam", src, sensor.DefaultStreamConfig(), logger),
		pipe:   pipe,
		cfg:    armCfg,
	}, nil
}

// StartStreams opens all three camera streams. Wrist streams require depth;
// the prescription stream is color-only.
func (r *Robot) StartStreams(ctx context.Context) error {
	for _, s := range r.sides {
		if err := s.stream.Start(ctx); err != nil {
			return fmt.Errorf("start %s camera: %w", s.name, err)
		}
	}
	if err := r.prescription.Start(ctx); err != nil {
		return fmt.Errorf("start prescription camera: %w", err)
	}
	return nil
}

// StopStreams stops every camera stream. Safe to call repeatedly.
func (r *Robot) StopStreams() {
	for _, s := range r.sides {
		s.stream.Stop()
	}
	r.prescription.Stop()
}

// armUnit drives one arm and its end effector. It is the only place joint
// degrees and PoseVec meters are converted to the arm's radians and the
// motion service's millimeters.
type armUnit struct {
	name     string
	arm      arm.Arm
	gripper  gripper.Gripper
	machine  robot.Robot
	motion   motion.Service
	cfg      ArmConfig
	plansDir string
	logger   logging.Logger

	placeTraj motionplan.Trajectory
}

// State reads the arm's joints and end-effector pose.
func (u *armUnit) State(ctx context.Context) (ArmState, error) {
	inputs, err := u.arm.JointPositions(ctx, nil)
	if err != nil {
		return ArmState{}, fmt.Errorf("read %s joints: %w", u.name, err)
	}
	joints := make(JointVec, len(inputs))
	for i, in := range inputs {
		joints[i] = utils.RadToDeg(in.Value)
	}

	pose, err := u.arm.EndPosition(ctx, nil)
	if err != nil {
		return ArmState{}, fmt.Errorf("read %s end position: %w", u.name, err)
	}
	return ArmState{Joints: joints, Pose: poseVecFromRDK(pose)}, nil
}

// MoveJoints drives the arm directly to the given joint angles, bypassing the
// motion planner. Used for the recorded init and place poses, which are known
// to be reachable without obstacle planning.
func (u *armUnit) MoveJoints(ctx context.Context, joints JointVec) error {
	if len(joints) == 0 {
		return fmt.Errorf("%s arm: no joint positions to move to", u.name)
	}
	rads := make([]float64, len(joints))
	for i, deg := range joints {
		rads[i] = utils.DegToRad(deg)
	}
	extra := map[string]interface{}{"speed": u.cfg.MoveSpeed}
	if err := u.arm.MoveToJointPositions(ctx, referenceframe.FloatsToInputs(rads), extra); err != nil {
		return fmt.Errorf("move %s arm to joints: %w", u.name, err)
	}
	return nil
}

// MovePose moves the end effector to pose via the motion service. Linear
// moves constrain the path to a straight line within 1mm and 2 degrees of
// orientation; free moves let the planner choose the path.
func (u *armUnit) MovePose(ctx context.Context, pose boxpose.PoseVec, linear bool) error {
	req := motion.MoveReq{
		ComponentName: u.cfg.Name,
		Destination:   referenceframe.NewPoseInFrame("world", rdkPoseFromVec(pose)),
	}
	if linear {
		req.Constraints = motionplan.NewConstraints(
			[]motionplan.LinearConstraint{{
				LineToleranceMm:          1.0,
				OrientationToleranceDegs: 2.0,
			}},
			nil, nil, nil,
		)
	}
	if _, err := u.motion.Move(ctx, req); err != nil {
		return fmt.Errorf("move %s arm to %s: %w", u.name, pose, err)
	}
	return nil
}

// SetSuction engages or releases the end effector. Suction maps onto the
// gripper's grab/open; hand mode forwards the configured finger angles.
func (u *armUnit) SetSuction(ctx context.Context, on bool) error {
	var extra map[string]interface{}
	if u.cfg.Hand {
		angles := u.cfg.ReleaseAngles
		if on {
			angles = u.cfg.GripAngles
		}
		extra = map[string]interface{}{"angles": angles}
	}

	if on {
		if _, err := u.gripper.Grab(ctx, extra); err != nil {
			return fmt.Errorf("engage %s suction: %w", u.name, err)
		}
		return nil
	}
	if err := u.gripper.Open(ctx, extra); err != nil {
		return fmt.Errorf("release %s suction: %w", u.name, err)
	}
	return nil
}

// MoveToPlace moves the arm from its travel pose to the basket place pose.
// With a plans directory configured the move is planned once through the
// motion service and replayed from cache thereafter; otherwise it is a direct
// joint move.
func (u *armUnit) MoveToPlace(ctx context.Context) error {
	if u.plansDir == "" {
		return u.MoveJoints(ctx, u.cfg.PlaceJoints)
	}

	cacheFile := fmt.Sprintf("place_%s.json", u.name)
	if u.placeTraj == nil {
		u.placeTraj = u.loadCachedTrajectory(cacheFile)
	}
	if u.placeTraj == nil {
		u.logger.Infof("Planning %s place move (first run; will be cached)", u.name)
		req, err := u.jointGoalReq(ctx, u.cfg.PlaceJoints)
		if err != nil {
			return err
		}
		planned, err := u.doPlan(ctx, req)
		if err != nil {
			return err
		}
		u.placeTraj = planned
		u.saveCachedTrajectory(cacheFile, planned)
	}
	return u.doExecute(ctx, u.placeTraj)
}

// jointGoalReq builds a motion request whose goal is a joint configuration.
// The motion service requires goal inputs for every component with nonzero
// DOF, so current inputs are fetched for all of them and only the target arm
// is overridden.
func (u *armUnit) jointGoalReq(ctx context.Context, joints JointVec) (motion.MoveReq, error) {
	current, err := u.machine.CurrentInputs(ctx)
	if err != nil {
		return motion.MoveReq{}, fmt.Errorf("get current inputs: %w", err)
	}

	configuration := make(map[string]interface{}, len(current))
	for name, inputs := range current {
		vals := make([]interface{}, len(inputs))
		for i, in := range inputs {
			vals[i] = in.Value
		}
		configuration[name] = vals
	}

	goal := make([]interface{}, len(joints))
	for i, deg := range joints {
		goal[i] = utils.DegToRad(deg)
	}
	configuration[u.cfg.Name] = goal

	return motion.MoveReq{
		ComponentName: u.cfg.Name,
		Extra: map[string]interface{}{
			"goal_state": map[string]interface{}{
				"configuration": configuration,
			},
		},
	}, nil
}

// doPlan calls the motion service's DoPlan DoCommand to generate a trajectory
// without executing it. The trajectory can be cached and replayed via
// doExecute.
func (u *armUnit) doPlan(ctx context.Context, req motion.MoveReq) (motionplan.Trajectory, error) {
	proto, err := req.ToProto(motionServiceName)
	if err != nil {
		return nil, fmt.Errorf("build plan proto: %w", err)
	}
	bytes, err := protojson.Marshal(proto)
	if err != nil {
		return nil, fmt.Errorf("marshal plan request: %w", err)
	}
	resp, err := u.motion.DoCommand(ctx, map[string]interface{}{
		"plan": string(bytes),
	})
	if err != nil {
		return nil, fmt.Errorf("DoPlan: %w", err)
	}
	raw, ok := resp["plan"]
	if !ok {
		return nil, fmt.Errorf("DoPlan response missing 'plan' key")
	}
	var trajectory motionplan.Trajectory
	if err := mapstructure.Decode(raw, &trajectory); err != nil {
		return nil, fmt.Errorf("decode trajectory: %w", err)
	}
	return trajectory, nil
}

// doExecute calls the motion service's DoExecute DoCommand to replay a cached
// trajectory.
func (u *armUnit) doExecute(ctx context.Context, trajectory motionplan.Trajectory) error {
	u.logger.Debugf("doExecute %s: %d trajectory steps", u.name, len(trajectory))
	resp, err := u.motion.DoCommand(ctx, map[string]interface{}{
		"execute": trajectory,
	})
	if err != nil {
		return fmt.Errorf("DoExecute: %w", err)
	}
	if ok, _ := resp["execute"].(bool); !ok {
		return fmt.Errorf("DoExecute returned non-true response: %v", resp["execute"])
	}
	return nil
}

// loadCachedTrajectory loads a trajectory from plansDir/filename. Returns nil
// if the file doesn't exist or fails to parse.
func (u *armUnit) loadCachedTrajectory(filename string) motionplan.Trajectory {
	path := filepath.Join(u.plansDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var traj motionplan.Trajectory
	if err := json.Unmarshal(data, &traj); err != nil {
		u.logger.Warnf("Failed to parse cached trajectory %s: %v", path, err)
		return nil
	}
	u.logger.Infof("Loaded cached trajectory from %s (%d steps)", path, len(traj))
	return traj
}

// saveCachedTrajectory writes a trajectory to plansDir/filename as JSON.
// Logs a warning on write failure; caching is best-effort.
func (u *armUnit) saveCachedTrajectory(filename string, traj motionplan.Trajectory) {
	if err := os.MkdirAll(u.plansDir, 0o755); err != nil {
		u.logger.Warnf("Failed to create plans dir %s: %v", u.plansDir, err)
		return
	}
	path := filepath.Join(u.plansDir, filename)
	data, err := json.Marshal(traj)
	if err != nil {
		u.logger.Warnf("Failed to serialize trajectory for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		u.logger.Warnf("Failed to write trajectory to %s: %v", path, err)
		return
	}
	u.logger.Infof("Saved trajectory to %s (%d steps)", path, len(traj))
}

// poseVecFromRDK converts a machine pose (millimeter translation) to a
// base-frame PoseVec (meters, radians).
func poseVecFromRDK(p spatialmath.Pose) boxpose.PoseVec {
	pt := p.Point()
	ea := p.Orientation().EulerAngles()
	return boxpose.PoseVec{pt.X * 0.001, pt.Y * 0.001, pt.Z * 0.001, ea.Roll, ea.Pitch, ea.Yaw}
}

// rdkPoseFromVec converts a base-frame PoseVec (meters) to a machine pose
// (millimeters).
func rdkPoseFromVec(v boxpose.PoseVec) spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: v[0] * 1000, Y: v[1] * 1000, Z: v[2] * 1000},
		v.EulerAngles(),
	)
}
