package robot2

import (
	"context"
	"errors"
	"image"
	"math"
	"reflect"
	"strings"
	"testing"

	boxpose "github.com/IcedVodka/robot2/box_pose"
	boxvision "github.com/IcedVodka/robot2/box_vision"
)

// graspRobot builds a robot with an attempt already staged on the right arm,
// the state the machine is in when the grasp handler runs.
func graspRobot(t *testing.T, right, left *fakeActuator) *Robot {
	t.Helper()
	r := newTestRobot(t, &fakeDetector{}, &fakeSegmenter{}, right, left, &fakeStream{}, &fakeStream{}, &fakeStream{})
	pt := image.Pt(320, 240)
	r.task = NewTaskState(nil)
	r.task.Current = "aspirin"
	r.task.attempt = &pickAttempt{side: r.sides[0], frame: depthFrame(pt, 500), point: pt}
	return r
}

func TestGraspSuccessOrdering(t *testing.T) {
	right, left := &fakeActuator{}, &fakeActuator{}
	r := graspRobot(t, right, left)

	if !r.runGrasp(context.Background()) {
		t.Fatal("runGrasp failed")
	}
	opsEqual(t, "right", right.ops,
		"suction-on", "pose-free", "pose-linear", "pose-linear", "pose-linear",
		"joints", "place", "suction-off", "joints")
	if len(left.ops) != 0 {
		t.Errorf("left arm moved: %v", left.ops)
	}
	if !reflect.DeepEqual(r.task.Picked, []string{"aspirin"}) {
		t.Errorf("Picked = %v", r.task.Picked)
	}

	want := r.cfg.Arms.Right.GraspOrientation
	for i, p := range right.poses {
		if p[3] != want[0] || p[4] != want[1] || p[5] != want[2] {
			t.Errorf("pose %d orientation = [%v %v %v], want %v", i, p[3], p[4], p[5], want)
		}
	}
}

func TestGraspFailureRecovery(t *testing.T) {
	right, left := &fakeActuator{failAt: "pose-linear"}, &fakeActuator{}
	r := graspRobot(t, right, left)

	if r.runGrasp(context.Background()) {
		t.Fatal("expected grasp to fail at the contact move")
	}
	// Recovery walks release and park even after the fault.
	opsEqual(t, "right", right.ops,
		"suction-on", "pose-free", "pose-linear",
		"joints", "place", "suction-off", "joints")
	if len(r.task.Picked) != 0 {
		t.Errorf("Picked = %v after a failed grasp", r.task.Picked)
	}
}

func TestGraspStateErrorRetriesWithoutMotion(t *testing.T) {
	right, left := &fakeActuator{stateErr: errors.New("arm offline")}, &fakeActuator{}
	r := graspRobot(t, right, left)

	if r.runGrasp(context.Background()) {
		t.Fatal("expected grasp to fail when arm state is unreadable")
	}
	if len(right.ops) != 0 {
		t.Errorf("right arm moved without a plan: %v", right.ops)
	}
}

func TestGraspWaypointGeometry(t *testing.T) {
	right := &fakeActuator{}
	r := graspRobot(t, right, &fakeActuator{})

	if !r.runGrasp(context.Background()) {
		t.Fatal("runGrasp failed")
	}
	if len(right.poses) != 4 {
		t.Fatalf("recorded %d poses, want 4", len(right.poses))
	}
	prepared, final, lifted, retreat := right.poses[0], right.poses[1], right.poses[2], right.poses[3]
	cfg := r.cfg.Arms.Right
	const eps = 1e-9

	// Contact sits closer to the box than prepared along the approach axis.
	if d := final[1] - prepared[1]; math.Abs(d-(cfg.Adjustment[0]-cfg.Adjustment[1])) > eps {
		t.Errorf("approach advance = %v, want %v", d, cfg.Adjustment[0]-cfg.Adjustment[1])
	}
	if final[0] != prepared[0] || final[2] != prepared[2] {
		t.Error("contact move strayed off the approach axis")
	}

	// The lift raises straight up off the contact pose.
	if d := lifted[2] - final[2]; math.Abs(d-cfg.Lift) > eps {
		t.Errorf("lift = %v, want %v", d, cfg.Lift)
	}
	if lifted[0] != final[0] || lifted[1] != final[1] {
		t.Error("lift strayed off the vertical")
	}

	// The retreat side-steps at the lifted height.
	if d := retreat[0] - prepared[0]; math.Abs(d-cfg.LateralOffset) > eps {
		t.Errorf("side-step = %v, want %v", d, cfg.LateralOffset)
	}
	if d := retreat[2] - prepared[2]; math.Abs(d-cfg.Lift) > eps {
		t.Errorf("retreat height = %v above prepared, want %v", d, cfg.Lift)
	}
	if retreat[1] != prepared[1] {
		t.Error("retreat moved along the approach axis")
	}
}

func TestPlanWaypointsPrefersMask(t *testing.T) {
	r := newTestRobot(t, &fakeDetector{}, &fakeSegmenter{}, &fakeActuator{}, &fakeActuator{}, &fakeStream{}, &fakeStream{}, &fakeStream{})
	region := image.Rect(310, 230, 330, 250)
	att := &pickAttempt{
		side:  r.sides[0],
		frame: regionFrame(region, 500),
		// The bare point carries no depth, so only the mask path can succeed.
		point: image.Pt(0, 0),
		seg:   &boxvision.Segmentation{Center: image.Pt(320, 240), Mask: blobMask(region)},
	}

	_, obs, err := r.planWaypoints(att, boxpose.PoseVec{})
	if err != nil {
		t.Fatalf("planWaypoints failed: %v", err)
	}
	if !obs.FromMask {
		t.Error("expected the mask pipeline to be used")
	}
	if obs.Depth != 500 {
		t.Errorf("observation depth = %v, want 500", obs.Depth)
	}
}

func TestPlaceBasketOrdering(t *testing.T) {
	right, left := &fakeActuator{}, &fakeActuator{}
	r := newTestRobot(t, &fakeDetector{}, &fakeSegmenter{}, right, left, &fakeStream{}, &fakeStream{}, &fakeStream{})

	if err := r.PlaceBasket(context.Background()); err != nil {
		t.Fatalf("PlaceBasket failed: %v", err)
	}
	opsEqual(t, "left", left.ops, "joints")
	opsEqual(t, "right", right.ops, "joints", "place", "suction-off", "joints")
}

func TestPlaceBasketDeliveryFailure(t *testing.T) {
	right, left := &fakeActuator{failAt: "place"}, &fakeActuator{}
	r := newTestRobot(t, &fakeDetector{}, &fakeSegmenter{}, right, left, &fakeStream{}, &fakeStream{}, &fakeStream{})

	err := r.PlaceBasket(context.Background())
	if err == nil || !strings.Contains(err.Error(), "move to basket") {
		t.Fatalf("err = %v, want a basket move failure", err)
	}
}
