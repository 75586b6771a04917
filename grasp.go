package robot2

import (
	"context"
	"time"

	boxpose "github.com/IcedVodka/robot2/box_pose"
)

// runGrasp turns the selected evidence into the waypoint triple and drives
// the full pick-and-place sequence. A failure retries point selection with a
// fresh detection; executeGrasp unwinds any partial motion first.
func (r *Robot) runGrasp(ctx context.Context) bool {
	att := r.task.attempt
	if att == nil {
		r.logger.Errorf("Grasp stage reached without a selected point")
		return false
	}
	s := att.side

	state, err := s.act.State(ctx)
	if err != nil {
		r.logger.Warnf("Reading %s arm state: %v", s.name, err)
		return false
	}

	wps, obs, err := r.planWaypoints(att, state.Pose)
	if err != nil {
		r.logger.Warnf("Waypoints for %s: %v", r.task.Current, err)
		return false
	}
	r.logger.Infof("Grasping %s with %s arm: pixel %v, depth %.0fmm, object %s",
		r.task.Current, s.name, obs.Pixel, obs.Depth, wps.Object)

	if r.cfg.Debug.DrawWaypoints {
		if err := drawGraspWaypoints(s.name, wps); err != nil {
			r.logger.Warnf("Waypoint visualization: %v", err)
		}
	}

	if err := r.executeGrasp(ctx, s, wps); err != nil {
		r.logger.Errorf("Grasp of %s failed: %v", r.task.Current, err)
		return false
	}
	r.task.markPicked()
	r.logger.Infof("Picked %s", r.task.Current)
	return true
}

// planWaypoints derives the approach triple from the attempt's evidence,
// preferring the mask pipeline over the bare selected point. The configured
// grasp orientation replaces the wrist orientation captured at observation
// time, which faces wherever the imaging pose left it.
func (r *Robot) planWaypoints(att *pickAttempt, current boxpose.PoseVec) (boxpose.Waypoints, boxpose.Observation, error) {
	s := att.side
	approach := s.cfg.Approach()

	var (
		wps boxpose.Waypoints
		obs boxpose.Observation
		err error
	)
	if att.seg != nil {
		wps, obs, err = s.pipe.WaypointsFromMask(att.seg.Mask, att.frame.Depth, current, approach)
	} else {
		wps, obs, err = s.pipe.WaypointsFromPoint(att.frame.Depth, att.point, current, approach)
	}
	if err != nil {
		return boxpose.Waypoints{}, boxpose.Observation{}, err
	}

	o := s.cfg.GraspOrientation
	fixed := boxpose.PoseVec{0, 0, 0, o[0], o[1], o[2]}
	wps.Object = wps.Object.WithOrientationOf(fixed)
	wps.Prepared = wps.Prepared.WithOrientationOf(fixed)
	wps.Final = wps.Final.WithOrientationOf(fixed)
	return wps, obs, nil
}

// executeGrasp runs the pick-and-place walk. When a step fails mid-sequence
// the arm is walked through release and park before the error is returned,
// so a retry never starts with a box still held or the cup inside the shelf.
func (r *Robot) executeGrasp(ctx context.Context, s *side, wps boxpose.Waypoints) error {
	if err := r.graspWalk(ctx, s, wps); err != nil {
		r.recoverArm(ctx, s)
		return err
	}
	return nil
}

// graspWalk is the nominal sequence: suction on, approach, touch, lift,
// retreat, then carry to the basket and release.
func (r *Robot) graspWalk(ctx context.Context, s *side, wps boxpose.Waypoints) error {
	r.logger.Infof("Engaging %s suction", s.name)
	if err := s.act.SetSuction(ctx, true); err != nil {
		return err
	}

	r.logger.Infof("Moving %s arm to prepared pose %s", s.name, wps.Prepared)
	if err := s.act.MovePose(ctx, wps.Prepared, false); err != nil {
		return err
	}
	r.settle(ctx, s)

	r.logger.Infof("Advancing %s arm to contact pose %s", s.name, wps.Final)
	if err := s.act.MovePose(ctx, wps.Final, true); err != nil {
		return err
	}
	r.settle(ctx, s)

	// Lift the box off the shelf, then side-step at the lifted height so the
	// retreat does not drag it across its neighbors.
	lifted := wps.Final.Shifted(boxpose.AxisZ, s.cfg.Lift)
	r.logger.Infof("Lifting %s arm to %s", s.name, lifted)
	if err := s.act.MovePose(ctx, lifted, true); err != nil {
		return err
	}
	retreat := wps.Prepared.Shifted(s.cfg.lateralAxis(), s.cfg.LateralOffset).Shifted(boxpose.AxisZ, s.cfg.Lift)
	r.logger.Infof("Retreating %s arm to %s", s.name, retreat)
	if err := s.act.MovePose(ctx, retreat, true); err != nil {
		return err
	}

	r.logger.Infof("Carrying to basket with %s arm", s.name)
	if err := s.act.MoveJoints(ctx, s.cfg.InitJoints); err != nil {
		return err
	}
	if err := s.act.MoveToPlace(ctx); err != nil {
		return err
	}
	if err := s.act.SetSuction(ctx, false); err != nil {
		return err
	}
	return s.act.MoveJoints(ctx, s.cfg.InitJoints)
}

// recoverArm unwinds a failed grasp: park, move over the basket, release,
// park again. Every step runs even if an earlier one fails, since a box that
// is still held must end up over the basket rather than dropped mid-shelf.
func (r *Robot) recoverArm(ctx context.Context, s *side) {
	steps := []struct {
		name string
		run  func() error
	}{
		{"park at travel pose", func() error { return s.act.MoveJoints(ctx, s.cfg.InitJoints) }},
		{"move over basket", func() error { return s.act.MoveToPlace(ctx) }},
		{"release suction", func() error { return s.act.SetSuction(ctx, false) }},
		{"return to travel pose", func() error { return s.act.MoveJoints(ctx, s.cfg.InitJoints) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			r.logger.Warnf("Recovery step %q on %s arm: %v", step.name, s.name, err)
		}
	}
}

// settle pauses between motion steps so the arm and anything held by the cup
// stop swinging before the next command.
func (r *Robot) settle(ctx context.Context, s *side) {
	d := s.cfg.settle()
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
