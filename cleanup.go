package robot2

import (
	"context"
	"fmt"
)

// runReset parks the arm that just picked and clears the per-item state so
// the next medicine starts from a clean slate. A park failure halts the job:
// an arm stuck away from its travel pose cannot safely image or grasp.
func (r *Robot) runReset(ctx context.Context) bool {
	att := r.task.attempt
	if att == nil {
		r.task.clearAttempt()
		return true
	}
	s := att.side
	if err := s.act.MoveJoints(ctx, s.cfg.InitJoints); err != nil {
		r.logger.Errorf("Parking %s arm: %v", s.name, err)
		return false
	}
	r.task.clearAttempt()
	return true
}

// PlaceBasket delivers the filled medicine basket: the off-hand arm parks,
// then the delivery arm walks its place sequence and releases.
func (r *Robot) PlaceBasket(ctx context.Context) error {
	if len(r.sides) > 1 {
		off := r.sides[1]
		if err := off.act.MoveJoints(ctx, off.cfg.InitJoints); err != nil {
			r.logger.Warnf("Parking %s arm before delivery: %v", off.name, err)
		}
	}

	s := r.sides[0]
	r.logger.Infof("Delivering basket with %s arm", s.name)
	if err := s.act.MoveJoints(ctx, s.cfg.InitJoints); err != nil {
		return fmt.Errorf("move to travel pose: %w", err)
	}
	if err := s.act.MoveToPlace(ctx); err != nil {
		return fmt.Errorf("move to basket: %w", err)
	}
	if err := s.act.SetSuction(ctx, false); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	if err := s.act.MoveJoints(ctx, s.cfg.InitJoints); err != nil {
		return fmt.Errorf("return to travel pose: %w", err)
	}
	r.logger.Info("Basket delivered")
	return nil
}
