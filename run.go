package robot2

import (
	"context"
	"fmt"
)

// Summary reports how one pick job ended.
type Summary struct {
	Final   Stage
	Picked  []string
	Skipped []string
}

// Run executes one full pick job: recognize the prescription (unless items
// pre-seeds the queue), then select, point, segment, grasp and reset per
// medicine until the queue drains or the machine halts. The summary reports
// whatever the job accomplished either way.
func Run(ctx context.Context, r *Robot, items []string) Summary {
	r.task = NewTaskState(items)
	final := r.BuildMachine().Run(ctx)
	s := Summary{
		Final:   final,
		Picked:  append([]string(nil), r.task.Picked...),
		Skipped: append([]string(nil), r.task.Skipped...),
	}
	r.logger.Infof("Job finished in %s: %d picked, %d skipped", s.Final, len(s.Picked), len(s.Skipped))
	return s
}

// PickAll runs one pick job over the given medicine list and reports which
// items made it into the basket. The error is non-nil only when the machine
// halted instead of draining the queue.
func (r *Robot) PickAll(ctx context.Context, items []string) ([]string, error) {
	s := Run(ctx, r, items)
	if s.Final != StageFinished {
		return s.Picked, fmt.Errorf("pick job halted in %s (%d picked, %d skipped)",
			s.Final, len(s.Picked), len(s.Skipped))
	}
	return s.Picked, nil
}
