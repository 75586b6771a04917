package robot2

import (
	"context"
	"fmt"

	"go.viam.com/rdk/logging"
)

// Stage identifies one step of the pick-and-place cycle.
type Stage int

const (
	// StageRecognizeSource reads the prescription and fills the item queue.
	StageRecognizeSource Stage = iota
	// StageSelectItem pops the next medicine from the queue.
	StageSelectItem
	// StageSelectPoint finds the item in a camera frame and samples its depth.
	StageSelectPoint
	// StageSegment refines the detection into an object mask.
	StageSegment
	// StageGrasp computes waypoints and runs the pick-and-place sequence.
	StageGrasp
	// StageReset returns the arm to its init pose and clears per-item state.
	StageReset
	// StageFinished is the success terminal: the queue is empty.
	StageFinished
	// StageError is the fatal terminal.
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageRecognizeSource:
		return "RecognizeSource"
	case StageSelectItem:
		return "SelectItem"
	case StageSelectPoint:
		return "SelectPoint"
	case StageSegment:
		return "Segment"
	case StageGrasp:
		return "Grasp"
	case StageReset:
		return "Reset"
	case StageFinished:
		return "Finished"
	case StageError:
		return "Error"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Terminal reports whether the machine halts in this stage.
func (s Stage) Terminal() bool {
	return s == StageFinished || s == StageError
}

// StageHandler runs one stage's work and reports success. Handlers signal
// expected misses (no detection, empty queue) by returning false; only the
// transition table decides what a failure means for the job.
type StageHandler func(ctx context.Context) bool

// nextStage is the transition table. Failure lands on the nearest stage that
// can recover the situation: a missed detection retries the item, a failed
// grasp retries the point, and only recognition and reset failures are fatal.
// An empty queue at item selection is the success exit.
func nextStage(s Stage, ok bool) Stage {
	switch s {
	case StageRecognizeSource:
		if ok {
			return StageSelectItem
		}
		return StageError
	case StageSelectItem:
		if ok {
			return StageSelectPoint
		}
		return StageFinished
	case StageSelectPoint:
		if ok {
			return StageSegment
		}
		return StageSelectItem
	case StageSegment:
		if ok {
			return StageGrasp
		}
		return StageSelectPoint
	case StageGrasp:
		if ok {
			return StageReset
		}
		return StageSelectPoint
	case StageReset:
		if ok {
			return StageSelectItem
		}
		return StageError
	default:
		return s
	}
}

// Machine drives the fixed transition table. It knows nothing about hardware;
// stage work lives in the registered handlers.
type Machine struct {
	logger   logging.Logger
	current  Stage
	handlers map[Stage]StageHandler
}

// NewMachine returns a machine positioned at StageRecognizeSource with no
// handlers registered.
func NewMachine(logger logging.Logger) *Machine {
	return &Machine{
		logger:   logger,
		current:  StageRecognizeSource,
		handlers: make(map[Stage]StageHandler),
	}
}

// Handle registers the handler for a stage, replacing any previous one.
func (m *Machine) Handle(s Stage, h StageHandler) {
	m.handlers[s] = h
}

// Current returns the stage the machine is in.
func (m *Machine) Current() Stage {
	return m.current
}

// Step runs the current stage's handler and advances one transition. A stage
// without a handler is a wiring fault and halts the machine in StageError
// rather than panicking. Stepping a terminal machine is a no-op.
func (m *Machine) Step(ctx context.Context) Stage {
	if m.current.Terminal() {
		return m.current
	}
	h, registered := m.handlers[m.current]
	if !registered {
		m.logger.Errorf("No handler registered for stage %s", m.current)
		m.current = StageError
		return m.current
	}
	ok := h(ctx)
	next := nextStage(m.current, ok)
	if !ok && !next.Terminal() {
		m.logger.Warnf("Stage %s failed, retrying from %s", m.current, next)
	}
	m.current = next
	return m.current
}

// Run steps the machine until it reaches a terminal stage or the context is
// canceled. Cancellation mid-job is fatal: the machine halts in StageError.
func (m *Machine) Run(ctx context.Context) Stage {
	for !m.current.Terminal() {
		select {
		case <-ctx.Done():
			m.logger.Warnf("Job canceled in stage %s", m.current)
			m.current = StageError
			return m.current
		default:
		}
		m.logger.Infof("=== %s ===", m.current)
		m.Step(ctx)
	}
	return m.current
}
