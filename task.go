package robot2

import (
	"context"
	"image"

	boxvision "github.com/IcedVodka/robot2/box_vision"
	"github.com/IcedVodka/robot2/sensor"
)

// maxPointAttempts bounds how many times one medicine may bounce back to
// point selection after a failed segmentation or grasp before it is skipped.
const maxPointAttempts = 3

// TaskState carries one pick job through the stage handlers: the medicines
// still queued, the one being worked on, and the evidence gathered for the
// grasp in flight. Handlers run strictly one at a time, so fields are
// unguarded.
type TaskState struct {
	Queue   []string
	Current string
	Picked  []string
	Skipped []string

	pointAttempts int
	attempt       *pickAttempt
}

// pickAttempt is the evidence for one grasp: which side saw the medicine, the
// frame it was seen in, where, and the refined mask when segmentation ran.
type pickAttempt struct {
	side  *side
	frame *sensor.Frame
	box   image.Rectangle
	point image.Point
	seg   *boxvision.Segmentation
}

// NewTaskState seeds a job with an operator-supplied medicine list. An empty
// list defers to prescription recognition.
func NewTaskState(items []string) *TaskState {
	return &TaskState{Queue: append([]string(nil), items...)}
}

// popItem moves the head of the queue into Current and resets the per-item
// counters. Returns false when the queue is empty.
func (t *TaskState) popItem() bool {
	if len(t.Queue) == 0 {
		return false
	}
	t.Current = t.Queue[0]
	t.Queue = t.Queue[1:]
	t.pointAttempts = 0
	t.attempt = nil
	return true
}

func (t *TaskState) markPicked() {
	t.Picked = append(t.Picked, t.Current)
}

func (t *TaskState) markSkipped() {
	t.Skipped = append(t.Skipped, t.Current)
}

// clearAttempt drops the per-item evidence once the medicine is dealt with.
func (t *TaskState) clearAttempt() {
	t.Current = ""
	t.pointAttempts = 0
	t.attempt = nil
}

// BuildMachine wires the robot's stage handlers into a fresh state machine.
func (r *Robot) BuildMachine() *Machine {
	m := NewMachine(r.logger)
	m.Handle(StageRecognizeSource, r.runRecognizeSource)
	m.Handle(StageSelectItem, r.runSelectItem)
	m.Handle(StageSelectPoint, r.runSelectPoint)
	m.Handle(StageSegment, r.runSegment)
	m.Handle(StageGrasp, r.runGrasp)
	m.Handle(StageReset, r.runReset)
	return m
}

// runSelectItem pops the next medicine off the queue. An empty queue is the
// job's success exit.
func (r *Robot) runSelectItem(ctx context.Context) bool {
	if !r.task.popItem() {
		r.logger.Infof("Queue empty: %d picked, %d skipped", len(r.task.Picked), len(r.task.Skipped))
		return false
	}
	r.logger.Infof("Next medicine: %s (%d more queued)", r.task.Current, len(r.task.Queue))
	return true
}
