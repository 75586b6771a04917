package robot2

import (
	"context"
	"fmt"
	"image"
	"time"

	boxvision "github.com/IcedVodka/robot2/box_vision"
	"github.com/IcedVodka/robot2/sensor"
)

// RecognizePrescription grabs a fresh frame from the prescription camera and
// asks the vision model to read the medicine names off it.
func (r *Robot) RecognizePrescription(ctx context.Context) ([]string, error) {
	frame, err := r.prescription.Immediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("prescription frame: %w", err)
	}
	names, err := r.detector.ReadPrescription(ctx, frame.Color)
	if err != nil {
		return nil, fmt.Errorf("read prescription: %w", err)
	}
	return names, nil
}

// runRecognizeSource fills the item queue. A queue seeded by the operator is
// taken as-is; otherwise the prescription camera is read.
func (r *Robot) runRecognizeSource(ctx context.Context) bool {
	if len(r.task.Queue) > 0 {
		r.logger.Infof("Using supplied medicine list: %v", r.task.Queue)
		return true
	}
	names, err := r.RecognizePrescription(ctx)
	if err != nil {
		r.logger.Errorf("Prescription recognition failed: %v", err)
		return false
	}
	if len(names) == 0 {
		r.logger.Errorf("Prescription recognition returned no medicines")
		return false
	}
	r.task.Queue = names
	r.logger.Infof("Prescription lists %d medicines: %v", len(names), names)
	return true
}

// runSelectPoint looks for the current medicine with each arm's wrist camera,
// right arm first. Success records which side saw it, the frame it was seen
// in, its bounding box, and a pixel with a usable depth sample.
func (r *Robot) runSelectPoint(ctx context.Context) bool {
	t := r.task
	t.pointAttempts++
	if t.pointAttempts > maxPointAttempts {
		r.logger.Warnf("Giving up on %s after %d selection rounds", t.Current, maxPointAttempts)
		t.markSkipped()
		return false
	}

	for _, s := range r.sides {
		att, err := r.observe(ctx, s, t.Current)
		if err != nil {
			r.logger.Warnf("%s arm observation of %s: %v", s.name, t.Current, err)
			continue
		}
		if att == nil {
			r.logger.Infof("%s arm does not see %s", s.name, t.Current)
			continue
		}
		t.attempt = att
		return true
	}
	r.logger.Warnf("No arm sees %s, skipping it", t.Current)
	t.markSkipped()
	return false
}

// observe moves one arm to its imaging pose, takes a frame, and runs
// detection on it. A nil attempt with a nil error means the medicine was not
// in view.
func (r *Robot) observe(ctx context.Context, s *side, name string) (*pickAttempt, error) {
	if err := s.act.MoveJoints(ctx, s.cfg.InitJoints); err != nil {
		return nil, fmt.Errorf("move to imaging pose: %w", err)
	}
	frame, err := s.stream.Immediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire frame: %w", err)
	}
	box, found, err := r.detector.DetectBox(ctx, frame.Color, name)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if !found {
		return nil, nil
	}

	point := image.Pt((box.Min.X+box.Max.X)/2, (box.Min.Y+box.Max.Y)/2)
	frame, err = r.ensureDepth(ctx, s, frame, point)
	if err != nil {
		return nil, err
	}
	r.logger.Infof("%s arm sees %s at %v (bbox %v, depth %.0fmm)",
		s.name, name, point, box, frame.DepthAt(point.X, point.Y))
	return &pickAttempt{side: s, frame: frame, box: box, point: point}, nil
}

// ensureDepth returns a frame with a nonzero depth sample at the given pixel.
// The depth camera drops samples on reflective or oblique surfaces, so fresh
// frames are polled on a short interval until one carries depth there or the
// attempt budget runs out.
func (r *Robot) ensureDepth(ctx context.Context, s *side, frame *sensor.Frame, pt image.Point) (*sensor.Frame, error) {
	if frame.DepthAt(pt.X, pt.Y) > 0 {
		return frame, nil
	}
	interval := r.cfg.Resample.interval()
	for i := 0; i < r.cfg.Resample.MaxAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
		fresh, err := s.stream.Immediate(ctx)
		if err != nil {
			r.logger.Debugf("Depth resample frame: %v", err)
			continue
		}
		if fresh.DepthAt(pt.X, pt.Y) > 0 {
			r.logger.Debugf("Depth at %v recovered after %d resamples", pt, i+1)
			return fresh, nil
		}
	}
	return nil, fmt.Errorf("no depth at %v after %d resamples", pt, r.cfg.Resample.MaxAttempts)
}

// runSegment refines the selected point into an object mask. The grasp stage
// falls back to the bare point when no mask is recorded, but a segmentation
// miss here retries point selection rather than grasping blind.
func (r *Robot) runSegment(ctx context.Context) bool {
	att := r.task.attempt
	if att == nil {
		r.logger.Errorf("Segment stage reached without a selected point")
		return false
	}
	seg, err := r.seg.Segment(ctx, att.frame.Color, boxvision.SegmentHint{Point: &att.point})
	if err != nil {
		r.logger.Warnf("Segmentation of %s failed: %v", r.task.Current, err)
		return false
	}
	if seg == nil {
		r.logger.Warnf("Segmenter found nothing at %v", att.point)
		return false
	}
	att.seg = seg
	r.logger.Infof("Segmented %s: mask center %v", r.task.Current, seg.Center)

	if r.cfg.Debug.SavePCD {
		if err := r.exportMaskedPCD(att); err != nil {
			r.logger.Warnf("Point cloud export: %v", err)
		}
	}
	return true
}
