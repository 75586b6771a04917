package boxpose

import (
	"image"

	"go.viam.com/rdk/rimage"
)

// WaypointsFromMask runs the full mask pipeline: locate the target under the
// mask, back-project it, convert to the base frame, and derive the approach
// waypoints. The observation is returned alongside for logging.
func (p *Pipeline) WaypointsFromMask(
	mask *image.Gray,
	dm *rimage.DepthMap,
	current PoseVec,
	approach ApproachSpec,
) (Waypoints, Observation, error) {
	obs, err := p.LocateMask(mask, dm)
	if err != nil {
		return Waypoints{}, Observation{}, err
	}
	wps, err := p.waypointsFor(obs, current, approach)
	return wps, obs, err
}

// WaypointsFromPoint is the pixel-of-interest variant of WaypointsFromMask.
func (p *Pipeline) WaypointsFromPoint(
	dm *rimage.DepthMap,
	pt image.Point,
	current PoseVec,
	approach ApproachSpec,
) (Waypoints, Observation, error) {
	obs, err := p.LocatePoint(dm, pt)
	if err != nil {
		return Waypoints{}, Observation{}, err
	}
	wps, err := p.waypointsFor(obs, current, approach)
	return wps, obs, err
}

// waypointsFor turns an observation into the waypoint triple. Prepared and
// final poses are offset from the object along the approach axis, retreat
// farther out than contact, and all three inherit current's orientation.
func (p *Pipeline) waypointsFor(obs Observation, current PoseVec, approach ApproachSpec) (Waypoints, error) {
	camPt, err := p.BackProject(obs)
	if err != nil {
		return Waypoints{}, err
	}
	obj := p.ToBase(camPt, current)
	return Waypoints{
		Object:   obj,
		Prepared: obj.Shifted(approach.Axis, approach.Dir*approach.Retreat),
		Final:    obj.Shifted(approach.Axis, approach.Dir*approach.Contact),
	}, nil
}
