package robot2

// Joint positions recorded from the live machine on 2026-08-12. Degrees, in
// joint order. The init pose doubles as the imaging pose (wrist camera facing
// the shelf) and the travel pose between moves.
var (
	// LeftInitJoints parks the left arm facing its shelf section.
	LeftInitJoints = JointVec{0, 0, 90, 0, 90, 0}

	// LeftPlaceJoints holds the left arm above the delivery basket.
	LeftPlaceJoints = JointVec{-90, 0, 90, 0, 90, 0}

	// RightInitJoints parks the right arm facing its shelf section.
	RightInitJoints = JointVec{0, 0, 90, 0, 90, 0}

	// RightPlaceJoints holds the right arm above the delivery basket,
	// mirrored from the left mount.
	RightPlaceJoints = JointVec{90, 0, 90, 0, 90, 0}
)
