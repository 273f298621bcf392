package stabilizer

import (
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

// Param holds the robot-wide physical parameters. Read-only per tick.
type Param struct {
	TotalMass float64
	Gravity   float64

	// Admissible local ZMP region of each foot sole, per axis.
	ZmpMin r3.Vec
	ZmpMax r3.Vec
}

// Centroid is the centre-of-mass reference bundle.
//
// The Ref fields are planner output on entry to Update and corrected
// references on return. Zmp is the measured global ZMP written by the
// estimator.
type Centroid struct {
	ComPosRef r3.Vec
	ComVelRef r3.Vec
	ComAccRef r3.Vec
	ZmpRef    r3.Vec
	ForceRef  r3.Vec
	MomentRef r3.Vec

	Zmp r3.Vec
}

// Base is the torso (base link) state. Only the roll and pitch components of
// the angles take part in the feedback; OriRef rotates corrections from the
// torso frame into the world frame.
type Base struct {
	Angle     r3.Vec
	AngVel    r3.Vec
	AngleRef  r3.Vec
	AngVelRef r3.Vec
	OriRef    r3.Rotation
}

// Foot is the per-side sensor and reference record.
type Foot struct {
	// Measured wrench in the foot frame.
	Force  r3.Vec
	Moment r3.Vec

	// Derived from the measured wrench by the estimator.
	Contact bool
	Zmp     r3.Vec
	Balance float64

	// Planner input.
	ContactRef bool
	BalanceRef float64

	PosRef   r3.Vec
	AngleRef r3.Vec
	OriRef   r3.Rotation

	// Written by the force distribution solver.
	ZmpRef    r3.Vec
	ForceRef  r3.Vec
	MomentRef r3.Vec
}

// Side names one of the two feet.
type Side int

const (
	Right Side = iota
	Left
)

// Sides lists both sides in the order the stabilizer visits them.
var Sides = [2]Side{Right, Left}

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == Right {
		return Left
	}
	return Right
}

func (s Side) String() string {
	switch s {
	case Right:
		return "right"
	case Left:
		return "left"
	default:
		return "invalid"
	}
}

// Feet is the side-indexed foot pair.
type Feet struct {
	feet [2]Foot
}

// NewFeet returns a foot pair at the given positions with level, identity
// orientations.
func NewFeet(right, left r3.Vec) Feet {
	var f Feet
	f.feet[Right] = Foot{PosRef: right, OriRef: geom.Identity}
	f.feet[Left] = Foot{PosRef: left, OriRef: geom.Identity}
	return f
}

// Foot returns the foot on side s.
func (f *Feet) Foot(s Side) *Foot { return &f.feet[s] }

func (f *Feet) Right() *Foot { return &f.feet[Right] }
func (f *Feet) Left() *Foot  { return &f.feet[Left] }
