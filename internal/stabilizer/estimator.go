package stabilizer

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// EstimateZMP derives per-foot contact, local ZMP and balance share from the
// measured wrenches, and the measured global ZMP.
//
// Reads Foot.Force, Foot.Moment, Foot.PosRef and Foot.OriRef.
// Writes Foot.Contact, Foot.Zmp, Foot.Balance and Centroid.Zmp.
//
// The global ZMP is projected through the reference foot pose rather than a
// measured one.
func (s *Stabilizer) EstimateZMP(c *Centroid, f *Feet) {
	for _, side := range Sides {
		ft := f.Foot(side)
		ft.Contact = ft.Force.Z >= s.cfg.MinContactForce

		if ft.Contact {
			ft.Zmp = r3.Vec{X: -ft.Moment.Y / ft.Force.Z, Y: ft.Moment.X / ft.Force.Z}
		} else {
			ft.Zmp = r3.Vec{}
		}
	}

	right, left := f.Right(), f.Left()

	// Flight. Left to a supervisor.
	if !right.Contact && !left.Contact {
		right.Balance = 0.5
		left.Balance = 0.5
		c.Zmp = r3.Vec{}
		return
	}

	fr := math.Max(0, right.Force.Z)
	fl := math.Max(0, left.Force.Z)
	right.Balance = fr / (fr + fl)
	left.Balance = fl / (fr + fl)

	c.Zmp = r3.Add(
		r3.Scale(right.Balance, r3.Add(right.PosRef, right.OriRef.Rotate(right.Zmp))),
		r3.Scale(left.Balance, r3.Add(left.PosRef, left.OriRef.Rotate(left.Zmp))),
	)
}
