package stabilizer

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

// ErrNonFinite is returned by CheckPlausible when an output is NaN or Inf.
var ErrNonFinite = errors.New("non-finite reference")

// CheckPlausible is a plausibility check for an external safety supervisor,
// to be run after Update. The control law itself never reports errors.
func CheckPlausible(c *Centroid, f *Feet) error {
	for _, v := range []struct {
		name string
		val  r3.Vec
	}{
		{"com_pos_ref", c.ComPosRef},
		{"com_vel_ref", c.ComVelRef},
		{"com_acc_ref", c.ComAccRef},
		{"zmp_ref", c.ZmpRef},
		{"force_ref", c.ForceRef},
	} {
		if !geom.Finite(v.val) {
			return fmt.Errorf("%s=%v: %w", v.name, v.val, ErrNonFinite)
		}
	}

	for _, side := range Sides {
		ft := f.Foot(side)
		for _, v := range []struct {
			name string
			val  r3.Vec
		}{
			{"pos_ref", ft.PosRef},
			{"angle_ref", ft.AngleRef},
			{"zmp_ref", ft.ZmpRef},
			{"force_ref", ft.ForceRef},
			{"moment_ref", ft.MomentRef},
		} {
			if !geom.Finite(v.val) {
				return fmt.Errorf("%s foot %s=%v: %w", side, v.name, v.val, ErrNonFinite)
			}
		}
	}
	return nil
}
