package stabilizer

import (
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

// ServoGains configures one damped-integrator admittance loop.
type ServoGains struct {
	Damping float64
	Gain    float64
	Limit   float64
}

// ServoState is the pair of foot pose offsets accumulated by a force servo.
type ServoState struct {
	Dpos r3.Vec
	Drot r3.Vec
}

// ForceServo converts ground reaction force/moment tracking error on one foot
// into a foot pose offset.
//
// Not safe for concurrent use.
type ForceServo struct {
	force  ServoGains
	moment ServoGains
	st     ServoState
}

// Step integrates one tick of dt seconds and moves the foot reference.
// Callers skip feet that are not in measured contact, which freezes their
// integrators.
//
// Reads Foot.ForceRef, MomentRef, Force and Moment.
// Writes Foot.PosRef, AngleRef and OriRef.
func (s *ForceServo) Step(dt float64, ft *Foot) {
	s.st.Dpos = integrate(s.st.Dpos, r3.Sub(ft.ForceRef, ft.Force), s.force, dt)
	s.st.Drot = integrate(s.st.Drot, r3.Sub(ft.MomentRef, ft.Moment), s.moment, dt)

	ft.PosRef = r3.Sub(ft.PosRef, s.st.Dpos)
	ft.AngleRef = r3.Sub(ft.AngleRef, s.st.Drot)
	ft.OriRef = geom.FromRollPitchYaw(ft.AngleRef)
}

// State returns the current integrator values.
func (s *ForceServo) State() ServoState { return s.st }

func integrate(x, err r3.Vec, g ServoGains, dt float64) r3.Vec {
	rate := r3.Add(r3.Scale(-g.Damping, x), r3.Scale(g.Gain, err))
	return geom.ClampSym(r3.Add(x, r3.Scale(dt, rate)), g.Limit)
}
