package stabilizer

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	stateDim = 12
	inputDim = 6
)

// PDGains are proportional/derivative gains.
type PDGains struct {
	P float64
	D float64
}

// Correction is one tick of regulator output, in the torso frame.
type Correction struct {
	ComPos r3.Vec
	ComVel r3.Vec
	ComAcc r3.Vec

	// Sum of the tilt-PD and state-feedback ZMP offsets.
	Zmp r3.Vec
}

// Regulator is the torso-tilt PD plus full-state linear feedback law. It owns
// the orientation-correction and CoM-correction integrators, which start at
// zero and only change in Step.
//
// Not safe for concurrent use.
type Regulator struct {
	ori  PDGains
	gain *mat.Dense

	// Scratch, rebuilt every tick.
	x *mat.VecDense
	u *mat.VecDense

	oriAngle r3.Vec
	oriRate  r3.Vec
	comPos   r3.Vec
	comVel   r3.Vec
}

func newRegulator(ori PDGains, gain *mat.Dense) Regulator {
	return Regulator{
		ori:  ori,
		gain: gain,
		x:    mat.NewVecDense(stateDim, nil),
		u:    mat.NewVecDense(inputDim, nil),
	}
}

// Step runs the feedback law for one tick of dt seconds. forceZ is the
// desired net vertical force and must be non-zero.
//
// Reads Base.Angle, AngVel, AngleRef and AngVelRef (roll and pitch only).
func (r *Regulator) Step(dt float64, b *Base, forceZ float64) Correction {
	// Tilt PD expressed as the ZMP shift that produces the corrective moment.
	mx := r.ori.P*(b.AngleRef.X-b.Angle.X) + r.ori.D*(b.AngVelRef.X-b.AngVel.X)
	my := r.ori.P*(b.AngleRef.Y-b.Angle.Y) + r.ori.D*(b.AngVelRef.Y-b.AngVel.Y)
	zmpMod1 := r3.Scale(1/forceZ, r3.Vec{X: -my, Y: mx})

	theta := r3.Sub(b.Angle, b.AngleRef)
	omega := r3.Sub(b.AngVel, b.AngVelRef)

	r.x.SetVec(0, theta.X)
	r.x.SetVec(1, theta.Y)
	r.x.SetVec(2, omega.X)
	r.x.SetVec(3, omega.Y)
	r.x.SetVec(4, r.oriAngle.X)
	r.x.SetVec(5, r.oriAngle.Y)
	r.x.SetVec(6, r.oriRate.X)
	r.x.SetVec(7, r.oriRate.Y)
	r.x.SetVec(8, r.comPos.X)
	r.x.SetVec(9, r.comPos.Y)
	r.x.SetVec(10, r.comVel.X)
	r.x.SetVec(11, r.comVel.Y)

	// u = -K x
	r.u.MulVec(r.gain, r.x)
	r.u.ScaleVec(-1, r.u)

	oriAcc := r3.Vec{X: r.u.AtVec(0), Y: r.u.AtVec(1)}
	comAcc := r3.Vec{X: r.u.AtVec(2), Y: r.u.AtVec(3)}
	zmpMod2 := r3.Vec{X: r.u.AtVec(4), Y: r.u.AtVec(5)}

	// Semi-implicit Euler. Positions take the velocity from before this tick;
	// keep the order.
	r.comPos = r3.Add(r.comPos, r3.Scale(dt, r.comVel))
	r.comVel = r3.Add(r.comVel, r3.Scale(dt, comAcc))
	r.oriAngle = r3.Add(r.oriAngle, r3.Scale(dt, r.oriRate))
	r.oriRate = r3.Add(r.oriRate, r3.Scale(dt, oriAcc))

	return Correction{
		ComPos: r.comPos,
		ComVel: r.comVel,
		ComAcc: comAcc,
		Zmp:    r3.Add(zmpMod1, zmpMod2),
	}
}
