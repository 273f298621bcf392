// Package stabilizer implements the humanoid balance control law: contact and
// ZMP estimation, force distribution between the feet, a torso/CoM state
// feedback regulator and a per-foot ground reaction force servo.
//
// Update is meant to be called once per fixed-period control tick by a single
// caller. It performs no allocation, I/O or logging.
package stabilizer

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

var log = logrus.WithFields(logrus.Fields{
	"pkg": "stabilizer",
})

// Config is fixed at construction.
type Config struct {
	// Vertical force at or above which a foot counts as in contact. Must be
	// positive.
	MinContactForce float64

	ForceCtrl       ServoGains
	MomentCtrl      ServoGains
	OrientationCtrl PDGains

	// 6x12 state feedback gain. Rows map to orientation-correction
	// acceleration (roll, pitch), CoM-correction acceleration (x, y) and ZMP
	// offset (x, y). Columns follow the state layout in Regulator.Step. A nil
	// gain is treated as zero.
	Gain *mat.Dense
}

// State is a snapshot of the persistent correction state.
type State struct {
	OriAngle r3.Vec
	OriRate  r3.Vec
	ComPos   r3.Vec
	ComVel   r3.Vec

	servo [2]ServoState
}

// Servo returns the force servo integrators of side s.
func (st State) Servo(s Side) ServoState { return st.servo[s] }

// Stabilizer owns the persistent state of one control loop. The state is zero
// at construction and only Update changes it.
//
// Not safe for concurrent use.
type Stabilizer struct {
	cfg   Config
	reg   Regulator
	servo [2]ForceServo
}

// New returns a stabilizer with zeroed state. The gain is copied.
func New(cfg Config) (*Stabilizer, error) {
	gain := mat.NewDense(inputDim, stateDim, nil)
	if cfg.Gain != nil {
		if r, c := cfg.Gain.Dims(); r != inputDim || c != stateDim {
			return nil, fmt.Errorf("stabilizer: gain is %dx%d, want %dx%d", r, c, inputDim, stateDim)
		}
		gain.Copy(cfg.Gain)
	}
	cfg.Gain = gain

	s := &Stabilizer{
		cfg: cfg,
		reg: newRegulator(cfg.OrientationCtrl, gain),
	}
	for _, side := range Sides {
		s.servo[side] = ForceServo{force: cfg.ForceCtrl, moment: cfg.MomentCtrl}
	}

	log.WithFields(logrus.Fields{
		"min_contact_force": cfg.MinContactForce,
		"force_ctrl":        cfg.ForceCtrl,
		"moment_ctrl":       cfg.MomentCtrl,
		"orientation_ctrl":  cfg.OrientationCtrl,
	}).Debug("stabilizer configured")

	return s, nil
}

// State returns a copy of the persistent correction state.
func (s *Stabilizer) State() State {
	st := State{
		OriAngle: s.reg.oriAngle,
		OriRate:  s.reg.oriRate,
		ComPos:   s.reg.comPos,
		ComVel:   s.reg.comVel,
	}
	for _, side := range Sides {
		st.servo[side] = s.servo[side].State()
	}
	return st
}

// Update runs one control tick of period dt, correcting the references in c
// and f in place:
//
//  1. estimate contact and ZMP from the measured wrenches,
//  2. set the desired net force from the CoM acceleration reference,
//  3. run the regulator and apply its corrections, rotated into the world
//     frame by b.OriRef, to the CoM, the swing feet and the ZMP reference,
//  4. distribute the desired wrench between the planned supports,
//  5. servo the pose of every foot in measured contact.
//
// Base.OriRef and every Foot.OriRef must be unit quaternions, and the desired
// net vertical force must be non-zero.
func (s *Stabilizer) Update(dt time.Duration, p Param, c *Centroid, b *Base, f *Feet) {
	sec := dt.Seconds()

	s.EstimateZMP(c, f)

	c.ForceRef = r3.Scale(p.TotalMass, r3.Add(c.ComAccRef, r3.Vec{Z: p.Gravity}))
	c.MomentRef = r3.Vec{}

	corr := s.reg.Step(sec, b, c.ForceRef.Z)

	comPos := b.OriRef.Rotate(corr.ComPos)
	c.ComPosRef = r3.Add(c.ComPosRef, comPos)
	c.ComVelRef = r3.Add(c.ComVelRef, b.OriRef.Rotate(corr.ComVel))
	c.ComAccRef = r3.Add(c.ComAccRef, b.OriRef.Rotate(corr.ComAcc))

	// Swing feet follow the shifted CoM.
	for _, side := range Sides {
		if ft := f.Foot(side); !ft.ContactRef {
			ft.PosRef = r3.Add(ft.PosRef, comPos)
		}
	}

	c.ZmpRef = r3.Add(c.ZmpRef, b.OriRef.Rotate(corr.Zmp))

	DistributeForce(p, c, f)

	for _, side := range Sides {
		if ft := f.Foot(side); ft.Contact {
			s.servo[side].Step(sec, ft)
		}
	}
}
