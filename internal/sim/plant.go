package sim

import (
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
	"balance-ng/internal/stabilizer"
)

// PlantConfig describes the simulated robot.
type PlantConfig struct {
	Param stabilizer.Param

	// Constant CoM height of the inverted pendulum.
	ComHeight float64

	// Lateral distance between the foot centres.
	FootSpacing float64

	// First-order lag coefficient of the force sensors, in (0, 1]. 1 means
	// the measured wrench equals the commanded one on the next tick.
	SensorLag float64
}

type wrench struct {
	force  r3.Vec
	moment r3.Vec
}

// Plant is a linear inverted pendulum standing on two fixed feet. It plays
// the planner and the sensors for the stabilizer: Sense fills in planned
// references and measurements, Actuate applies the corrected references.
//
// The torso is modelled as rigidly leaning with the pendulum, so its measured
// roll and pitch are the CoM offset from the planned ZMP divided by the
// height, plus the scenario tilt.
//
// Not safe for concurrent use.
type Plant struct {
	cfg  PlantConfig
	feet [2]r3.Vec

	com    r3.Vec
	comVel r3.Vec
	zmp    r3.Vec

	meas [2]wrench
}

// NewPlant returns a plant at rest with its CoM above the planned ZMP of the
// initial scenario state and each foot carrying its planned share of weight.
func NewPlant(cfg PlantConfig, initial ScenarioState) *Plant {
	half := cfg.FootSpacing / 2
	p := &Plant{cfg: cfg}
	p.feet[stabilizer.Right] = r3.Vec{Y: -half}
	p.feet[stabilizer.Left] = r3.Vec{Y: half}

	p.zmp = p.plannedZmp(initial.Support)
	p.com = r3.Vec{X: p.zmp.X, Y: p.zmp.Y, Z: cfg.ComHeight}

	weight := cfg.Param.TotalMass * cfg.Param.Gravity
	for _, side := range stabilizer.Sides {
		p.meas[side].force = r3.Vec{Z: weight * plannedShare(initial.Support, side)}
	}
	return p
}

// Com returns the simulated CoM position.
func (p *Plant) Com() r3.Vec { return p.com }

// ComVel returns the simulated CoM velocity.
func (p *Plant) ComVel() r3.Vec { return p.comVel }

// Zmp returns the ZMP realized on the last Actuate.
func (p *Plant) Zmp() r3.Vec { return p.zmp }

// Sense writes fresh planner references and the current sensor readings.
func (p *Plant) Sense(st ScenarioState, c *stabilizer.Centroid, b *stabilizer.Base, f *stabilizer.Feet) {
	*f = stabilizer.NewFeet(p.feet[stabilizer.Right], p.feet[stabilizer.Left])
	for _, side := range stabilizer.Sides {
		ft := f.Foot(side)
		ft.ContactRef = plannedShare(st.Support, side) > 0
		ft.Force = p.meas[side].force
		ft.Moment = p.meas[side].moment
	}

	zmpRef := p.plannedZmp(st.Support)
	*c = stabilizer.Centroid{
		ComPosRef: r3.Vec{X: zmpRef.X, Y: zmpRef.Y, Z: p.cfg.ComHeight},
		ZmpRef:    zmpRef,
	}

	h := p.cfg.ComHeight
	lean := r3.Sub(p.com, zmpRef)
	*b = stabilizer.Base{
		Angle: r3.Vec{
			X: st.Tilt.X - lean.Y/h,
			Y: st.Tilt.Y + lean.X/h,
		},
		AngVel: r3.Vec{
			X: -p.comVel.Y / h,
			Y: p.comVel.X / h,
		},
		OriRef: geom.Identity,
	}
}

// Actuate realizes the corrected references for one tick of dt seconds: the
// commanded foot wrenches place the ZMP, the pendulum responds to it and to
// the scenario push, and the sensors lag towards the commanded wrenches.
func (p *Plant) Actuate(dt float64, st ScenarioState, f *stabilizer.Feet) {
	var zmp r3.Vec
	var share float64
	for _, side := range stabilizer.Sides {
		ft := f.Foot(side)
		if !ft.ContactRef {
			continue
		}
		share += ft.BalanceRef
		zmp = r3.Add(zmp, r3.Scale(ft.BalanceRef, r3.Add(ft.PosRef, ft.OriRef.Rotate(ft.ZmpRef))))
	}
	if share == 0 {
		// Ballistic: nothing to push against.
		zmp = r3.Vec{X: p.com.X, Y: p.com.Y}
	}
	p.zmp = zmp

	prm := p.cfg.Param
	omega2 := prm.Gravity / p.cfg.ComHeight
	acc := r3.Vec{
		X: omega2*(p.com.X-zmp.X) + st.Push.X/prm.TotalMass,
		Y: omega2*(p.com.Y-zmp.Y) + st.Push.Y/prm.TotalMass,
	}
	p.comVel = r3.Add(p.comVel, r3.Scale(dt, acc))
	p.com = r3.Add(p.com, r3.Scale(dt, p.comVel))

	lag := p.cfg.SensorLag
	for _, side := range stabilizer.Sides {
		ft := f.Foot(side)
		var target wrench
		if ft.ContactRef {
			target = wrench{force: ft.ForceRef, moment: ft.MomentRef}
		}
		m := &p.meas[side]
		m.force = r3.Add(m.force, r3.Scale(lag, r3.Sub(target.force, m.force)))
		m.moment = r3.Add(m.moment, r3.Scale(lag, r3.Sub(target.moment, m.moment)))
	}
}

func (p *Plant) plannedZmp(s Support) r3.Vec {
	switch s {
	case SupportRight:
		return p.feet[stabilizer.Right]
	case SupportLeft:
		return p.feet[stabilizer.Left]
	default:
		return r3.Vec{}
	}
}

func plannedShare(s Support, side stabilizer.Side) float64 {
	switch s {
	case SupportBoth:
		return 0.5
	case SupportRight:
		if side == stabilizer.Right {
			return 1
		}
	case SupportLeft:
		if side == stabilizer.Left {
			return 1
		}
	}
	return 0
}
