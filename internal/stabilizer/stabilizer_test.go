package stabilizer

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

const tickPeriod = 5 * time.Millisecond

func TestNew_RejectsWrongGainShape(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = mat.NewDense(12, 6, nil)

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gain is 12x6")
}

func TestNew_CopiesGain(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(t, cfg)

	cfg.Gain.Set(0, 0, 1e9)
	assert.NotEqual(t, 1e9, s.cfg.Gain.At(0, 0))
}

func TestNew_StateIsZero(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(t, cfg)

	assert.Equal(t, State{}, s.State())
}

func TestUpdate_ZeroErrorPassesThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(t, cfg)

	p := testParam()
	c, b, f := standing(p)
	c0, f0 := c, f

	s.Update(tickPeriod, p, &c, &b, &f)

	assert.Equal(t, State{}, s.State())

	assert.Equal(t, c0.ComPosRef, c.ComPosRef)
	assert.Equal(t, c0.ComVelRef, c.ComVelRef)
	assert.Equal(t, c0.ComAccRef, c.ComAccRef)
	assert.Equal(t, c0.ZmpRef, c.ZmpRef)
	assert.Equal(t, r3.Vec{}, c.Zmp)

	for _, side := range Sides {
		ft, ft0 := f.Foot(side), f0.Foot(side)
		assert.Equal(t, ft0.PosRef, ft.PosRef, side.String())
		assert.Equal(t, ft0.AngleRef, ft.AngleRef, side.String())
		assert.Equal(t, geom.Identity, ft.OriRef, side.String())
		assert.Equal(t, r3.Vec{}, ft.ZmpRef, side.String())
		assert.Equal(t, ft.Force, ft.ForceRef, side.String())
		assert.True(t, ft.Contact, side.String())
	}
}

func TestUpdate_ComCorrectionIntegrationOrder(t *testing.T) {
	s := newTestStabilizer(t, testConfig())
	v := r3.Vec{X: 0.2, Y: -0.1}
	s.reg.comVel = v

	p := testParam()
	c, b, f := standing(p)
	s.Update(tickPeriod, p, &c, &b, &f)

	dt := tickPeriod.Seconds()
	assert.Equal(t, r3.Scale(dt, v), s.State().ComPos)
	assert.Equal(t, v, s.State().ComVel)
}

func TestUpdate_SwingFootFollowsCom(t *testing.T) {
	cfg := testConfig()
	cfg.ForceCtrl.Gain = 0
	cfg.MomentCtrl.Gain = 0
	s := newTestStabilizer(t, cfg)
	s.reg.comVel = r3.Vec{X: 1}

	p := testParam()
	c, b, f := standing(p)
	f.Left().ContactRef = false
	f.Left().Force = r3.Vec{}
	b.OriRef = geom.FromRollPitchYaw(r3.Vec{Z: math.Pi / 2})

	right0, left0, com0 := f.Right().PosRef, f.Left().PosRef, c.ComPosRef
	s.Update(tickPeriod, p, &c, &b, &f)

	// Torso yawed by 90°: a +X correction lands on world +Y.
	shift := r3.Vec{Y: tickPeriod.Seconds()}
	assertVecInDelta(t, r3.Add(com0, shift), c.ComPosRef)
	assertVecInDelta(t, r3.Add(left0, shift), f.Left().PosRef)
	assertVecInDelta(t, right0, f.Right().PosRef)
}

func TestUpdate_ServoRunsOnMeasuredContactOnly(t *testing.T) {
	s := newTestStabilizer(t, testConfig())

	p := testParam()
	c, b, f := standing(p)

	// Planned double support, but the left foot reads no load.
	f.Left().Force = r3.Vec{}
	f.Right().Force = r3.Vec{Z: p.TotalMass * p.Gravity}

	s.Update(tickPeriod, p, &c, &b, &f)

	assert.False(t, f.Left().Contact)
	assert.Equal(t, ServoState{}, s.State().Servo(Left))
	assert.NotEqual(t, ServoState{}, s.State().Servo(Right))

	// Right foot was pushed harder than planned, so it is lifted.
	assert.Greater(t, f.Right().PosRef.Z, 0.0)
}

func TestUpdate_ServoFrozenWithoutContact(t *testing.T) {
	s := newTestStabilizer(t, testConfig())

	p := testParam()
	c, b, f := standing(p)
	f.Right().Force = r3.Vec{Z: 400}
	s.Update(tickPeriod, p, &c, &b, &f)
	held := s.State().Servo(Right)
	require.NotEqual(t, ServoState{}, held)

	f.Right().Force = r3.Vec{}
	for i := 0; i < 10; i++ {
		s.Update(tickPeriod, p, &c, &b, &f)
	}
	assert.Equal(t, held, s.State().Servo(Right))
}

func TestUpdate_TiltShiftsZmp(t *testing.T) {
	cfg := testConfig()
	cfg.OrientationCtrl = PDGains{P: 98}
	s := newTestStabilizer(t, cfg)

	p := testParam()
	c, b, f := standing(p)
	b.Angle = r3.Vec{Y: 0.05} // pitched forward

	s.Update(tickPeriod, p, &c, &b, &f)

	// m.y = -98*0.05, zmp.x = -m.y / (m g) = 0.01
	assert.InDelta(t, 0.01, c.ZmpRef.X, 1e-12)
	assert.Greater(t, f.Right().ZmpRef.X, 0.0)
	assert.Greater(t, f.Left().ZmpRef.X, 0.0)
}

func TestUpdate_FlightStaysFinite(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(t, cfg)

	p := testParam()
	c, b, f := standing(p)
	for _, side := range Sides {
		f.Foot(side).ContactRef = false
		f.Foot(side).Force = r3.Vec{}
	}
	b.Angle = r3.Vec{X: 0.02, Y: -0.01}

	for i := 0; i < 100; i++ {
		s.Update(tickPeriod, p, &c, &b, &f)
	}
	assert.NoError(t, CheckPlausible(&c, &f))
	assert.Equal(t, 0.5, f.Right().Balance)
}

func TestCheckPlausible(t *testing.T) {
	p := testParam()
	c, _, f := standing(p)
	require.NoError(t, CheckPlausible(&c, &f))

	f.Left().ZmpRef = r3.Vec{X: math.NaN()}
	err := CheckPlausible(&c, &f)
	assert.True(t, errors.Is(err, ErrNonFinite))
	assert.Contains(t, err.Error(), "left foot zmp_ref")

	f.Left().ZmpRef = r3.Vec{}
	c.ComVelRef = r3.Vec{Z: math.Inf(1)}
	err = CheckPlausible(&c, &f)
	assert.True(t, errors.Is(err, ErrNonFinite))
	assert.Contains(t, err.Error(), "com_vel_ref")
}

func TestSide(t *testing.T) {
	assert.Equal(t, Left, Right.Other())
	assert.Equal(t, Right, Left.Other())
	assert.Equal(t, "right", Right.String())
	assert.Equal(t, "invalid", Side(5).String())
}

func TestUpdate_DoesNotAllocate(t *testing.T) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(t, cfg)

	p := testParam()
	c, base, f := standing(p)
	base.Angle = r3.Vec{X: 0.01, Y: -0.02}
	base.AngVel = r3.Vec{Y: 0.1}
	f.Right().Force.X = 3
	f.Left().Moment.Y = 1

	allocs := testing.AllocsPerRun(100, func() {
		s.Update(tickPeriod, p, &c, &base, &f)
	})
	require.Zero(t, allocs, "allocs per Update")

	// The servo and regulator paths ran.
	require.True(t, f.Right().Contact)
	require.True(t, f.Left().Contact)
	st := s.State()
	assert.NotEqual(t, r3.Vec{}, st.Servo(Right).Dpos)
	assert.NotEqual(t, r3.Vec{}, st.OriAngle)
}

func BenchmarkUpdate(b *testing.B) {
	cfg := testConfig()
	cfg.Gain = denseGain()
	s := newTestStabilizer(b, cfg)

	p := testParam()
	c, base, f := standing(p)
	base.Angle = r3.Vec{X: 0.01}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Update(tickPeriod, p, &c, &base, &f)
	}
}
