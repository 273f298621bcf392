package stabilizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

const tick = 5e-3 // seconds

func testParam() Param {
	return Param{
		TotalMass: 50,
		Gravity:   9.8,
		ZmpMin:    r3.Vec{X: -0.1, Y: -0.05},
		ZmpMax:    r3.Vec{X: 0.1, Y: 0.05},
	}
}

func testConfig() Config {
	return Config{
		MinContactForce: 50,
		ForceCtrl:       ServoGains{Damping: 1, Gain: 1e-4, Limit: 0.02},
		MomentCtrl:      ServoGains{Damping: 1, Gain: 1e-3, Limit: 0.1},
		OrientationCtrl: PDGains{P: 100, D: 10},
	}
}

func newTestStabilizer(t testing.TB, cfg Config) *Stabilizer {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

// denseGain returns a 6x12 gain with a recognisable, non-zero pattern.
func denseGain() *mat.Dense {
	k := mat.NewDense(inputDim, stateDim, nil)
	for i := 0; i < inputDim; i++ {
		for j := 0; j < stateDim; j++ {
			k.Set(i, j, float64(i+1)*0.1+float64(j)*0.01)
		}
	}
	return k
}

// standing returns a robot standing still on both feet, with the measured
// wrenches equal to what the solver will ask for.
func standing(p Param) (Centroid, Base, Feet) {
	c := Centroid{ComPosRef: r3.Vec{Z: 0.8}}
	b := Base{OriRef: geom.Identity}
	f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})

	for _, side := range Sides {
		ft := f.Foot(side)
		ft.ContactRef = true
		ft.Force = r3.Vec{Z: 0.5 * (p.TotalMass * p.Gravity)}
	}
	return c, b, f
}

func assertVecInDelta(t *testing.T, exp, act r3.Vec, msgAndArgs ...interface{}) {
	t.Helper()
	assert.InDelta(t, exp.X, act.X, 1e-9, msgAndArgs...)
	assert.InDelta(t, exp.Y, act.Y, 1e-9, msgAndArgs...)
	assert.InDelta(t, exp.Z, act.Z, 1e-9, msgAndArgs...)
}
