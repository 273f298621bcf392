package stabilizer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

func wideParam() Param {
	p := testParam()
	p.ZmpMin = r3.Vec{X: -1, Y: -1, Z: -1}
	p.ZmpMax = r3.Vec{X: 1, Y: 1, Z: 1}
	return p
}

func TestDistributeForce_NoContact(t *testing.T) {
	p := testParam()
	c := Centroid{ZmpRef: r3.Vec{X: 0.3}, ForceRef: r3.Vec{Z: 490}}
	f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})
	f.Right().ZmpRef = r3.Vec{X: 0.05}

	DistributeForce(p, &c, &f)

	for _, side := range Sides {
		assert.Equal(t, 0.5, f.Foot(side).BalanceRef, side.String())
		assert.Equal(t, r3.Vec{}, f.Foot(side).ZmpRef, side.String())
		assert.Equal(t, r3.Vec{Z: 245}, f.Foot(side).ForceRef, side.String())
	}
}

func TestDistributeForce_SingleSupport(t *testing.T) {
	for _, support := range Sides {
		t.Run(support.String(), func(t *testing.T) {
			p := testParam()
			c := Centroid{ZmpRef: r3.Vec{X: 0.02, Y: -0.1}, ForceRef: r3.Vec{Z: 490}}
			f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})

			ft := f.Foot(support)
			ft.ContactRef = true
			ft.PosRef = r3.Vec{Y: -0.1}
			ft.AngleRef = r3.Vec{Z: math.Pi / 2}
			ft.OriRef = geom.FromRollPitchYaw(ft.AngleRef)

			DistributeForce(p, &c, &f)

			// World +X is local -Y for a foot yawed by 90°.
			assert.Equal(t, 1.0, ft.BalanceRef)
			assertVecInDelta(t, r3.Vec{Y: -0.02}, ft.ZmpRef)
			assertVecInDelta(t, r3.Vec{Z: 490}, ft.ForceRef)
			assertVecInDelta(t, r3.Vec{X: 490 * -0.02}, ft.MomentRef)

			swing := f.Foot(support.Other())
			assert.Equal(t, 0.0, swing.BalanceRef)
			assert.Equal(t, r3.Vec{}, swing.ZmpRef)
			assertVecInDelta(t, r3.Vec{}, swing.ForceRef)
		})
	}
}

func TestDistributeForce_DoubleSupportSymmetric(t *testing.T) {
	p := testParam()
	c := Centroid{ForceRef: r3.Vec{Z: 490}}
	f := NewFeet(r3.Vec{X: -0.1}, r3.Vec{X: 0.1})
	f.Right().ContactRef = true
	f.Left().ContactRef = true

	DistributeForce(p, &c, &f)

	for _, side := range Sides {
		ft := f.Foot(side)
		assert.Equal(t, 0.5, ft.BalanceRef, side.String())
		assert.Equal(t, r3.Vec{}, ft.ZmpRef, side.String())
		assert.Equal(t, r3.Vec{Z: 245}, ft.ForceRef, side.String())
	}
}

func TestDistributeForce_DoubleSupportReconstructsZmp(t *testing.T) {
	p := wideParam()
	c := Centroid{ZmpRef: r3.Vec{X: 0.03, Y: 0.05}, ForceRef: r3.Vec{Z: 490}}
	f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})
	f.Right().ContactRef = true
	f.Left().ContactRef = true

	DistributeForce(p, &c, &f)

	right, left := f.Right(), f.Left()
	assert.InDelta(t, 0.25, right.BalanceRef, 1e-12)
	assert.InDelta(t, 0.75, left.BalanceRef, 1e-12)
	assertVecInDelta(t, r3.Vec{X: 0.012}, right.ZmpRef)
	assertVecInDelta(t, r3.Vec{X: 0.036}, left.ZmpRef)

	got := r3.Add(
		r3.Scale(right.BalanceRef, r3.Add(right.PosRef, right.ZmpRef)),
		r3.Scale(left.BalanceRef, r3.Add(left.PosRef, left.ZmpRef)),
	)
	assertVecInDelta(t, c.ZmpRef, got)
}

func TestDistributeForce_DoubleSupportBalanceClamped(t *testing.T) {
	p := testParam()
	c := Centroid{ZmpRef: r3.Vec{Y: -0.5}, ForceRef: r3.Vec{Z: 490}}
	f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})
	f.Right().ContactRef = true
	f.Left().ContactRef = true

	DistributeForce(p, &c, &f)

	assert.Equal(t, 1.0, f.Right().BalanceRef)
	assert.Equal(t, 0.0, f.Left().BalanceRef)
	assert.Equal(t, r3.Vec{Y: -0.05}, f.Right().ZmpRef)
}

func TestDistributeForce_CoincidentFeet(t *testing.T) {
	p := testParam()
	c := Centroid{ZmpRef: r3.Vec{X: 0.01, Y: 0.02}, ForceRef: r3.Vec{Z: 490}}
	f := NewFeet(r3.Vec{X: 0.3, Y: 0.1}, r3.Vec{X: 0.3, Y: 0.1})
	f.Right().ContactRef = true
	f.Left().ContactRef = true

	DistributeForce(p, &c, &f)

	for _, side := range Sides {
		ft := f.Foot(side)
		assert.Equal(t, 0.5, ft.BalanceRef, side.String())
		assert.True(t, geom.Finite(ft.ZmpRef), side.String())
		assert.True(t, geom.Finite(ft.ForceRef), side.String())
		assert.True(t, geom.Finite(ft.MomentRef), side.String())
	}
}

func TestDistributeForce_ZmpAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	uniform := func(lo, hi float64) float64 { return lo + (hi-lo)*rng.Float64() }
	vec := func(scale float64) r3.Vec {
		return r3.Vec{X: uniform(-scale, scale), Y: uniform(-scale, scale), Z: uniform(-scale, scale)}
	}

	for i := 0; i < 2000; i++ {
		a, b := vec(0.2), vec(0.2)
		p := testParam()
		p.ZmpMin = r3.Vec{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)}
		p.ZmpMax = r3.Vec{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)}

		c := Centroid{ZmpRef: vec(3), ForceRef: r3.Vec{Z: uniform(1, 1000)}}
		switch i % 50 {
		case 0:
			c.ZmpRef.X = math.NaN()
		case 1:
			c.ZmpRef = r3.Vec{X: math.Inf(1), Y: math.NaN()}
		case 2:
			c.ZmpRef.Y = math.Inf(-1)
		}
		f := NewFeet(vec(1), vec(1))
		f.Right().ContactRef = rng.Intn(2) == 1
		f.Left().ContactRef = rng.Intn(2) == 1
		for _, side := range Sides {
			ft := f.Foot(side)
			ft.AngleRef = vec(math.Pi)
			ft.OriRef = geom.FromRollPitchYaw(ft.AngleRef)
		}

		DistributeForce(p, &c, &f)

		for _, side := range Sides {
			z := f.Foot(side).ZmpRef
			if !withinBounds(z, p.ZmpMin, p.ZmpMax) {
				t.Fatalf("iteration %d: %s zmp_ref=%v outside [%v, %v]", i, side, z, p.ZmpMin, p.ZmpMax)
			}
			bal := f.Foot(side).BalanceRef
			if !(bal >= 0 && bal <= 1) {
				t.Fatalf("iteration %d: %s balance_ref=%v", i, side, bal)
			}
		}
		if sum := f.Right().BalanceRef + f.Left().BalanceRef; math.Abs(sum-1) > 1e-12 {
			t.Fatalf("iteration %d: balance sum=%v", i, sum)
		}
	}
}

// withinBounds is false for NaN components.
func withinBounds(v, lo, hi r3.Vec) bool {
	return v.X >= lo.X && v.X <= hi.X &&
		v.Y >= lo.Y && v.Y <= hi.Y &&
		v.Z >= lo.Z && v.Z <= hi.Z
}

func TestDistributeForce_NonFiniteZmpRefIsClamped(t *testing.T) {
	p := testParam()
	for _, tc := range []struct {
		name        string
		right, left bool
	}{
		{"SingleRight", true, false},
		{"SingleLeft", false, true},
		{"Double", true, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := Centroid{
				ZmpRef:   r3.Vec{X: math.Inf(1), Y: math.NaN()},
				ForceRef: r3.Vec{Z: p.TotalMass * p.Gravity},
			}
			f := NewFeet(r3.Vec{Y: -0.1}, r3.Vec{Y: 0.1})
			f.Right().ContactRef = tc.right
			f.Left().ContactRef = tc.left

			DistributeForce(p, &c, &f)

			for _, side := range Sides {
				ft := f.Foot(side)
				assert.True(t, withinBounds(ft.ZmpRef, p.ZmpMin, p.ZmpMax), "%s zmp_ref=%v", side, ft.ZmpRef)
				assert.True(t, geom.Finite(ft.MomentRef), "%s moment_ref=%v", side, ft.MomentRef)
			}
			assert.InDelta(t, 1.0, f.Right().BalanceRef+f.Left().BalanceRef, 1e-12)
		})
	}
}
