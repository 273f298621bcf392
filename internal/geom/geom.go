// Package geom holds the small amount of 3-D geometry the stabilizer needs on
// top of gonum's spatial/r3 and num/quat packages.
//
// Orientations are unit quaternions (r3.Rotation). The zero value of
// r3.Rotation is NOT the identity; use Identity.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// Identity is the rotation that leaves every vector unchanged.
	Identity = r3.Rotation{Real: 1}

	axisX = r3.Vec{X: 1}
	axisY = r3.Vec{Y: 1}
	axisZ = r3.Vec{Z: 1}
)

// FromRollPitchYaw returns Rz(yaw)·Ry(pitch)·Rx(roll), with roll, pitch and
// yaw taken from the X, Y and Z components of angle.
func FromRollPitchYaw(angle r3.Vec) r3.Rotation {
	rx := quat.Number(r3.NewRotation(angle.X, axisX))
	ry := quat.Number(r3.NewRotation(angle.Y, axisY))
	rz := quat.Number(r3.NewRotation(angle.Z, axisZ))
	return r3.Rotation(quat.Mul(rz, quat.Mul(ry, rx)))
}

// Inverse returns the inverse of a unit rotation (its conjugate).
func Inverse(r r3.Rotation) r3.Rotation {
	return r3.Rotation(quat.Conj(quat.Number(r)))
}

// Compose returns the rotation that applies b first, then a.
func Compose(a, b r3.Rotation) r3.Rotation {
	return r3.Rotation(quat.Mul(quat.Number(a), quat.Number(b)))
}

// Clamp bounds x into [lo, hi]. The upper bound wins if lo > hi, and NaN
// maps to lo so a clamped value is always inside the bounds.
func Clamp(x, lo, hi float64) float64 {
	if !(lo < x) {
		x = lo
	}
	if hi < x {
		x = hi
	}
	return x
}

// ClampVec clamps v componentwise into [lo, hi].
func ClampVec(v, lo, hi r3.Vec) r3.Vec {
	return r3.Vec{
		X: Clamp(v.X, lo.X, hi.X),
		Y: Clamp(v.Y, lo.Y, hi.Y),
		Z: Clamp(v.Z, lo.Z, hi.Z),
	}
}

// ClampSym clamps v componentwise into [-limit, limit].
func ClampSym(v r3.Vec, limit float64) r3.Vec {
	return r3.Vec{
		X: Clamp(v.X, -limit, limit),
		Y: Clamp(v.Y, -limit, limit),
		Z: Clamp(v.Z, -limit, limit),
	}
}

// Finite reports whether every component of v is neither NaN nor infinite.
func Finite(v r3.Vec) bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
