package stabilizer

import (
	"gonum.org/v1/gonum/spatial/r3"

	"balance-ng/internal/geom"
)

// coincidentFeetEps is the squared foot separation below which double support
// falls back to an even split.
const coincidentFeetEps = 1.0e-10

// DistributeForce splits the desired net wrench between the feet according to
// the planned contact mode and clamps each foot's ZMP into the sole.
//
// Reads Foot.ContactRef, PosRef, OriRef and Centroid.ZmpRef, ForceRef,
// MomentRef.
// Writes Foot.BalanceRef, ZmpRef, ForceRef and MomentRef.
func DistributeForce(p Param, c *Centroid, f *Feet) {
	right, left := f.Right(), f.Left()

	switch {
	case !right.ContactRef && !left.ContactRef:
		right.BalanceRef, left.BalanceRef = 0.5, 0.5
		right.ZmpRef, left.ZmpRef = r3.Vec{}, r3.Vec{}

	case right.ContactRef && !left.ContactRef:
		singleSupport(c, right, left)

	case !right.ContactRef && left.ContactRef:
		singleSupport(c, left, right)

	default:
		doubleSupport(c, right, left)
	}

	for _, side := range Sides {
		ft := f.Foot(side)
		ft.ZmpRef = geom.ClampVec(ft.ZmpRef, p.ZmpMin, p.ZmpMax)

		ft.ForceRef = geom.Inverse(ft.OriRef).Rotate(r3.Scale(ft.BalanceRef, c.ForceRef))
		ft.MomentRef = r3.Vec{
			X: ft.ForceRef.Z * ft.ZmpRef.Y,
			Y: -ft.ForceRef.Z * ft.ZmpRef.X,
			Z: ft.BalanceRef * c.MomentRef.Z,
		}
	}
}

func singleSupport(c *Centroid, support, swing *Foot) {
	support.BalanceRef = 1
	support.ZmpRef = geom.Inverse(support.OriRef).Rotate(r3.Sub(c.ZmpRef, support.PosRef))
	swing.BalanceRef = 0
	swing.ZmpRef = r3.Vec{}
}

// doubleSupport picks the balance pair that places the weighted foot
// positions at the projection of the desired ZMP onto the line between the
// feet, and hands the residual to each foot's local ZMP so the weighted local
// ZMPs reconstruct the desired one.
func doubleSupport(c *Centroid, f0, f1 *Foot) {
	var b0, b1 float64

	pdiff := r3.Sub(f1.PosRef, f0.PosRef)
	pdiff2 := r3.Norm2(pdiff)
	if pdiff2 < coincidentFeetEps {
		b0, b1 = 0.5, 0.5
	} else {
		b0 = geom.Clamp(r3.Dot(pdiff, r3.Sub(f1.PosRef, c.ZmpRef))/pdiff2, 0, 1)
		b1 = 1 - b0
	}

	f0.BalanceRef = b0
	f1.BalanceRef = b1

	proj := r3.Add(r3.Scale(b0, f0.PosRef), r3.Scale(b1, f1.PosRef))
	residual := r3.Sub(c.ZmpRef, proj)

	// b0+b1 == 1, so b2 >= 0.5.
	b2 := b0*b0 + b1*b1
	f0.ZmpRef = r3.Scale(b0/b2, geom.Inverse(f0.OriRef).Rotate(residual))
	f1.ZmpRef = r3.Scale(b1/b2, geom.Inverse(f1.OriRef).Rotate(residual))
}
