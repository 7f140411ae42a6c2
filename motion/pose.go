// Package motion implements the 6-DOF pose representation, axis-angle rotation, rigid
// composition, and constant-velocity undistortion primitives shared by ego-motion and mapping.
package motion

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Pose is a 6-vector rigid transform: R is an axis-angle rotation (direction is the axis,
// magnitude is the angle in radians) and T is the translation.
type Pose struct {
	R r3.Vector
	T r3.Vector
}

// Identity is the zero pose.
func Identity() Pose {
	return Pose{}
}

// RotationMatrix returns the 3x3 rotation matrix for an axis-angle vector via Rodrigues' formula.
func RotationMatrix(aa r3.Vector) *mat.Dense {
	theta := aa.Norm()
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	axis := aa.Mul(1 / theta)
	k := skew(axis)
	var k2 mat.Dense
	k2.Mul(k, k)

	sinT, cosT := math.Sin(theta), math.Cos(theta)
	m := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			id := 0.0
			if i == j {
				id = 1
			}
			m.Set(i, j, id+sinT*k.At(i, j)+(1-cosT)*k2.At(i, j))
		}
	}
	return m
}

func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

func mulMatVec(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// Apply rigidly transforms a point by this pose: R*X + T.
func (p Pose) Apply(x r3.Vector) r3.Vector {
	return mulMatVec(RotationMatrix(p.R), x).Add(p.T)
}

// AtFraction scales a sweep-spanning pose down to fraction s in [0,1]: R_s = axis_angle(r*s),
// t_s = t*s. Linear interpolation of the axis-angle vector stands in for SLERP, adequate for the
// small rotations within one sweep.
func AtFraction(t Pose, s float64) Pose {
	return Pose{R: t.R.Mul(s), T: t.T.Mul(s)}
}

// ToStart maps a point acquired at fraction s of the sweep into the start-of-sweep frame:
// X0 = R_s^T (X - t_s).
func ToStart(x r3.Vector, s float64, t Pose) r3.Vector {
	ts := AtFraction(t, s)
	rs := RotationMatrix(ts.R)
	return mulMatVec(rs.T(), x.Sub(ts.T))
}

// ToEnd maps a point acquired at fraction s of the sweep into the end-of-sweep frame:
// X1 = R * R_s^T (X - t_s) + t.
func ToEnd(x r3.Vector, s float64, t Pose) r3.Vector {
	x0 := ToStart(x, s, t)
	return mulMatVec(RotationMatrix(t.R), x0).Add(t.T)
}

// ToWorld rigidly transforms an end-of-sweep point into the world frame.
func ToWorld(x r3.Vector, world Pose) r3.Vector {
	return world.Apply(x)
}

// Compose returns the rigid composition a ⊕ b: apply b first, then a.
// R = Ra*Rb, T = Ra*Tb + Ta.
func Compose(a, b Pose) Pose {
	ra := RotationMatrix(a.R)
	rb := RotationMatrix(b.R)
	var rc mat.Dense
	rc.Mul(ra, rb)
	t := mulMatVec(ra, b.T).Add(a.T)
	return Pose{R: matrixToAxisAngle(&rc), T: t}
}

// matrixToAxisAngle is the SO(3) log map: it recovers the axis-angle vector of a rotation matrix.
func matrixToAxisAngle(r *mat.Dense) r3.Vector {
	trace := r.At(0, 0) + r.At(1, 1) + r.At(2, 2)
	cosTheta := (trace - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-9 {
		return r3.Vector{}
	}
	sinTheta := math.Sin(theta)
	axis := r3.Vector{
		X: (r.At(2, 1) - r.At(1, 2)) / (2 * sinTheta),
		Y: (r.At(0, 2) - r.At(2, 0)) / (2 * sinTheta),
		Z: (r.At(1, 0) - r.At(0, 1)) / (2 * sinTheta),
	}
	return axis.Mul(theta)
}
