package attitude

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Body axes.
var (
	AxisX = r3.Vec{X: 1}
	AxisY = r3.Vec{Y: 1}
	AxisZ = r3.Vec{Z: 1}
)

// Identity is the unit quaternion with no rotation.
var Identity = quat.Number{Real: 1}

// QuatFromWXYZ builds a quaternion from the (w, x, y, z) array layout used on
// the wire and in setpoint messages.
func QuatFromWXYZ(q [4]float64) quat.Number {
	return quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]}
}

// WXYZ flattens q into (w, x, y, z).
func WXYZ(q quat.Number) [4]float64 {
	return [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag}
}

// AxisAngle returns the rotation of angle radians about axis.
func AxisAngle(axis r3.Vec, angle float64) quat.Number {
	if angle == 0 || r3.Norm(axis) == 0 {
		return Identity
	}
	return quat.Number(r3.NewRotation(angle, r3.Unit(axis)))
}

// Normalize scales q to unit norm. A zero quaternion maps to Identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity
	}
	q = quat.Scale(1/n, q)
	// keep the scalar part non-negative so equal rotations compare equal
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// Rotate applies q to the body-frame vector v.
func Rotate(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(Normalize(q)).Rotate(v)
}

// RotateInverse applies the conjugate of q, taking a NED vector into the body
// frame.
func RotateInverse(q quat.Number, v r3.Vec) r3.Vec {
	return r3.Rotation(quat.Conj(Normalize(q))).Rotate(v)
}

// DcmFromQuat returns the body→NED rotation matrix of q.
func DcmFromQuat(q quat.Number) Dcm {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	return Dcm{
		{1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y)},
		{2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x)},
		{2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y)},
	}
}

// QuatFromDcm converts a rotation matrix into a unit quaternion using
// Shepperd's method.
func QuatFromDcm(r Dcm) quat.Number {
	tr := r[0][0] + r[1][1] + r[2][2]
	var q quat.Number

	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = quat.Number{
			Real: 0.25 * s,
			Imag: (r[2][1] - r[1][2]) / s,
			Jmag: (r[0][2] - r[2][0]) / s,
			Kmag: (r[1][0] - r[0][1]) / s,
		}
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		q = quat.Number{
			Real: (r[2][1] - r[1][2]) / s,
			Imag: 0.25 * s,
			Jmag: (r[0][1] + r[1][0]) / s,
			Kmag: (r[0][2] + r[2][0]) / s,
		}
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		q = quat.Number{
			Real: (r[0][2] - r[2][0]) / s,
			Imag: (r[0][1] + r[1][0]) / s,
			Jmag: 0.25 * s,
			Kmag: (r[1][2] + r[2][1]) / s,
		}
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		q = quat.Number{
			Real: (r[1][0] - r[0][1]) / s,
			Imag: (r[0][2] + r[2][0]) / s,
			Jmag: (r[1][2] + r[2][1]) / s,
			Kmag: 0.25 * s,
		}
	}

	return Normalize(q)
}

// WrapPi wraps an angle into (−π, π].
func WrapPi(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
