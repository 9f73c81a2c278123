// Package attitude provides the rotation conversions used by the tail-sitter
// controller.
//
// A tail-sitter hovers at 0° pitch and cruises at −90° pitch. The usual Z-Y-X
// Euler sequence is singular exactly at that operating point, so every control
// law that involves pitch works with the intrinsic Z-X-Y sequence instead,
// which moves the gimbal lock to roll = ±90°.
package attitude

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// SingularityTolerance is the distance from ±π/2 pitch below which roll is
// pinned to zero when decoding a DCM.
const SingularityTolerance = 1.0e-3

// EulerZXY holds the angles of an intrinsic Z-X-Y Tait-Bryan sequence:
// yaw Psi about z, then roll Phi about the new x, then pitch Theta about the
// new y. All angles are in radians.
type EulerZXY struct {
	Phi   float64 // roll about x
	Theta float64 // pitch about y
	Psi   float64 // yaw about z
}

// Dcm is a direction cosine matrix rotating body-frame vectors into the
// local NED frame. Indexing is [row][column].
type Dcm [3][3]float64

// EulerZXYFromDcm decodes a DCM into Z-X-Y angles.
func EulerZXYFromDcm(r Dcm) EulerZXY {
	phi := math.Asin(clampUnit(r[2][1]))
	theta := math.Atan2(-r[2][0], r[2][2])
	psi := math.Atan2(-r[0][1], r[1][1])

	if math.Abs(theta-math.Pi/2) < SingularityTolerance || math.Abs(theta+math.Pi/2) < SingularityTolerance {
		phi = 0
		psi = math.Atan2(-r[0][1], r[1][1])
	}

	return EulerZXY{Phi: phi, Theta: theta, Psi: psi}
}

// Dcm returns the rotation Rz(psi)·Rx(phi)·Ry(theta).
func (e EulerZXY) Dcm() Dcm {
	sphi, cphi := math.Sincos(e.Phi)
	sth, cth := math.Sincos(e.Theta)
	spsi, cpsi := math.Sincos(e.Psi)

	return Dcm{
		{cpsi*cth - spsi*sphi*sth, -spsi * cphi, cpsi*sth + spsi*sphi*cth},
		{spsi*cth + cpsi*sphi*sth, cpsi * cphi, spsi*sth - cpsi*sphi*cth},
		{-cphi * sth, sphi, cphi * cth},
	}
}

// Quat returns the unit quaternion of the sequence, qz(psi)·qx(phi)·qy(theta).
func (e EulerZXY) Quat() quat.Number {
	qz := AxisAngle(AxisZ, e.Psi)
	qx := AxisAngle(AxisX, e.Phi)
	qy := AxisAngle(AxisY, e.Theta)
	return Normalize(quat.Mul(quat.Mul(qz, qx), qy))
}

// EulerZXYFromQuat decodes a (not necessarily normalised) attitude quaternion.
func EulerZXYFromQuat(q quat.Number) EulerZXY {
	return EulerZXYFromDcm(DcmFromQuat(q))
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
