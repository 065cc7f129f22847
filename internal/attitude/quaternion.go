// Package attitude holds the unit-quaternion helpers shared by the drone
// model, the attitude error map and the reference builders.
//
// Quaternions are Hamilton quaternions stored scalar-first (w, x, y, z) and
// represent the rotation from the body frame to the world frame.
package attitude

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Identity is the zero rotation.
var Identity = quat.Number{Real: 1}

// FromSlice reads a scalar-first quaternion from s[i:i+4].
func FromSlice(s []float64, i int) quat.Number {
	return quat.Number{Real: s[i], Imag: s[i+1], Jmag: s[i+2], Kmag: s[i+3]}
}

// Put writes q scalar-first into s[i:i+4].
func Put(s []float64, i int, q quat.Number) {
	s[i], s[i+1], s[i+2], s[i+3] = q.Real, q.Imag, q.Jmag, q.Kmag
}

// Normalize returns q scaled to unit length. The zero quaternion maps to
// the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return q
	}
	return quat.Scale(1/n, q)
}

// Canonical flips q onto the hemisphere w >= 0. q and -q describe the
// same rotation.
func Canonical(q quat.Number) quat.Number {
	if q.Real < 0 {
		return quat.Scale(-1, q)
	}
	return q
}

// Difference returns the rotation taking ref to q, expressed in the
// reference frame: ref* ⊗ q, canonicalized to the short way round.
func Difference(q, ref quat.Number) quat.Number {
	return Canonical(quat.Mul(quat.Conj(ref), q))
}

// Rotate applies q to the vector v: q ⊗ (0, v) ⊗ q*.
func Rotate(q quat.Number, v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// Derivative returns the quaternion rate ½ q ⊗ (0, ω) for a body rate ω.
func Derivative(q quat.Number, omega [3]float64) quat.Number {
	w := quat.Number{Imag: omega[0], Jmag: omega[1], Kmag: omega[2]}
	return quat.Scale(0.5, quat.Mul(q, w))
}

// FromEuler builds a quaternion from roll, pitch and yaw in radians using
// the aerospace Z-Y-X sequence.
func FromEuler(roll, pitch, yaw float64) quat.Number {
	sr, cr := math.Sincos(roll / 2)
	sp, cp := math.Sincos(pitch / 2)
	sy, cy := math.Sincos(yaw / 2)
	return quat.Number{
		Real: cr*cp*cy + sr*sp*sy,
		Imag: sr*cp*cy - cr*sp*sy,
		Jmag: cr*sp*cy + sr*cp*sy,
		Kmag: cr*cp*sy - sr*sp*cy,
	}
}

// ToEuler is the inverse of FromEuler. Pitch is clamped to ±π/2 at the
// gimbal-lock singularity.
func ToEuler(q quat.Number) (roll, pitch, yaw float64) {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))
	sp := 2 * (w*y - z*x)
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch = math.Asin(sp)
	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// Angle is the rotation angle of q in radians, in [0, π].
func Angle(q quat.Number) float64 {
	q = Canonical(Normalize(q))
	vec := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	return 2 * math.Atan2(vec, q.Real)
}

// Deg converts degrees to radians.
func Deg(d float64) float64 { return d * math.Pi / 180 }
