package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// PseudoRapidity returns eta = asinh(z/rho) of the direction of v. The
// beam axis is z. A vector on the axis maps to ±Inf, the origin to 0.
func PseudoRapidity(v r3.Vec) float64 {
	rho := math.Hypot(v.X, v.Y)
	if rho == 0 {
		switch {
		case v.Z > 0:
			return math.Inf(1)
		case v.Z < 0:
			return math.Inf(-1)
		default:
			return 0
		}
	}
	return math.Asinh(v.Z / rho)
}

// Azimuth returns phi in (-π, π].
func Azimuth(v r3.Vec) float64 {
	return math.Atan2(v.Y, v.X)
}

// DeltaPhi returns a - b wrapped into [-π, π].
func DeltaPhi(a, b float64) float64 {
	d := math.Mod(a-b, 2*math.Pi)
	switch {
	case d > math.Pi:
		d -= 2 * math.Pi
	case d < -math.Pi:
		d += 2 * math.Pi
	}
	return d
}

// DeltaR is the angular distance sqrt(Δeta² + Δphi²) between the
// directions of a and b.
func DeltaR(a, b r3.Vec) float64 {
	return math.Hypot(PseudoRapidity(a)-PseudoRapidity(b), DeltaPhi(Azimuth(a), Azimuth(b)))
}

// CylinderPoint returns the point at transverse radius r along the
// direction (eta, phi).
func CylinderPoint(r, eta, phi float64) r3.Vec {
	return r3.Vec{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: r * math.Sinh(eta)}
}
