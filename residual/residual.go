// Package residual defines the matched keypoint-to-feature correspondence the least-squares core
// optimizes over; it sits below both egomotion/mapping (which build terms from featurefit's line
// and plane fits) and lsq (which consumes them) to avoid a dependency cycle between them.
package residual

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Term is one matched keypoint-to-feature correspondence. A is the (idempotent, symmetric)
// projector encoding the feature geometry, so A itself doubles as its own matrix square root:
// the residual vector is A*(R*X+T-P) and its squared norm equals (R*X+T-P)ᵀA(R*X+T-P).
type Term struct {
	A       *mat.Dense // 3x3 PSD projector
	P       r3.Vector  // feature anchor (centroid of the fitted neighbors)
	X       r3.Vector  // keypoint position in the pre-motion frame
	RelTime float64    // keypoint's sweep fraction, used by ego-motion's to_start dependency
}
