package lsq

import (
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/test"

	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/residual"
)

// planeProjectorZ is the rank-1 projector onto the z axis: A = n*n^T for n = (0,0,1).
func planeProjectorZ() *mat.Dense {
	return mat.NewDense(3, 3, []float64{0, 0, 0, 0, 0, 0, 0, 0, 1})
}

// planeTerms builds residual terms anchored at the sensor origin (X=0), so the rotation component
// of the pose cannot affect the residual at all: e = R*0 + T - P = T - P, isolating T.Z - P.Z as
// the only quantity the plane projector measures. Zero residual therefore occurs exactly, and
// only, at T.Z == trueT.T.Z.
func planeTerms(trueT motion.Pose) []residual.Term {
	a := planeProjectorZ()
	terms := make([]residual.Term, 6)
	for i := range terms {
		terms[i] = residual.Term{A: a, P: r3.Vector{Z: trueT.T.Z}, X: r3.Vector{}}
	}
	return terms
}

func TestSolveConvergesToKnownTranslation(t *testing.T) {
	trueT := motion.Pose{T: r3.Vector{Z: 0.3}}
	terms := planeTerms(trueT)

	match := func(pose motion.Pose) ([]residual.Term, error) { return terms, nil }
	transform := func(x r3.Vector, relTime float64, pose motion.Pose) r3.Vector { return x }

	p := Params{
		MaxIter: 20, ICPFrequency: 0, MinResiduals: 3,
		InitialLambda: 1e-3, LambdaUp: 2, LambdaDown: 3, Epsilon: 1e-10, NumericRetries: 5,
	}
	result, stats, err := Solve(motion.Identity(), match, transform, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.FinalResiduals, test.ShouldBeGreaterThan, 0)
	test.That(t, result.T.Z, test.ShouldAlmostEqual, trueT.T.Z, 1e-3)
}

func TestSolveReturnsDegenerateMatchOnTooFewResiduals(t *testing.T) {
	terms := planeTerms(motion.Identity())[:1]
	match := func(pose motion.Pose) ([]residual.Term, error) { return terms, nil }
	transform := func(x r3.Vector, relTime float64, pose motion.Pose) r3.Vector { return x }

	p := Params{MaxIter: 5, MinResiduals: 3, InitialLambda: 1e-3, LambdaUp: 2, LambdaDown: 3, Epsilon: 1e-6, NumericRetries: 2}
	_, _, err := Solve(motion.Identity(), match, transform, p)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSolveReMatchesOnICPFrequency(t *testing.T) {
	calls := 0
	trueT := motion.Pose{T: r3.Vector{Z: 0.2}}
	match := func(pose motion.Pose) ([]residual.Term, error) {
		calls++
		return planeTerms(trueT), nil
	}
	transform := func(x r3.Vector, relTime float64, pose motion.Pose) r3.Vector { return x }

	p := Params{
		MaxIter: 6, ICPFrequency: 2, MinResiduals: 3,
		InitialLambda: 1e-3, LambdaUp: 2, LambdaDown: 3, Epsilon: 1e-12, NumericRetries: 5,
	}
	_, _, err := Solve(motion.Identity(), match, transform, p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls, test.ShouldBeGreaterThan, 1)
}
