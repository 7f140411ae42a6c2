// Package lsq implements the Levenberg-Marquardt least-squares core shared by ego-motion and
// mapping: residual and analytic-Jacobian assembly, damped normal-equation solves, and the
// periodic re-matching loop.
package lsq

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/residual"
	"github.com/viam-modules/lidar-slam/slamerr"
)

// Params configures one optimization run.
type Params struct {
	MaxIter        int
	ICPFrequency   int // re-match every ICPFrequency outer iterations
	MinResiduals   int
	InitialLambda  float64
	LambdaUp       float64
	LambdaDown     float64
	Epsilon        float64 // convergence: step norm below this
	NumericRetries int     // damping retries per iteration before giving up as DegenerateMatch
}

// MatchFunc re-runs correspondence search (k-NN + line/plane fit) at the given pose estimate.
type MatchFunc func(t motion.Pose) ([]residual.Term, error)

// TransformFunc re-expresses a residual's stored point under the pose estimate being optimized.
// Ego-motion passes to_start(X, RelTime, T) since the point itself depends on T; mapping passes
// the identity, since its points are already undistorted and fixed.
type TransformFunc func(x r3.Vector, relTime float64, t motion.Pose) r3.Vector

// Stats reports one Solve call's outcome for logging and debug egress.
type Stats struct {
	Iterations     int
	FinalResiduals int
	FinalCost      float64
}

// Solve runs damped Gauss-Newton starting from initial, alternating pose-only refinement with
// re-matching every ICPFrequency iterations. Returns slamerr.ErrDegenerateMatch if a match ever
// yields fewer than MinResiduals terms, or if damping is exhausted without an accepted step (a
// persistent slamerr.ErrNumericFailure collapses to the same outcome).
func Solve(initial motion.Pose, match MatchFunc, transform TransformFunc, p Params) (motion.Pose, Stats, error) {
	t := initial
	terms, err := match(t)
	if err != nil {
		return initial, Stats{}, err
	}
	if len(terms) < p.MinResiduals {
		return initial, Stats{}, slamerr.ErrDegenerateMatch
	}

	lambda := p.InitialLambda
	stats := Stats{FinalResiduals: len(terms)}

	for iter := 0; iter < p.MaxIter; iter++ {
		if p.ICPFrequency > 0 && iter > 0 && iter%p.ICPFrequency == 0 {
			terms, err = match(t)
			if err != nil {
				return t, stats, err
			}
			if len(terms) < p.MinResiduals {
				return t, stats, slamerr.ErrDegenerateMatch
			}
			stats.FinalResiduals = len(terms)
		}

		_, r := buildSystem(terms, transform, t)
		cost := vecNormSq(r)

		accepted := false
		for retry := 0; retry <= p.NumericRetries; retry++ {
			j, r := buildSystem(terms, transform, t)
			delta, ok := dampedStep(j, r, lambda)
			if !ok {
				lambda *= p.LambdaUp
				continue
			}
			candidate := motion.Pose{
				R: t.R.Add(r3.Vector{X: delta.AtVec(0), Y: delta.AtVec(1), Z: delta.AtVec(2)}),
				T: t.T.Add(r3.Vector{X: delta.AtVec(3), Y: delta.AtVec(4), Z: delta.AtVec(5)}),
			}
			_, rCandidate := buildSystem(terms, transform, candidate)
			newCost := vecNormSq(rCandidate)
			if newCost < cost {
				t = candidate
				lambda = math.Max(lambda/p.LambdaDown, 1e-12)
				stats.FinalCost = newCost
				accepted = true
				if deltaNorm(delta) < p.Epsilon {
					stats.Iterations = iter + 1
					return t, stats, nil
				}
				break
			}
			lambda *= p.LambdaUp
		}
		if !accepted {
			return t, stats, slamerr.ErrDegenerateMatch
		}
		stats.Iterations = iter + 1
	}
	return t, stats, nil
}

// buildSystem assembles the stacked 3n-residual vector and its 3n×6 Jacobian at pose t. The
// Jacobian uses the standard SO(3) perturbation model R(δ⊕r) ≈ (I + skew(δ))·R(r), so
// d(R·x)/dδ = -skew(R·x) and d(R·x+t)/dδt = I; both are scaled by the feature projector A, which
// is idempotent and therefore its own matrix square root.
func buildSystem(terms []residual.Term, transform TransformFunc, t motion.Pose) (*mat.Dense, *mat.VecDense) {
	n := len(terms)
	j := mat.NewDense(3*n, 6, nil)
	r := mat.NewVecDense(3*n, nil)
	rot := motion.RotationMatrix(t.R)

	for i, term := range terms {
		x := transform(term.X, term.RelTime, t)
		rx := applyMat(rot, x)
		e := rx.Add(t.T).Sub(term.P)
		res := applyMat(term.A, e)

		row := 3 * i
		r.SetVec(row, res.X)
		r.SetVec(row+1, res.Y)
		r.SetVec(row+2, res.Z)

		var jr mat.Dense
		jr.Mul(term.A, skewMat(rx))
		jr.Scale(-1, &jr)

		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				j.Set(row+a, b, jr.At(a, b))
				j.Set(row+a, b+3, term.A.At(a, b))
			}
		}
	}
	return j, r
}

func dampedStep(j *mat.Dense, r *mat.VecDense, lambda float64) (*mat.VecDense, bool) {
	var jtj mat.Dense
	jtj.Mul(j.T(), j)
	for i := 0; i < 6; i++ {
		jtj.Set(i, i, jtj.At(i, i)+lambda)
	}
	var jtr mat.VecDense
	jtr.MulVec(j.T(), r)
	for i := 0; i < 6; i++ {
		jtr.SetVec(i, -jtr.AtVec(i))
	}
	delta := mat.NewVecDense(6, nil)
	if err := delta.SolveVec(&jtj, &jtr); err != nil {
		return nil, false
	}
	return delta, true
}

func vecNormSq(v *mat.VecDense) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += v.AtVec(i) * v.AtVec(i)
	}
	return sum
}

func deltaNorm(v *mat.VecDense) float64 {
	return math.Sqrt(vecNormSq(v))
}

func applyMat(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func skewMat(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}
