// Package featurefit implements k-NN candidate selection plus PCA line/plane fitting, the shared
// matching step behind both ego-motion and mapping.
package featurefit

import (
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Params bounds one line or plane fit.
type Params struct {
	K            int
	MaxDist      float64
	FactorLine   float64 // line acceptance: λ1 ≥ FactorLine·λ2
	Factor1Plane float64 // plane acceptance: λ2 ≥ Factor1Plane·λ3
	Factor2Plane float64 // plane acceptance: λ1 ≤ Factor2Plane·λ2
}

// Neighbors returns the k nearest points to query among candidates.
//
// Candidate pools here (a previous sweep's keypoints, or a rolling-grid box-query bag) are always
// small enough — hundreds, not millions, of points — that a linear scan with a full sort costs
// less than building and maintaining a spatial index per frame; the design notes explicitly permit
// replacing the matching structure as long as query results are preserved.
func Neighbors(query r3.Vector, candidates []r3.Vector, k int) []r3.Vector {
	type scored struct {
		p r3.Vector
		d float64
	}
	scoredPts := make([]scored, len(candidates))
	for i, c := range candidates {
		scoredPts[i] = scored{c, query.Sub(c).Norm2()}
	}
	sort.Slice(scoredPts, func(a, b int) bool { return scoredPts[a].d < scoredPts[b].d })
	if k > len(scoredPts) {
		k = len(scoredPts)
	}
	out := make([]r3.Vector, k)
	for i := 0; i < k; i++ {
		out[i] = scoredPts[i].p
	}
	return out
}

// Distance returns the projected point-to-feature distance |A·(query-centroid)|, the same
// quantity the residual assembled from A and centroid will measure at the query pose. Callers use
// it to gate a correspondence before it ever reaches the optimizer.
func Distance(a *mat.Dense, centroid, query r3.Vector) float64 {
	return applyMat(a, query.Sub(centroid)).Norm()
}

// FitLine fits a line through neighbors via PCA. Accepted iff the farthest neighbor is within
// MaxDist and λ1 ≥ FactorLine·λ2. On acceptance returns A = I - n·nᵀ (the projector orthogonal to
// the line director n, which doubles as its own square root since it is idempotent) and the
// centroid P.
func FitLine(neighbors []r3.Vector, p Params) (*mat.Dense, r3.Vector, bool) {
	if len(neighbors) < 2 {
		return nil, r3.Vector{}, false
	}
	centroid := centroidOf(neighbors)
	if farthest(centroid, neighbors) > p.MaxDist {
		return nil, r3.Vector{}, false
	}
	vals, vecs := pca(neighbors, centroid)
	if vals[0] < p.FactorLine*vals[1] {
		return nil, r3.Vector{}, false
	}
	return lineProjector(vecs[0]), centroid, true
}

// FitPlane fits a plane through neighbors via PCA. Accepted iff the farthest neighbor is within
// MaxDist, λ2 ≥ Factor1Plane·λ3, and λ1 ≤ Factor2Plane·λ2. On acceptance returns A = n·nᵀ (the
// rank-1 projector along the plane normal n, also idempotent) and the centroid P.
func FitPlane(neighbors []r3.Vector, p Params) (*mat.Dense, r3.Vector, bool) {
	if len(neighbors) < 3 {
		return nil, r3.Vector{}, false
	}
	centroid := centroidOf(neighbors)
	if farthest(centroid, neighbors) > p.MaxDist {
		return nil, r3.Vector{}, false
	}
	vals, vecs := pca(neighbors, centroid)
	if vals[1] < p.Factor1Plane*vals[2] || vals[0] > p.Factor2Plane*vals[1] {
		return nil, r3.Vector{}, false
	}
	return outer(vecs[2]), centroid, true
}

func centroidOf(pts []r3.Vector) r3.Vector {
	var sum r3.Vector
	for _, p := range pts {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(pts)))
}

func farthest(center r3.Vector, pts []r3.Vector) float64 {
	max := 0.0
	for _, p := range pts {
		if d := center.Sub(p).Norm(); d > max {
			max = d
		}
	}
	return max
}

// pca returns the eigenvalues, descending (λ1 ≥ λ2 ≥ λ3), and their eigenvectors of the
// covariance of pts about centroid.
func pca(pts []r3.Vector, centroid r3.Vector) ([3]float64, [3]r3.Vector) {
	cov := mat.NewSymDense(3, nil)
	for _, p := range pts {
		d := p.Sub(centroid)
		dv := [3]float64{d.X, d.Y, d.Z}
		for i := 0; i < 3; i++ {
			for j := i; j < 3; j++ {
				cov.SetSym(i, j, cov.At(i, j)+dv[i]*dv[j])
			}
		}
	}

	var eig mat.EigenSym
	eig.Factorize(cov, true)
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum returns ascending eigenvalues; the spec orders λ1 (largest) first.
	order := [3]int{2, 1, 0}
	var outVals [3]float64
	var outVecs [3]r3.Vector
	for pos, idx := range order {
		outVals[pos] = values[idx]
		outVecs[pos] = r3.Vector{X: vecs.At(0, idx), Y: vecs.At(1, idx), Z: vecs.At(2, idx)}
	}
	return outVals, outVecs
}

func lineProjector(n r3.Vector) *mat.Dense {
	proj := mat.NewDense(3, 3, nil)
	proj.Sub(identity3(), outer(n))
	return proj
}

func outer(n r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		n.X * n.X, n.X * n.Y, n.X * n.Z,
		n.Y * n.X, n.Y * n.Y, n.Y * n.Z,
		n.Z * n.X, n.Z * n.Y, n.Z * n.Z,
	})
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func applyMat(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vector{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}
