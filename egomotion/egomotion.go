// Package egomotion estimates the rigid transform between two consecutive sweeps by matching the
// current sweep's edge and planar keypoints against lines and planes fit from the previous
// sweep's keypoints.
package egomotion

import (
	"github.com/golang/geo/r3"

	"github.com/viam-modules/lidar-slam/featurefit"
	"github.com/viam-modules/lidar-slam/lsq"
	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/point"
	"github.com/viam-modules/lidar-slam/residual"
	"github.com/viam-modules/lidar-slam/slamerr"
)

// Params configures ego-motion's LM run, feature-fit gates for both classes, and the sanity clamp
// on the resulting translation.
type Params struct {
	LSQ                    lsq.Params
	Line, Plane            featurefit.Params
	MaxDistBetweenFrames   float64
	WarmStart              bool    // seed the outer loop from the previous frame's T_rel
	MinPointToEdgeDistance float64 // residual clamp: correspondences closer than this are discarded
}

// Solve estimates T_rel, the transform from the current sweep to the previous one. On
// slamerr.ErrExcessiveMotion the correspondence is assumed corrupt and prevTRel is kept unchanged.
func Solve(
	edgesCur, planarsCur []point.Point,
	edgesPrev, planarsPrev []r3.Vector,
	prevTRel motion.Pose,
	p Params,
) (motion.Pose, lsq.Stats, error) {
	initial := motion.Identity()
	if p.WarmStart {
		initial = prevTRel
	}

	match := func(t motion.Pose) ([]residual.Term, error) {
		var terms []residual.Term
		for _, kp := range edgesCur {
			x := motion.ToStart(kp.Pos, kp.RelTime, t)
			neighbors := featurefit.Neighbors(x, edgesPrev, p.Line.K)
			a, centroid, ok := featurefit.FitLine(neighbors, p.Line)
			if !ok || featurefit.Distance(a, centroid, x) < p.MinPointToEdgeDistance {
				continue
			}
			terms = append(terms, residual.Term{A: a, P: centroid, X: kp.Pos, RelTime: kp.RelTime})
		}
		for _, kp := range planarsCur {
			x := motion.ToStart(kp.Pos, kp.RelTime, t)
			neighbors := featurefit.Neighbors(x, planarsPrev, p.Plane.K)
			a, centroid, ok := featurefit.FitPlane(neighbors, p.Plane)
			if !ok || featurefit.Distance(a, centroid, x) < p.MinPointToEdgeDistance {
				continue
			}
			terms = append(terms, residual.Term{A: a, P: centroid, X: kp.Pos, RelTime: kp.RelTime})
		}
		return terms, nil
	}

	transform := func(x r3.Vector, relTime float64, t motion.Pose) r3.Vector {
		return motion.ToStart(x, relTime, t)
	}

	result, stats, err := lsq.Solve(initial, match, transform, p.LSQ)
	if err != nil {
		return prevTRel, stats, err
	}

	if result.T.Norm() > p.MaxDistBetweenFrames {
		return prevTRel, stats, slamerr.ErrExcessiveMotion
	}
	return result, stats, nil
}
