// Package mapping refines the ego-motion result against the rolling map and integrates the new
// sweep into it: the second of the two stages that share the Levenberg-Marquardt core.
package mapping

import (
	"github.com/golang/geo/r3"

	"github.com/viam-modules/lidar-slam/featurefit"
	"github.com/viam-modules/lidar-slam/lsq"
	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/point"
	"github.com/viam-modules/lidar-slam/residual"
	"github.com/viam-modules/lidar-slam/voxelgrid"
)

// Params configures mapping's LM run, feature-fit gates, and the box-query radius drawn from the
// rolling grid around each transformed keypoint.
type Params struct {
	LSQ                    lsq.Params
	Line, Plane            featurefit.Params
	QueryRadius            float64
	MinPointToEdgeDistance float64 // residual clamp: correspondences closer than this are discarded
}

// Result carries the refined world pose and the frame's keypoints already lifted into world
// frame, ready for grid insertion.
type Result struct {
	TWorld       motion.Pose
	EdgesWorld   []r3.Vector
	PlanarsWorld []r3.Vector
	Stats        lsq.Stats
}

// Solve refines T_world, initialized from T_world ⊕ T_rel, by matching the sweep's end-of-sweep
// keypoints against the rolling edge/planar grids via bounded box queries. It does not insert the
// result into the grids; the caller does that once mapping has converged.
func Solve(
	edgesEnd, planarsEnd []point.Point,
	edgeGrid, planarGrid *voxelgrid.Grid,
	tRel, prevTWorld motion.Pose,
	p Params,
) (Result, error) {
	initial := motion.Compose(prevTWorld, tRel)

	edgeXs := toVectors(edgesEnd)
	planarXs := toVectors(planarsEnd)

	match := func(t motion.Pose) ([]residual.Term, error) {
		var terms []residual.Term
		for _, x := range edgeXs {
			world := t.Apply(x)
			candidates := edgeGrid.Query(world, p.QueryRadius)
			neighbors := featurefit.Neighbors(world, candidates, p.Line.K)
			a, centroid, ok := featurefit.FitLine(neighbors, p.Line)
			if !ok || featurefit.Distance(a, centroid, world) < p.MinPointToEdgeDistance {
				continue
			}
			terms = append(terms, residual.Term{A: a, P: centroid, X: x})
		}
		for _, x := range planarXs {
			world := t.Apply(x)
			candidates := planarGrid.Query(world, p.QueryRadius)
			neighbors := featurefit.Neighbors(world, candidates, p.Plane.K)
			a, centroid, ok := featurefit.FitPlane(neighbors, p.Plane)
			if !ok || featurefit.Distance(a, centroid, world) < p.MinPointToEdgeDistance {
				continue
			}
			terms = append(terms, residual.Term{A: a, P: centroid, X: x})
		}
		return terms, nil
	}

	identity := func(x r3.Vector, _ float64, _ motion.Pose) r3.Vector { return x }

	result, stats, err := lsq.Solve(initial, match, identity, p.LSQ)
	if err != nil {
		return Result{}, err
	}

	edgesWorld := make([]r3.Vector, len(edgeXs))
	for i, x := range edgeXs {
		edgesWorld[i] = result.Apply(x)
	}
	planarsWorld := make([]r3.Vector, len(planarXs))
	for i, x := range planarXs {
		planarsWorld[i] = result.Apply(x)
	}

	return Result{TWorld: result, EdgesWorld: edgesWorld, PlanarsWorld: planarsWorld, Stats: stats}, nil
}

func toVectors(pts []point.Point) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, p := range pts {
		out[i] = p.Pos
	}
	return out
}
