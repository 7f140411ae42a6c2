// Package pipeline wires scanline intake, keypoint extraction, undistortion, ego-motion, mapping,
// and the rolling voxel grids into the per-frame sequence that advances one sweep at a time.
package pipeline

import (
	"errors"

	"github.com/golang/geo/r3"

	"github.com/viam-modules/lidar-slam/config"
	"github.com/viam-modules/lidar-slam/egomotion"
	"github.com/viam-modules/lidar-slam/featurefit"
	"github.com/viam-modules/lidar-slam/keypoints"
	"github.com/viam-modules/lidar-slam/lsq"
	"github.com/viam-modules/lidar-slam/mapping"
	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/point"
	"github.com/viam-modules/lidar-slam/slamerr"
	"github.com/viam-modules/lidar-slam/voxelgrid"
)

// FrameStats reports one frame's outcome for logging and debug egress.
type FrameStats struct {
	EdgeCount, PlanarCount int
	EgoMotion              lsq.Stats
	Mapping                lsq.Stats
}

// DebugFrame carries optional per-point diagnostics, populated only when the tuning snapshot's
// DisplayMode is set.
type DebugFrame struct {
	ScanlineCurvature map[int]*keypoints.DebugArrays
}

// Pipeline holds the mutable SLAM state that advances across AddFrame calls: the previous sweep's
// keypoints for ego-motion, the current pose estimates, and the two rolling voxel grids that back
// the map.
type Pipeline struct {
	cfg config.Config

	tWorld motion.Pose
	tRel   motion.Pose // most recent relative motion, kept for warm-starting and as a fallback

	prevEdges, prevPlanars []r3.Vector

	edgeGrid, planarGrid *voxelgrid.Grid
	mapInitialized       bool // true once the rolling grids hold at least one inserted sweep

	trajectory []motion.Pose
}

// New constructs a Pipeline from a validated config.Config.
func New(cfg config.Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{cfg: cfg}
	p.reset()
	return p, nil
}

// Reset re-initializes the pipeline's pose and map state in place, optionally against a new
// config.Config (a nil cfg leaves the existing one unchanged).
func (p *Pipeline) Reset(cfg *config.Config) error {
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return err
		}
		p.cfg = *cfg
	}
	p.reset()
	return nil
}

func (p *Pipeline) reset() {
	p.tWorld = motion.Identity()
	p.tRel = motion.Identity()
	p.prevEdges = nil
	p.prevPlanars = nil
	p.mapInitialized = false
	p.trajectory = nil

	gridParams := voxelgrid.Params{
		VoxelSize: p.cfg.Tuning.VoxelSize,
		NVoxelsX:  p.cfg.Tuning.GridNbVoxel,
		NVoxelsY:  p.cfg.Tuning.GridNbVoxel,
		NVoxelsZ:  p.cfg.Tuning.GridNbVoxel,
		LeafSize:  leafSize(p.cfg.Tuning),
	}
	p.edgeGrid = voxelgrid.New(gridParams)
	p.planarGrid = voxelgrid.New(gridParams)
}

// leafSize derives the rolling grid's per-voxel downsampling cell size. PointcloudNbVoxel
// expresses the same concern as a voxel-count resolution (how many sub-cells a macro voxel is
// divided into for downsampling) rather than an absolute size, and takes precedence when set;
// LeafVoxelSize remains available for callers who would rather tune it directly in meters.
func leafSize(t config.TuningSnapshot) float64 {
	if t.PointcloudNbVoxel > 0 {
		return t.VoxelSize / float64(t.PointcloudNbVoxel)
	}
	return t.LeafVoxelSize
}

// TWorld returns the pipeline's current world pose estimate.
func (p *Pipeline) TWorld() motion.Pose { return p.tWorld }

// Trajectory returns every accepted world pose in acquisition order.
func (p *Pipeline) Trajectory() []motion.Pose {
	out := make([]motion.Pose, len(p.trajectory))
	copy(out, p.trajectory)
	return out
}

func (p *Pipeline) egoParams() egomotion.Params {
	t := p.cfg.Tuning
	return egomotion.Params{
		LSQ: lsq.Params{
			MaxIter: t.EgoMaxIter, ICPFrequency: t.EgoICPFrequency, MinResiduals: 6,
			InitialLambda: 1e-3, LambdaUp: 2, LambdaDown: 3, Epsilon: 1e-6, NumericRetries: 5,
		},
		Line:                   featurefit.Params{K: t.EgoLineK, MaxDist: t.EgoMaxLineDist, FactorLine: t.EgoLineFactor},
		Plane:                  featurefit.Params{K: t.EgoPlaneK, MaxDist: t.EgoMaxPlaneDist, Factor1Plane: t.EgoPlaneFactor1, Factor2Plane: t.EgoPlaneFactor2},
		MaxDistBetweenFrames:   t.MaxDistBetweenFrames,
		WarmStart:              t.WarmStartEgoMotion,
		MinPointToEdgeDistance: t.MinPointToEdgeDistance,
	}
}

func (p *Pipeline) mapParams() mapping.Params {
	t := p.cfg.Tuning
	return mapping.Params{
		LSQ: lsq.Params{
			MaxIter: t.MapMaxIter, ICPFrequency: t.MapICPFrequency, MinResiduals: 6,
			InitialLambda: 1e-3, LambdaUp: 2, LambdaDown: 3, Epsilon: 1e-6, NumericRetries: 5,
		},
		Line:                   featurefit.Params{K: t.MapLineK, MaxDist: t.MapMaxLineDist, FactorLine: t.MapLineFactor},
		Plane:                  featurefit.Params{K: t.MapPlaneK, MaxDist: t.MapMaxPlaneDist, Factor1Plane: t.MapPlaneFactor1, Factor2Plane: t.MapPlaneFactor2},
		QueryRadius:            t.VoxelSize,
		MinPointToEdgeDistance: t.MinPointToEdgeDistance,
	}
}

func (p *Pipeline) keypointParams() keypoints.Params {
	t := p.cfg.Tuning
	return keypoints.Params{
		NeighborWidth:         t.NeighborWidth,
		MinRange:              t.MinRange,
		MaxEdgesPerLine:       t.MaxEdgesPerLine,
		MaxPlanarsPerLine:     t.MaxPlanarsPerLine,
		EdgeThreshold:         t.EdgeThreshold,
		PlaneThreshold:        t.PlaneThreshold,
		OcclusionGapThreshold: t.OcclusionGapThreshold,
		GrazingCosine:         t.GrazingCosine,
		AngleResolution:       t.AngleResolution,
	}
}

// AddFrame advances the pipeline by one sweep: scanline grouping, keypoint extraction, ego-motion
// against the previous sweep's keypoints, motion undistortion, mapping against the rolling grids,
// and grid insertion. A slamerr.ErrDegenerateMatch or slamerr.ErrNumericFailure from ego-motion or
// mapping does not abort the frame: pose continuity is preserved by dead reckoning from the prior
// motion estimate, the grids are still updated, and the error is only returned once the frame has
// otherwise finished, for the caller's own logging. Every other error (calibration, empty frame,
// excessive motion) leaves the pipeline's pose and map state at their pre-call values and aborts
// the frame immediately.
func (p *Pipeline) AddFrame(frame point.Frame) (FrameStats, *DebugFrame, error) {
	debug := p.cfg.Tuning.DisplayMode

	lines, err := point.GroupIntoScanlines(frame, point.Calibration{
		LaserCount:     p.cfg.Calibration.LaserCount,
		CanonicalOrder: p.cfg.Calibration.CanonicalOrder,
	})
	if err != nil {
		return FrameStats{}, nil, err
	}

	var debugFrame *DebugFrame
	if debug {
		debugFrame = &DebugFrame{ScanlineCurvature: make(map[int]*keypoints.DebugArrays)}
	}

	kpParams := p.keypointParams()
	var edges, planars []point.Point
	for i := range lines {
		d := keypoints.Extract(&lines[i], kpParams, debug)
		if debug && d != nil {
			debugFrame.ScanlineCurvature[lines[i].CanonicalID] = d
		}
		for _, pt := range lines[i].Points {
			switch pt.Label {
			case point.Edge:
				edges = append(edges, pt)
			case point.Planar:
				planars = append(planars, pt)
			}
		}
	}

	if len(edges)+len(planars) == 0 {
		return FrameStats{}, debugFrame, slamerr.ErrEmptyFrame
	}

	stats := FrameStats{EdgeCount: len(edges), PlanarCount: len(planars)}

	tRel := p.tRel
	egoStats := lsq.Stats{}
	var frameErr error
	if len(p.prevEdges)+len(p.prevPlanars) > 0 {
		var err error
		tRel, egoStats, err = egomotion.Solve(edges, planars, p.prevEdges, p.prevPlanars, p.tRel, p.egoParams())
		if err != nil {
			if !deadReckonable(err) {
				return stats, debugFrame, err
			}
			// egomotion.Solve already falls back to the prior T_rel on this sentinel (its dead
			// reckoning estimate); carry the frame through on that estimate instead of stalling,
			// and surface the error to the caller once the frame otherwise finishes.
			frameErr = err
		}
	}
	stats.EgoMotion = egoStats

	edgesEnd := undistort(edges, tRel, motion.ToEnd)
	planarsEnd := undistort(planars, tRel, motion.ToEnd)

	// The very first sweep has nothing to refine against: the rolling grids are still empty, so
	// mapping's box queries would starve and every residual would be dropped. Seed the map
	// directly from the composed pose instead of running the optimizer against nothing.
	var tWorld motion.Pose
	var edgesWorld, planarsWorld []r3.Vector
	mapStats := lsq.Stats{}
	if !p.mapInitialized {
		tWorld = motion.Compose(p.tWorld, tRel)
		edgesWorld = worldPoints(edgesEnd, tWorld)
		planarsWorld = worldPoints(planarsEnd, tWorld)
	} else {
		result, err := mapping.Solve(edgesEnd, planarsEnd, p.edgeGrid, p.planarGrid, tRel, p.tWorld, p.mapParams())
		if err != nil {
			if !deadReckonable(err) {
				return stats, debugFrame, err
			}
			// pose continuity is preserved by dead reckoning from prior motion: advance tWorld by
			// the composed pose rather than leaving it frozen, and seed the grids from it exactly
			// as the first-sweep case above does.
			tWorld = motion.Compose(p.tWorld, tRel)
			edgesWorld = worldPoints(edgesEnd, tWorld)
			planarsWorld = worldPoints(planarsEnd, tWorld)
			frameErr = err
		} else {
			mapStats = result.Stats
			tWorld = result.TWorld
			edgesWorld = result.EdgesWorld
			planarsWorld = result.PlanarsWorld
		}
	}
	stats.Mapping = mapStats

	p.edgeGrid.RollTo(tWorld.T)
	p.planarGrid.RollTo(tWorld.T)
	p.edgeGrid.Insert(edgesWorld)
	p.planarGrid.Insert(planarsWorld)
	p.mapInitialized = true

	p.tRel = tRel
	p.tWorld = tWorld
	p.trajectory = append(p.trajectory, p.tWorld)

	p.prevEdges = toVectors(edgesEnd)
	p.prevPlanars = toVectors(planarsEnd)

	return stats, debugFrame, frameErr
}

// deadReckonable reports whether err names a stage failure that pose continuity should survive by
// dead reckoning from prior motion, rather than freezing the frame. ExcessiveMotion is deliberately
// excluded: that sentinel means the solved motion was actively implausible, not merely under-
// constrained, so the caller aborts the frame instead.
func deadReckonable(err error) bool {
	return errors.Is(err, slamerr.ErrDegenerateMatch) || errors.Is(err, slamerr.ErrNumericFailure)
}

func undistort(pts []point.Point, tRel motion.Pose, f func(r3.Vector, float64, motion.Pose) r3.Vector) []point.Point {
	out := make([]point.Point, len(pts))
	for i, pt := range pts {
		out[i] = pt
		out[i].Pos = f(pt.Pos, pt.RelTime, tRel)
	}
	return out
}

func toVectors(pts []point.Point) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		out[i] = pt.Pos
	}
	return out
}

func worldPoints(pts []point.Point, tWorld motion.Pose) []r3.Vector {
	out := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		out[i] = tWorld.Apply(pt.Pos)
	}
	return out
}
