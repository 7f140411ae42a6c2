// Package keypoints implements per-scanline curvature-based keypoint extraction: invalidation by
// range, occlusion, and grazing incidence, followed by quota-bounded edge/planar selection with
// neighbor suppression.
package keypoints

import (
	"math"
	"sort"

	"github.com/viam-modules/lidar-slam/point"
)

// Params configures one scanline's extraction pass.
type Params struct {
	NeighborWidth         int     // half-window W
	MinRange              float64
	MaxEdgesPerLine       int
	MaxPlanarsPerLine     int
	EdgeThreshold         float64
	PlaneThreshold        float64
	OcclusionGapThreshold float64 // absolute range gap that triggers occlusion invalidation
	GrazingCosine         float64 // |cos(chord, ray)| above this is treated as grazing incidence
	AngleResolution       float64 // horizontal angular step between adjacent beams, in degrees
}

// DebugArrays carries per-point diagnostic scalars, populated only when debug output is enabled.
type DebugArrays struct {
	Curvature []float64
	Label     []point.Label
	Valid     []bool
}

// Extract computes curvature, applies the invalidation policy, and selects bounded edge/planar
// quotas for one scanline, labeling line.Points in place. Returns debug arrays when requested.
func Extract(line *point.Scanline, p Params, debug bool) *DebugArrays {
	n := len(line.Points)
	if n == 0 {
		return nil
	}
	w := p.NeighborWidth

	ranges := make([]float64, n)
	for i, pt := range line.Points {
		ranges[i] = pt.Pos.Norm()
	}

	valid := make([]bool, n)
	curvature := make([]float64, n)
	for i := 0; i < n; i++ {
		valid[i] = true
	}

	for i := 0; i < n; i++ {
		if ranges[i] < p.MinRange {
			valid[i] = false
			continue
		}
		lo, hi := i-w, i+w
		if lo < 0 || hi >= n {
			// insufficient neighborhood at the scanline boundary to form a reliable curvature
			valid[i] = false
			continue
		}

		var sum [3]float64
		xi := line.Points[i].Pos
		count := 0
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			d := line.Points[j].Pos.Sub(xi)
			sum[0] += d.X
			sum[1] += d.Y
			sum[2] += d.Z
			count++
		}
		normSq := sum[0]*sum[0] + sum[1]*sum[1] + sum[2]*sum[2]
		denom := float64(count) * xi.Norm()
		if denom == 0 {
			valid[i] = false
			continue
		}
		curvature[i] = normSq / (denom * denom)

		chord := line.Points[hi].Pos.Sub(line.Points[lo].Pos)
		if chord.Norm() > 0 && xi.Norm() > 0 {
			cosAngle := math.Abs(chord.Dot(xi) / (chord.Norm() * xi.Norm()))
			if cosAngle > p.GrazingCosine {
				valid[i] = false
				continue
			}
		}
	}

	// occlusion: a depth jump between adjacent points invalidates the nearer (foreground) point
	// and its W neighbors extending away from the jump, since their curvature is an artifact of
	// sitting at the edge of the occluding surface rather than on a geometric feature.
	for i := 0; i < n-1; i++ {
		gap := math.Abs(ranges[i+1] - ranges[i])
		if gap <= p.OcclusionGapThreshold {
			continue
		}
		if p.AngleResolution > 0 {
			// two adjacent beams naturally see a larger depth gap at longer range purely from the
			// angular step between them; only flag occlusion once the gap exceeds that baseline too.
			expected := math.Min(ranges[i], ranges[i+1]) * p.AngleResolution * math.Pi / 180
			if gap <= expected {
				continue
			}
		}
		near, dir := i, -1
		if ranges[i+1] < ranges[i] {
			near, dir = i+1, 1
		}
		for k := 0; k <= w; k++ {
			idx := near + dir*k
			if idx < 0 || idx >= n {
				break
			}
			valid[idx] = false
		}
	}

	for i := 0; i < n; i++ {
		if !valid[i] {
			line.Points[i].Label = point.Invalid
		}
	}

	type scored struct {
		idx int
		c   float64
	}
	var candidates []scored
	for i := 0; i < n; i++ {
		if valid[i] {
			candidates = append(candidates, scored{i, curvature[i]})
		}
	}

	edgeEligible := append([]bool(nil), valid...)
	planarEligible := append([]bool(nil), valid...)

	suppress := func(idx int) {
		for k := idx - w; k <= idx+w; k++ {
			if k >= 0 && k < n {
				edgeEligible[k] = false
				planarEligible[k] = false
			}
		}
	}

	edges := append([]scored(nil), candidates...)
	sort.Slice(edges, func(a, b int) bool { return edges[a].c > edges[b].c })
	edgeCount := 0
	for _, s := range edges {
		if edgeCount >= p.MaxEdgesPerLine {
			break
		}
		if !edgeEligible[s.idx] || s.c < p.EdgeThreshold {
			continue
		}
		line.Points[s.idx].Label = point.Edge
		edgeCount++
		suppress(s.idx)
	}

	planars := append([]scored(nil), candidates...)
	sort.Slice(planars, func(a, b int) bool { return planars[a].c < planars[b].c })
	planarCount := 0
	for _, s := range planars {
		if planarCount >= p.MaxPlanarsPerLine {
			break
		}
		if line.Points[s.idx].Label == point.Edge {
			continue
		}
		if !planarEligible[s.idx] || s.c > p.PlaneThreshold {
			continue
		}
		line.Points[s.idx].Label = point.Planar
		planarCount++
		suppress(s.idx)
	}

	if !debug {
		return nil
	}
	labels := make([]point.Label, n)
	for i, pt := range line.Points {
		labels[i] = pt.Label
	}
	return &DebugArrays{Curvature: curvature, Label: labels, Valid: valid}
}
