// Package point defines the point, scanline, and calibration types shared across the pipeline.
package point

import (
	"sort"

	"github.com/golang/geo/r3"

	"github.com/viam-modules/lidar-slam/slamerr"
)

// Label classifies a point's role after keypoint extraction.
type Label int

const (
	// Unset is the default label before extraction runs.
	Unset Label = iota
	// Edge marks a high-curvature keypoint.
	Edge
	// Planar marks a low-curvature keypoint.
	Planar
	// Invalid marks a point rejected by the invalidation policy.
	Invalid
)

// Point is a single LiDAR return, positioned in the sensor frame of the sweep it was acquired in.
type Point struct {
	Pos       r3.Vector
	Intensity float64
	LaserID   uint16
	RelTime   float64 // acquisition fraction within the sweep: 0 at start, 1 at end
	Label     Label
}

// RawPoint is the wire shape of one point on ingress, before scanline grouping.
type RawPoint struct {
	X, Y, Z   float64
	Intensity float64
	LaserID   uint16
	RelTime   float64
}

// Frame is the ingress handle for one sweep's point cloud. Raw-packet decoding and calibration
// file parsing are the caller's concern; this repo only ever sees already-decoded points.
type Frame interface {
	Points() []RawPoint
}

// Calibration maps a sensor's raw laser ids onto canonical scanline indices ordered by vertical
// angle, supplied once before the first frame.
type Calibration struct {
	LaserCount     int
	CanonicalOrder []int // CanonicalOrder[rawLaserID] = canonical scanline index
}

// Scanline is one physical beam's points within a sweep, ordered by acquisition time (azimuth).
// CanonicalID together with each Point's LaserID preserves the bidirectional mapping between raw
// and canonical ordering the intake invariant requires, without a separate index table.
type Scanline struct {
	CanonicalID int
	Points      []Point
}

// GroupIntoScanlines groups a frame's raw points into canonically-ordered, azimuth-sorted
// scanlines. Fails with ErrNotCalibrated if invoked before a calibration is set.
func GroupIntoScanlines(frame Frame, calib Calibration) ([]Scanline, error) {
	if calib.LaserCount <= 0 || calib.CanonicalOrder == nil {
		return nil, slamerr.ErrNotCalibrated
	}

	lines := make([]Scanline, calib.LaserCount)
	for i := range lines {
		lines[i].CanonicalID = i
	}

	for _, rp := range frame.Points() {
		if int(rp.LaserID) >= len(calib.CanonicalOrder) {
			continue
		}
		canonical := calib.CanonicalOrder[rp.LaserID]
		if canonical < 0 || canonical >= calib.LaserCount {
			continue
		}
		lines[canonical].Points = append(lines[canonical].Points, Point{
			Pos:       r3.Vector{X: rp.X, Y: rp.Y, Z: rp.Z},
			Intensity: rp.Intensity,
			LaserID:   rp.LaserID,
			RelTime:   rp.RelTime,
		})
	}

	for i := range lines {
		pts := lines[i].Points
		sort.Slice(pts, func(a, b int) bool { return pts[a].RelTime < pts[b].RelTime })
	}

	return lines, nil
}
