// Package config implements this service's frozen Config and its live-tunable TuningSnapshot, the
// cleaner alternative to a flat get/set attribute surface: a Config is fixed at construction (or
// at Reset), while TuningSnapshot carries the numeric knobs a caller may adjust between frames.
package config

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

func newError(configError string) error {
	return errors.Errorf("lidar-slam configuration error: %s", configError)
}

// Calibration supplies the sensor's beam layout; required before the first frame.
type Calibration struct {
	LaserCount     int
	CanonicalOrder []int
}

// Config is supplied once, at construction or at Pipeline.Reset, and never mutated in place.
type Config struct {
	Calibration Calibration
	Tuning      TuningSnapshot
}

// TuningSnapshot holds the live-tunable numeric knobs from the external configuration surface.
type TuningSnapshot struct {
	DisplayMode bool

	MaxDistBetweenFrames float64
	AngleResolution      float64
	MinRange             float64

	NeighborWidth         int
	MaxEdgesPerLine       int
	MaxPlanarsPerLine     int
	EdgeThreshold         float64
	PlaneThreshold        float64
	OcclusionGapThreshold float64
	GrazingCosine         float64

	EgoMaxIter      int
	MapMaxIter      int
	EgoICPFrequency int
	MapICPFrequency int

	EgoLineK        int
	EgoPlaneK       int
	MapLineK        int
	MapPlaneK       int
	EgoLineFactor   float64
	MapLineFactor   float64
	EgoPlaneFactor1 float64
	MapPlaneFactor1 float64
	EgoPlaneFactor2 float64
	MapPlaneFactor2 float64
	EgoMaxLineDist  float64
	MapMaxLineDist  float64
	EgoMaxPlaneDist float64
	MapMaxPlaneDist float64

	MinPointToEdgeDistance float64

	VoxelSize         float64
	GridNbVoxel       int
	PointcloudNbVoxel int
	LeafVoxelSize     float64

	WarmStartEgoMotion bool
}

// Default returns a TuningSnapshot with seed values reasonable for a first deployment.
func Default() TuningSnapshot {
	return TuningSnapshot{
		MaxDistBetweenFrames: 3.0,
		AngleResolution:      0.18,
		MinRange:             0.5,

		NeighborWidth:         5,
		MaxEdgesPerLine:       30,
		MaxPlanarsPerLine:     60,
		EdgeThreshold:         1.0,
		PlaneThreshold:        0.1,
		OcclusionGapThreshold: 0.3,
		GrazingCosine:         0.97,

		EgoMaxIter:      15,
		MapMaxIter:      15,
		EgoICPFrequency: 4,
		MapICPFrequency: 4,

		EgoLineK:        5,
		EgoPlaneK:       5,
		MapLineK:        5,
		MapPlaneK:       5,
		EgoLineFactor:   3.0,
		MapLineFactor:   3.0,
		EgoPlaneFactor1: 3.0,
		MapPlaneFactor1: 3.0,
		EgoPlaneFactor2: 2.0,
		MapPlaneFactor2: 2.0,
		EgoMaxLineDist:  1.0,
		MapMaxLineDist:  1.0,
		EgoMaxPlaneDist: 1.0,
		MapMaxPlaneDist: 1.0,

		MinPointToEdgeDistance: 0.05,

		VoxelSize:         2.0,
		GridNbVoxel:       51,
		PointcloudNbVoxel: 20,
		LeafVoxelSize:     0.1,

		WarmStartEgoMotion: true,
	}
}

// FromMap decodes a runtime-provided map into a TuningSnapshot, starting from base so unspecified
// fields keep their current value.
func FromMap(base TuningSnapshot, raw map[string]interface{}) (TuningSnapshot, error) {
	out := base
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, errors.Wrap(err, "building tuning snapshot decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return base, errors.Wrap(err, "decoding tuning snapshot")
	}
	return out, nil
}

// Validate checks Config invariants before it is handed to a Pipeline.
func (c Config) Validate() error {
	if c.Calibration.LaserCount <= 0 {
		return newError("calibration.laser_count must be positive")
	}
	if len(c.Calibration.CanonicalOrder) < c.Calibration.LaserCount {
		return newError("calibration.canonical_order must cover laser_count entries")
	}
	if c.Tuning.NeighborWidth <= 0 {
		return newError("neighbor_width must be positive")
	}
	if c.Tuning.VoxelSize <= 0 {
		return newError("voxel_size must be positive")
	}
	if c.Tuning.GridNbVoxel <= 0 {
		return newError("grid_nb_voxel must be positive")
	}
	return nil
}
