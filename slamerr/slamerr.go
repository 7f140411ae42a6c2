// Package slamerr defines the recoverable error taxonomy shared by every pipeline stage. None of
// these ever abort the pipeline; callers compare with errors.Is and fall back to dead reckoning.
package slamerr

import "github.com/pkg/errors"

var (
	// ErrNotCalibrated is returned when a frame is submitted before a calibration has been set.
	ErrNotCalibrated = errors.New("lidar-slam: calibration not set")
	// ErrEmptyFrame is returned when a sweep has no valid points left after invalidation.
	ErrEmptyFrame = errors.New("lidar-slam: no valid points after invalidation")
	// ErrDegenerateMatch is returned when too few residuals were accepted to optimize a stage.
	ErrDegenerateMatch = errors.New("lidar-slam: too few accepted residuals to optimize")
	// ErrExcessiveMotion is returned when a solved motion exceeds max_dist_between_frames.
	ErrExcessiveMotion = errors.New("lidar-slam: solved motion exceeds max_dist_between_frames")
	// ErrNumericFailure is returned when the least-squares normal equations fail to decompose.
	ErrNumericFailure = errors.New("lidar-slam: least-squares normal equations failed to decompose")
)
