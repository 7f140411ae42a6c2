// Package sensors wraps a lidar point-cloud source with the timed-reading contract the
// sensorprocess package paces against.
package sensors

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"github.com/viam-modules/lidar-slam/point"
)

// Source is the minimal ingress contract this repo depends on: a named device that yields decoded
// point-cloud frames on demand. Driver discovery, raw-packet decoding, and calibration-file parsing
// are the caller's concern.
type Source interface {
	Name() string
	NextPointCloud(ctx context.Context) (point.Frame, error)
}

// TimedLidar describes a sensor that reports the time a reading is from.
type TimedLidar interface {
	Name() string
	DataFrequencyHz() int
	TimedLidarReading(ctx context.Context) (TimedLidarReadingResponse, error)
}

// TimedLidarReadingResponse pairs a decoded frame with its acquisition time.
type TimedLidarReadingResponse struct {
	Frame       point.Frame
	ReadingTime time.Time
}

// Lidar adapts a Source to TimedLidar.
type Lidar struct {
	name            string
	dataFrequencyHz int
	source          Source
}

// Name returns the name of the lidar.
func (lidar Lidar) Name() string {
	return lidar.name
}

// DataFrequencyHz returns the lidar's configured acquisition rate.
func (lidar Lidar) DataFrequencyHz() int {
	return lidar.dataFrequencyHz
}

// TimedLidarReading pulls the next frame from the underlying source and stamps it with the time of
// acquisition.
func (lidar Lidar) TimedLidarReading(ctx context.Context) (TimedLidarReadingResponse, error) {
	_, span := trace.StartSpan(ctx, "lidarslam::sensors::TimedLidarReading")
	defer span.End()

	frame, err := lidar.source.NextPointCloud(ctx)
	if err != nil {
		return TimedLidarReadingResponse{}, errors.Wrap(err, "NextPointCloud error")
	}
	return TimedLidarReadingResponse{Frame: frame, ReadingTime: time.Now().UTC()}, nil
}

// NewLidar wraps source as a TimedLidar polling at dataFrequencyHz.
func NewLidar(ctx context.Context, source Source, dataFrequencyHz int) (TimedLidar, error) {
	_, span := trace.StartSpan(ctx, "lidarslam::sensors::NewLidar")
	defer span.End()

	if source == nil {
		return Lidar{}, errors.New("configuring lidar error: source must not be nil")
	}
	return Lidar{name: source.Name(), dataFrequencyHz: dataFrequencyHz, source: source}, nil
}
