// Package sensorprocess polls a lidar source at its configured rate and feeds each sweep into the
// facade, pacing readings so slow frames don't pile up behind the single-worker pipeline.
package sensorprocess

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/edaniels/golog"

	"github.com/viam-modules/lidar-slam/facade"
	"github.com/viam-modules/lidar-slam/slamerr"
	s "github.com/viam-modules/lidar-slam/sensors"
)

// Config bundles the dependencies StartLidar needs: the sensor to poll, the facade to feed, and
// the timeout each AddFrame call is allotted.
type Config struct {
	Lidar   s.TimedLidar
	Facade  *facade.Facade
	Timeout time.Duration
	Logger  golog.Logger
}

// StartLidar polls the lidar for the next sweep and adds it to the facade. Stops when ctx is Done.
func (config *Config) StartLidar(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addLidarReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addLidarReading pulls the next timed reading and feeds it to the facade, then sleeps the
// remainder of the sensor's acquisition interval.
func (config *Config) addLidarReading(ctx context.Context) error {
	reading, err := config.Lidar.TimedLidarReading(ctx)
	if err != nil {
		return err
	}

	timeToSleep := config.tryAddOnce(ctx, reading)
	time.Sleep(time.Duration(timeToSleep) * time.Millisecond)
	config.Logger.Debugf("lidar sleep for %vms", timeToSleep)
	return nil
}

// tryAddOnce adds one reading to the facade and does not retry: every slamerr sentinel is
// recoverable and the frame is simply dropped. Returns the remaining milliseconds in the sensor's
// acquisition interval.
func (config *Config) tryAddOnce(ctx context.Context, reading s.TimedLidarReadingResponse) int {
	startTime := time.Now().UTC()

	_, _, err := config.Facade.AddFrame(ctx, reading.Frame, config.Timeout)
	switch {
	case err == nil:
		config.Logger.Debugf("%v \t | LIDAR | Success \t \t | %v", reading.ReadingTime, reading.ReadingTime.Unix())
	case isRecoverable(err):
		config.Logger.Debugw("skipping lidar reading", "time", reading.ReadingTime, "error", err)
	default:
		config.Logger.Warnw("skipping lidar reading due to unexpected error", "time", reading.ReadingTime, "error", err)
	}

	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return int(math.Max(0, float64(1000/config.Lidar.DataFrequencyHz()-timeElapsedMs)))
}

func isRecoverable(err error) bool {
	return errors.Is(err, slamerr.ErrNotCalibrated) ||
		errors.Is(err, slamerr.ErrEmptyFrame) ||
		errors.Is(err, slamerr.ErrDegenerateMatch) ||
		errors.Is(err, slamerr.ErrExcessiveMotion) ||
		errors.Is(err, slamerr.ErrNumericFailure)
}
