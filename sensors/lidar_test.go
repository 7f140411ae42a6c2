package sensors

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/viam-modules/lidar-slam/point"
)

type fakeFrame struct{}

func (fakeFrame) Points() []point.RawPoint { return nil }

type fakeSource struct {
	name string
	err  error
}

func (s fakeSource) Name() string { return s.name }

func (s fakeSource) NextPointCloud(ctx context.Context) (point.Frame, error) {
	if s.err != nil {
		return nil, s.err
	}
	return fakeFrame{}, nil
}

func TestNewLidarRejectsNilSource(t *testing.T) {
	_, err := NewLidar(context.Background(), nil, 10)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewLidarCarriesNameAndRate(t *testing.T) {
	lidar, err := NewLidar(context.Background(), fakeSource{name: "velodyne"}, 10)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, lidar.Name(), test.ShouldEqual, "velodyne")
	test.That(t, lidar.DataFrequencyHz(), test.ShouldEqual, 10)
}

func TestTimedLidarReadingWrapsSourceError(t *testing.T) {
	lidar, err := NewLidar(context.Background(), fakeSource{name: "a", err: context.DeadlineExceeded}, 10)
	test.That(t, err, test.ShouldBeNil)

	_, err = lidar.TimedLidarReading(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTimedLidarReadingStampsTime(t *testing.T) {
	lidar, err := NewLidar(context.Background(), fakeSource{name: "a"}, 10)
	test.That(t, err, test.ShouldBeNil)

	reading, err := lidar.TimedLidarReading(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reading.ReadingTime.IsZero(), test.ShouldBeFalse)
}
