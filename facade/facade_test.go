package facade

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-modules/lidar-slam/config"
	"github.com/viam-modules/lidar-slam/point"
)

type fakeFrame struct{ pts []point.RawPoint }

func (f fakeFrame) Points() []point.RawPoint { return f.pts }

func testConfig() config.Config {
	return config.Config{
		Calibration: config.Calibration{LaserCount: 1, CanonicalOrder: []int{0}},
		Tuning:      config.Default(),
	}
}

func startedFacade(t *testing.T) (*Facade, context.CancelFunc) {
	f, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	f.Start(ctx, &wg)
	return f, cancel
}

func TestPositionBeforeAnyFrameIsIdentity(t *testing.T) {
	f, cancel := startedFacade(t)
	defer cancel()

	pose, err := f.Position(context.Background(), time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.T.Norm(), test.ShouldEqual, 0)
}

func TestAddFrameWithEmptyCloudReturnsEmptyFrameError(t *testing.T) {
	f, cancel := startedFacade(t)
	defer cancel()

	_, _, err := f.AddFrame(context.Background(), fakeFrame{}, time.Second)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRequestTimesOutWhenWorkerNotStarted(t *testing.T) {
	f, err := New(testConfig())
	test.That(t, err, test.ShouldBeNil)

	ctx := context.Background()
	_, err = f.Position(ctx, 10*time.Millisecond)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestResetClearsTrajectory(t *testing.T) {
	f, cancel := startedFacade(t)
	defer cancel()

	err := f.Reset(context.Background(), nil, time.Second)
	test.That(t, err, test.ShouldBeNil)

	poses, err := f.Trajectory(context.Background(), time.Second)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(poses), test.ShouldEqual, 0)
}
