// Package facade serializes all access to a pipeline.Pipeline behind a single background worker,
// the same request/response channel pattern the teacher uses to ensure only one goroutine ever
// touches shared optimizer and map state at a time.
package facade

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/viam-modules/lidar-slam/config"
	"github.com/viam-modules/lidar-slam/motion"
	"github.com/viam-modules/lidar-slam/pipeline"
	"github.com/viam-modules/lidar-slam/point"
)

// requestType identifies the operation a request carries.
type requestType int

const (
	addFrame requestType = iota
	reset
	position
	trajectory
)

// response is what doWork places on a request's private channel.
type response struct {
	frameStats pipeline.FrameStats
	debug      *pipeline.DebugFrame
	pose       motion.Pose
	poses      []motion.Pose
	err        error
}

// request is one unit of work waiting for the background worker.
type request struct {
	kind         requestType
	frame        point.Frame
	cfg          *config.Config
	responseChan chan response
}

// Facade owns a pipeline.Pipeline and accepts work only through its requestChan, guaranteeing
// mutual exclusion without an explicit lock.
type Facade struct {
	pipeline    *pipeline.Pipeline
	requestChan chan request
}

// New constructs a Facade around a freshly built pipeline.Pipeline.
func New(cfg config.Config) (*Facade, error) {
	p, err := pipeline.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Facade{pipeline: p, requestChan: make(chan request)}, nil
}

// Start launches the background worker goroutine that drains requestChan until ctx is done.
func (f *Facade) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-f.requestChan:
				req.responseChan <- f.doWork(req)
			}
		}
	}()
}

// doWork runs on the single background worker goroutine only.
func (f *Facade) doWork(req request) response {
	switch req.kind {
	case addFrame:
		stats, debug, err := f.pipeline.AddFrame(req.frame)
		return response{frameStats: stats, debug: debug, err: err}
	case reset:
		err := f.pipeline.Reset(req.cfg)
		return response{err: err}
	case position:
		return response{pose: f.pipeline.TWorld()}
	case trajectory:
		return response{poses: f.pipeline.Trajectory()}
	}
	return response{err: errors.Errorf("facade: no handler for request kind %v", req.kind)}
}

// request dispatches req to the worker and waits for its response, bounded by ctxParent plus
// timeout on both the send and the receive side.
func (f *Facade) request(ctxParent context.Context, req request, timeout time.Duration) (response, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req.responseChan = make(chan response, 1)

	select {
	case f.requestChan <- req:
		select {
		case resp := <-req.responseChan:
			return resp, resp.err
		case <-ctx.Done():
			return response{}, multierr.Combine(errors.New("timeout reading facade response"), ctx.Err())
		}
	case <-ctx.Done():
		return response{}, multierr.Combine(errors.New("timeout submitting facade request"), ctx.Err())
	}
}

// AddFrame submits one sweep to the pipeline and returns its outcome.
func (f *Facade) AddFrame(ctx context.Context, frame point.Frame, timeout time.Duration) (pipeline.FrameStats, *pipeline.DebugFrame, error) {
	resp, err := f.request(ctx, request{kind: addFrame, frame: frame}, timeout)
	return resp.frameStats, resp.debug, err
}

// Reset re-initializes the pipeline, optionally against a new config.Config.
func (f *Facade) Reset(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	_, err := f.request(ctx, request{kind: reset, cfg: cfg}, timeout)
	return err
}

// Position returns the pipeline's current world pose.
func (f *Facade) Position(ctx context.Context, timeout time.Duration) (motion.Pose, error) {
	resp, err := f.request(ctx, request{kind: position}, timeout)
	return resp.pose, err
}

// Trajectory returns the pipeline's accepted world-pose history.
func (f *Facade) Trajectory(ctx context.Context, timeout time.Duration) ([]motion.Pose, error) {
	resp, err := f.request(ctx, request{kind: trajectory}, timeout)
	return resp.poses, err
}
