package sim

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/auvlab/losguidance/logging"
	"github.com/auvlab/losguidance/services/navigation"
	"github.com/auvlab/losguidance/vehicle"
)

// A SampleSink consumes state samples, typically a navigation.Server.
type SampleSink interface {
	HandleSample(ctx context.Context, sample vehicle.Sample) error
}

// Runner steps an AUV once per period of its clock and hands each resulting sample to a
// sink. The simulated time advances by exactly one period per step.
type Runner struct {
	clock  clock.Clock
	auv    *AUV
	sink   SampleSink
	period time.Duration
	logger logging.Logger

	mu   sync.Mutex
	path []r2.Point
}

// NewRunner returns a runner; a non-positive period falls back to vehicle.DefaultPeriod.
func NewRunner(clk clock.Clock, auv *AUV, sink SampleSink, period time.Duration, logger logging.Logger) *Runner {
	if period <= 0 {
		period = vehicle.DefaultPeriod
	}
	return &Runner{clock: clk, auv: auv, sink: sink, period: period, logger: logger}
}

// Run steps until ctx is done or the sink refuses a sample.
func (r *Runner) Run(ctx context.Context) error {
	t := r.clock.Ticker(r.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := r.Step(ctx); err != nil {
				return err
			}
		}
	}
}

// Step advances the vehicle by one period and delivers the new sample.
func (r *Runner) Step(ctx context.Context) error {
	r.auv.Step(r.period.Seconds())
	sample := r.auv.Sample()
	r.mu.Lock()
	r.path = append(r.path, r2.Point{X: sample.Position.X, Y: sample.Position.Y})
	r.mu.Unlock()
	return r.sink.HandleSample(ctx, sample)
}

// Path returns every planar position visited so far.
func (r *Runner) Path() []r2.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]r2.Point(nil), r.path...)
}

// Bridge is a navigation.Publisher that applies published commands to an AUV and exposes
// results on a channel.
type Bridge struct {
	auv     *AUV
	logger  logging.Logger
	results chan navigation.Result

	mu       sync.Mutex
	feedback []navigation.Feedback
	desired  []navigation.Desired
}

// NewBridge returns a bridge driving auv.
func NewBridge(auv *AUV, logger logging.Logger) *Bridge {
	return &Bridge{auv: auv, logger: logger, results: make(chan navigation.Result, 16)}
}

// PublishDesired records the shaped reference.
func (b *Bridge) PublishDesired(ctx context.Context, d navigation.Desired) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.desired = append(b.desired, d)
}

// PublishCommand applies the wrench to the vehicle.
func (b *Bridge) PublishCommand(ctx context.Context, c navigation.Command) {
	b.auv.Apply(c.Force, c.Torque)
}

// PublishFeedback records the distance to goal.
func (b *Bridge) PublishFeedback(ctx context.Context, f navigation.Feedback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.feedback = append(b.feedback, f)
}

// PublishResult stops the vehicle's thrusters and forwards the result.
func (b *Bridge) PublishResult(ctx context.Context, res navigation.Result) {
	b.auv.Apply(r3.Vector{}, r3.Vector{})
	b.logger.CInfow(ctx, "goal finished", "id", res.GoalID, "success", res.Success, "text", res.Text)
	select {
	case b.results <- res:
	default:
		b.logger.CWarnw(ctx, "result dropped", "id", res.GoalID)
	}
}

// Results delivers each result published.
func (b *Bridge) Results() <-chan navigation.Result {
	return b.results
}

// Feedback returns every feedback record so far.
func (b *Bridge) Feedback() []navigation.Feedback {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]navigation.Feedback(nil), b.feedback...)
}

// Desired returns every shaped reference so far.
func (b *Bridge) Desired() []navigation.Desired {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]navigation.Desired(nil), b.desired...)
}
