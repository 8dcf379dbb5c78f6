package navigation

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/auvlab/losguidance/config"
	"github.com/auvlab/losguidance/logging"
	"github.com/auvlab/losguidance/utils"
	"github.com/auvlab/losguidance/vehicle"
)

// DefaultQueueSize is the event queue capacity of a Server.
const DefaultQueueSize = 64

// ErrServerClosed is returned by submissions to a closed Server.
var ErrServerClosed = errors.New("navigation server closed")

// A Publisher receives the records produced by a Server. Calls are made from the server's
// single worker goroutine, in the order desired, command, feedback, result.
type Publisher interface {
	PublishDesired(ctx context.Context, d Desired)
	PublishCommand(ctx context.Context, c Command)
	PublishFeedback(ctx context.Context, f Feedback)
	PublishResult(ctx context.Context, r Result)
}

type eventKind uint8

const (
	sampleEvent eventKind = iota
	goalEvent
	preemptEvent
	reconfigureEvent
)

type event struct {
	kind   eventKind
	sample vehicle.Sample
	goal   Goal
	cfg    *config.Config
	reply  chan error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithClock sets the clock used to time ticks.
func WithClock(c clock.Clock) ServerOption {
	return func(s *Server) {
		s.clock = c
	}
}

// WithQueueSize sets the event queue capacity.
func WithQueueSize(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithServerCollector records tick durations on c.
func WithServerCollector(c *Collector) ServerOption {
	return func(s *Server) {
		s.metrics = c
	}
}

// Server serializes state samples, goals, preempts and reconfigurations through one queue
// and applies them to a Coordinator from a single worker goroutine.
type Server struct {
	coord     *Coordinator
	publisher Publisher
	logger    logging.Logger
	clock     clock.Clock
	metrics   *Collector
	queueSize int

	events  chan event
	done    chan struct{}
	started atomic.Bool
	closed  atomic.Bool
	workers utils.StoppableWorkers
}

// NewServer returns a server over coord. It does nothing until Start is called.
func NewServer(coord *Coordinator, publisher Publisher, logger logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		coord:     coord,
		publisher: publisher,
		logger:    logger,
		clock:     clock.New(),
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan event, s.queueSize)
	s.done = make(chan struct{})
	s.workers = utils.NewStoppableWorkers()
	return s
}

// Start launches the worker. The worker stops when ctx is done or Close is called; either
// way every later submission fails with ErrServerClosed.
func (s *Server) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("navigation server already started")
	}
	s.workers.AddWorkers(func(workerCtx context.Context) {
		s.run(ctx, workerCtx)
	})
	return nil
}

// Watch forwards every config delivered by w to Reconfigure until the server stops, ctx is
// done or w closes its channel. Invalid configs are logged and skipped.
func (s *Server) Watch(ctx context.Context, w config.Watcher) {
	s.workers.AddWorkers(func(workerCtx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case <-workerCtx.Done():
				return
			case <-s.done:
				return
			case cfg, ok := <-w.Config():
				if !ok {
					return
				}
				if err := s.Reconfigure(ctx, cfg); err != nil {
					s.logger.CWarnw(ctx, "cannot apply new config", "error", err)
				}
			}
		}
	})
}

// Close stops the worker. Events still queued are dropped.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.workers.Stop()
	return nil
}

// HandleSample enqueues a state sample.
func (s *Server) HandleSample(ctx context.Context, sample vehicle.Sample) error {
	return s.enqueue(ctx, event{kind: sampleEvent, sample: sample})
}

// SubmitGoal enqueues a goal and waits until it has been accepted or rejected.
func (s *Server) SubmitGoal(ctx context.Context, g Goal) error {
	return s.call(ctx, event{kind: goalEvent, goal: g})
}

// Preempt enqueues a preempt request.
func (s *Server) Preempt(ctx context.Context) error {
	return s.enqueue(ctx, event{kind: preemptEvent})
}

// Reconfigure enqueues a new config and waits until it has been applied or rejected.
func (s *Server) Reconfigure(ctx context.Context, cfg *config.Config) error {
	return s.call(ctx, event{kind: reconfigureEvent, cfg: cfg})
}

func (s *Server) enqueue(ctx context.Context, ev event) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	select {
	case <-s.done:
		return ErrServerClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrServerClosed
	case <-s.workers.Context().Done():
		return ErrServerClosed
	}
}

func (s *Server) call(ctx context.Context, ev event) error {
	ev.reply = make(chan error, 1)
	if err := s.enqueue(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrServerClosed
	case <-s.workers.Context().Done():
		return ErrServerClosed
	}
}

func (s *Server) run(ctx, workerCtx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-workerCtx.Done():
			return
		case ev := <-s.events:
			err := s.handle(ctx, ev)
			if ev.reply != nil {
				ev.reply <- err
			}
		}
	}
}

func (s *Server) handle(ctx context.Context, ev event) error {
	switch ev.kind {
	case sampleEvent:
		start := s.clock.Now()
		out, err := s.coord.Tick(ctx, ev.sample)
		s.metrics.observeTick(s.clock.Since(start).Seconds())
		if err != nil {
			s.logger.CWarnw(ctx, "tick skipped", "error", err)
			return err
		}
		Publish(ctx, s.publisher, out)
		return nil
	case goalEvent:
		if err := s.coord.AcceptGoal(ctx, ev.goal); err != nil {
			s.logger.CWarnw(ctx, "goal rejected", "id", ev.goal.ID, "error", err)
			return err
		}
		return nil
	case preemptEvent:
		if res, ok := s.coord.Preempt(ctx); ok {
			s.publisher.PublishResult(ctx, res)
		}
		return nil
	case reconfigureEvent:
		return s.coord.Reconfigure(ev.cfg)
	default:
		return errors.Errorf("unknown event kind %d", ev.kind)
	}
}

// Publish hands every record present in out to p, in the order desired, command, feedback,
// result.
func Publish(ctx context.Context, p Publisher, out Output) {
	if out.Desired != nil {
		p.PublishDesired(ctx, *out.Desired)
	}
	if out.Command != nil {
		p.PublishCommand(ctx, *out.Command)
	}
	if out.Feedback != nil {
		p.PublishFeedback(ctx, *out.Feedback)
	}
	if out.Result != nil {
		p.PublishResult(ctx, *out.Result)
	}
}
