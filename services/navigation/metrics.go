package navigation

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the Prometheus metrics of a guidance node. A nil *Collector records
// nothing.
type Collector struct {
	DistanceToGoal prometheus.Gauge
	GoalState      prometheus.Gauge
	Goals          *prometheus.CounterVec
	FilterResets   prometheus.Counter
	TickDurations  prometheus.Histogram
}

// NewCollector registers the guidance metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	distance, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "los_distance_to_goal_meters",
		Help: "Planar distance from the vehicle to the active goal waypoint.",
	}), "los_distance_to_goal_meters")
	if err != nil {
		return nil, err
	}
	state, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "los_goal_state",
		Help: "Current goal state (0 idle, 1 active, 2 succeeded, 3 preempted).",
	}), "los_goal_state")
	if err != nil {
		return nil, err
	}
	goals, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "los_goals_total",
		Help: "Goals handled, labeled by outcome (accepted, rejected, superseded, succeeded, preempted).",
	}, []string{"outcome"}), "los_goals_total")
	if err != nil {
		return nil, err
	}
	resets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "los_reference_filter_resets_total",
		Help: "Times the reference filter was re-initialized after its heading output wrapped.",
	}), "los_reference_filter_resets_total")
	if err != nil {
		return nil, err
	}
	ticks, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "los_tick_duration_seconds",
		Help:    "Time spent handling one state sample.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}), "los_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		DistanceToGoal: distance,
		GoalState:      state,
		Goals:          goals,
		FilterResets:   resets,
		TickDurations:  ticks,
	}, nil
}

func (c *Collector) setState(s GoalState) {
	if c == nil {
		return
	}
	c.GoalState.Set(float64(s))
}

func (c *Collector) setDistance(d float64) {
	if c == nil {
		return
	}
	c.DistanceToGoal.Set(d)
}

func (c *Collector) goal(outcome string) {
	if c == nil {
		return
	}
	c.Goals.WithLabelValues(outcome).Inc()
}

func (c *Collector) filterReset() {
	if c == nil {
		return
	}
	c.FilterResets.Inc()
}

func (c *Collector) observeTick(seconds float64) {
	if c == nil {
		return
	}
	c.TickDurations.Observe(seconds)
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
