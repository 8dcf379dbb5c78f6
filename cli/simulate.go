package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"github.com/auvlab/losguidance/config"
	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/logging"
	"github.com/auvlab/losguidance/services/navigation"
	"github.com/auvlab/losguidance/sim"
	"github.com/auvlab/losguidance/utils"
)

const defaultSimDuration = 5 * time.Minute

// ErrSimulationTimeout is returned when no result arrives within the simulated duration.
var ErrSimulationTimeout = errors.New("goal not reached in time")

type simulationOptions struct {
	Config      *config.Config
	Goal        navigation.Goal
	Heading     float64
	Duration    time.Duration
	Realtime    bool
	WatchConfig bool
	PlotFile    string
	MetricsAddr string
}

type simulationReport struct {
	Result   navigation.Result
	Steps    int
	Final    r2.Point
	Heading  float64
	Resets   float64
	Distance float64
}

// SimulateAction runs one goal against the simulated vehicle and prints the outcome.
func SimulateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return err
	}
	radius := c.Float64(simFlagRadius)
	if !c.IsSet(simFlagRadius) {
		radius = cfg.Guidance.AcceptanceRadius
	}
	opts := simulationOptions{
		Config:      cfg,
		Goal:        navigation.NewGoal(r2.Point{X: c.Float64(simFlagX), Y: c.Float64(simFlagY)}, c.Float64(simFlagSpeed), c.Float64(simFlagDepth), radius),
		Heading:     c.Float64(simFlagHeading),
		Duration:    c.Duration(simFlagDuration),
		Realtime:    c.Bool(simFlagRealtime),
		WatchConfig: c.Bool(simFlagWatch),
		PlotFile:    c.String(simFlagPlot),
		MetricsAddr: c.String(simFlagMetricsAddr),
	}

	report, err := runSimulation(c.Context, opts, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer,
		"%s after %d steps (%.2fs): final position (%.3f, %.3f) heading %.1f deg, %.3f m from goal, %v filter resets\n",
		report.Result.Text,
		report.Steps,
		float64(report.Steps)*cfg.Period().Seconds(),
		report.Final.X, report.Final.Y,
		utils.RadToDeg(report.Heading),
		report.Distance,
		report.Resets,
	)
	if opts.PlotFile != "" {
		fmt.Fprintf(c.App.Writer, "path plotted to %s\n", opts.PlotFile)
	}
	return nil
}

func runSimulation(ctx context.Context, opts simulationOptions, logger logging.Logger) (report simulationReport, err error) {
	cfg := opts.Config
	reg := prometheus.NewRegistry()
	collector, err := navigation.NewCollector(reg)
	if err != nil {
		return report, err
	}

	ctrlCfg, err := cfg.Backstepping()
	if err != nil {
		return report, err
	}
	ctrl, err := control.NewBackstepping(ctrlCfg)
	if err != nil {
		return report, err
	}
	coord, err := navigation.NewCoordinator(cfg, ctrl, control.NewPIDRegulator(cfg.DepthPID),
		logger.Sublogger("coordinator"), navigation.WithCollector(collector))
	if err != nil {
		return report, err
	}

	var clk clock.Clock
	var mock *clock.Mock
	if opts.Realtime {
		clk = clock.New()
	} else {
		mock = clock.NewMock()
		clk = mock
	}

	auv, err := sim.NewAUV(sim.DefaultAUVConfig(), r3.Vector{}, opts.Heading)
	if err != nil {
		return report, err
	}
	bridge := sim.NewBridge(auv, logger.Sublogger("sim"))
	srv := navigation.NewServer(coord, bridge, logger.Sublogger("server"),
		navigation.WithClock(clk), navigation.WithServerCollector(collector))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		return report, err
	}
	defer func() {
		err = multierr.Combine(err, srv.Close())
	}()

	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, reg, logger)
		if err != nil {
			return report, err
		}
		defer stop()
	}
	if opts.WatchConfig && cfg.ConfigFilePath != "" {
		var watcher config.Watcher
		watcher, err = config.NewWatcher(ctx, cfg.ConfigFilePath, logger)
		if err != nil {
			return report, err
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close())
		}()
		srv.Watch(ctx, watcher)
	}

	runner := sim.NewRunner(clk, auv, srv, cfg.Period(), logger.Sublogger("runner"))
	// the first sample places the vehicle before the goal segment is built from it
	if err := runner.Step(ctx); err != nil {
		return report, err
	}
	if err := srv.SubmitGoal(ctx, opts.Goal); err != nil {
		return report, err
	}

	var res navigation.Result
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := runner.Run(groupCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		// the runner stops once a result, a timeout or an error ends the wait
		defer cancel()
		var err error
		res, err = awaitResult(groupCtx, clk, mock, bridge, cfg.Period(), opts.Duration)
		return err
	})
	if err := group.Wait(); err != nil {
		return report, err
	}

	path := runner.Path()
	report = simulationReport{
		Result: res,
		Steps:  len(path),
		Final:   auv.Planar(),
		Heading: auv.Sample().Heading,
		Resets:  readCounter(collector.FilterResets),
	}
	report.Distance = report.Final.Sub(opts.Goal.Waypoint).Norm()
	if opts.PlotFile != "" {
		if err := sim.SavePath(opts.PlotFile, path, []r2.Point{{}, opts.Goal.Waypoint}); err != nil {
			return report, err
		}
	}
	return report, nil
}

func awaitResult(
	ctx context.Context,
	clk clock.Clock,
	mock *clock.Mock,
	bridge *sim.Bridge,
	period, duration time.Duration,
) (navigation.Result, error) {
	if mock == nil {
		deadline := clk.After(duration)
		select {
		case res := <-bridge.Results():
			return res, nil
		case <-deadline:
			return navigation.Result{}, ErrSimulationTimeout
		case <-ctx.Done():
			return navigation.Result{}, ctx.Err()
		}
	}
	for elapsed := time.Duration(0); elapsed < duration; elapsed += period {
		mock.Add(period)
		select {
		case res := <-bridge.Results():
			return res, nil
		case <-ctx.Done():
			return navigation.Result{}, ctx.Err()
		default:
		}
	}
	return navigation.Result{}, ErrSimulationTimeout
}

func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot listen on %q", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	goutils.PanicCapturingGo(func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	})
	logger.Infow("serving metrics", "addr", listener.Addr().String())
	return func() {
		if err := httpServer.Close(); err != nil {
			logger.Warnw("cannot close metrics server", "error", err)
		}
	}, nil
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
