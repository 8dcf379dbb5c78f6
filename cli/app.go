// Package cli contains the losguidance command line application.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig   = "config"
	generalFlagLogLevel = "log-level"

	simFlagX           = "x"
	simFlagY           = "y"
	simFlagSpeed       = "speed"
	simFlagDepth       = "depth"
	simFlagRadius      = "radius"
	simFlagHeading     = "heading"
	simFlagDuration    = "duration"
	simFlagRealtime    = "realtime"
	simFlagWatch       = "watch"
	simFlagPlot        = "plot"
	simFlagMetricsAddr = "metrics-addr"
)

var app = &cli.App{
	Name:            "losguidance",
	Usage:           "line-of-sight guidance for autonomous underwater vehicles",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  generalFlagLogLevel,
			Value: "info",
			Usage: "one of debug, info, warn or error",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "simulate",
			Usage:     "drive a simulated vehicle from the origin to a waypoint",
			UsageText: "losguidance simulate --x 10 --y 5 [other options]",
			Flags: []cli.Flag{
				&cli.Float64Flag{
					Name:     simFlagX,
					Required: true,
					Usage:    "waypoint x in meters",
				},
				&cli.Float64Flag{
					Name:     simFlagY,
					Required: true,
					Usage:    "waypoint y in meters",
				},
				&cli.Float64Flag{
					Name:  simFlagSpeed,
					Value: 1,
					Usage: "desired forward speed in m/s",
				},
				&cli.Float64Flag{
					Name:  simFlagDepth,
					Usage: "desired depth in meters",
				},
				&cli.Float64Flag{
					Name:  simFlagRadius,
					Usage: "sphere of acceptance radius in meters; defaults to the configured radius",
				},
				&cli.Float64Flag{
					Name:  simFlagHeading,
					Usage: "initial vehicle heading in radians",
				},
				&cli.DurationFlag{
					Name:  simFlagDuration,
					Value: defaultSimDuration,
					Usage: "give up after this much simulated time",
				},
				&cli.BoolFlag{
					Name:  simFlagRealtime,
					Usage: "step the simulation on the wall clock instead of as fast as possible",
				},
				&cli.BoolFlag{
					Name:  simFlagWatch,
					Usage: "apply changes to the config file while running",
				},
				&cli.StringFlag{
					Name:  simFlagPlot,
					Usage: "save a plot of the travelled path to `FILE` (.png, .svg, .pdf)",
				},
				&cli.StringFlag{
					Name:  simFlagMetricsAddr,
					Usage: "serve Prometheus metrics on `ADDR` while running",
				},
			},
			Action: SimulateAction,
		},
		{
			Name:      "check-config",
			Usage:     "validate a configuration file",
			ArgsUsage: "[file]",
			Action:    CheckConfigAction,
		},
	},
}

// NewApp returns the app with the given writers.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
