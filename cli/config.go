package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/auvlab/losguidance/config"
	"github.com/auvlab/losguidance/logging"
)

// CheckConfigAction validates the config file given as argument or through --config.
func CheckConfigAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = c.String(generalFlagConfig)
	}
	if path == "" {
		return errors.New("no config file given")
	}
	cfg, err := config.Read(path)
	if err != nil {
		return errors.Wrapf(err, "invalid config %q", path)
	}
	ctrl, err := cfg.Backstepping()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s is valid\n", path)
	fmt.Fprintf(c.App.Writer, "  period: %s\n", cfg.Period())
	fmt.Fprintf(c.App.Writer, "  lookahead: %v m, acceptance radius: %v m\n",
		cfg.Guidance.Lookahead, cfg.Guidance.AcceptanceRadius)
	fmt.Fprintf(c.App.Writer, "  heading gains: p=%v i=%v d=%v sat=%v\n",
		ctrl.Heading.P, ctrl.Heading.I, ctrl.Heading.D, ctrl.Heading.Sat)
	return nil
}

// loadConfig reads --config when set and falls back to defaults otherwise.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String(generalFlagConfig)
	if path == "" {
		return config.Default(), nil
	}
	return config.Read(path)
}

func newLogger(c *cli.Context, cfg *config.Config) (logging.Logger, error) {
	level := cfg.LogLevel
	if c.IsSet(generalFlagLogLevel) {
		var err error
		level, err = logging.LevelFromString(c.String(generalFlagLogLevel))
		if err != nil {
			return nil, err
		}
	}
	return logging.NewLoggerAtLevel("losguidance", level), nil
}
