// Package config defines the guidance configuration, its validation, and how it is read
// from disk and watched for runtime changes.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/auvlab/losguidance/control"
	"github.com/auvlab/losguidance/logging"
)

const (
	// DefaultFrequency is the nominal rate of the state feed in Hz.
	DefaultFrequency = 20.0
	// DefaultVehicleLength is used to derive the default look-ahead distance.
	DefaultVehicleLength = 0.7
	// DefaultAcceptanceRadius is the default sphere of acceptance, in meters.
	DefaultAcceptanceRadius = 0.5
)

// Guidance configures the line-of-sight law.
type Guidance struct {
	// FrequencyHz is the nominal state feed rate; the filter period is its inverse.
	FrequencyHz float64 `json:"frequency_hz"`
	// Lookahead is delta in meters. It can change at runtime.
	Lookahead float64 `json:"lookahead"`
	// AcceptanceRadius is used when a goal does not carry its own.
	AcceptanceRadius float64 `json:"acceptance_radius"`
}

// Validate ensures all parts of the guidance config are valid.
func (g *Guidance) Validate(path string) error {
	var errs error
	if g.FrequencyHz <= 0 || g.FrequencyHz > 200 {
		errs = multierr.Append(errs, NewConfigValidationError(path,
			errors.Errorf("frequency_hz must be in (0, 200], got %v", g.FrequencyHz)))
	}
	if g.Lookahead <= 0 || math.IsNaN(g.Lookahead) {
		errs = multierr.Append(errs, NewConfigValidationError(path,
			errors.Errorf("lookahead must be positive, got %v", g.Lookahead)))
	}
	if g.AcceptanceRadius <= 0 {
		errs = multierr.Append(errs, NewConfigValidationError(path,
			errors.Errorf("acceptance_radius must be positive, got %v", g.AcceptanceRadius)))
	}
	return errs
}

// Config is the full configuration of a guidance node.
type Config struct {
	Guidance       Guidance                     `json:"guidance"`
	ReferenceModel control.ReferenceModelConfig `json:"reference_model"`
	DepthPID       control.PIDGains             `json:"depth_pid"`
	// Controller holds the attributes of the trajectory controller. Keys not present keep
	// their defaults.
	Controller AttributeMap  `json:"controller,omitempty"`
	LogLevel   logging.Level `json:"log_level"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// Default returns a config that passes validation.
func Default() *Config {
	return &Config{
		Guidance: Guidance{
			FrequencyHz:      DefaultFrequency,
			Lookahead:        1.0 * DefaultVehicleLength,
			AcceptanceRadius: DefaultAcceptanceRadius,
		},
		ReferenceModel: control.DefaultReferenceModelConfig(),
		DepthPID:       control.PIDGains{P: 20, I: 0.5, D: 10, Sat: 10},
		LogLevel:       logging.INFO,
	}
}

// Period returns the sample period implied by the configured frequency.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.Guidance.FrequencyHz)
}

// Validate returns every problem found in the config.
func (c *Config) Validate(path string) error {
	errs := c.Guidance.Validate(fmt.Sprintf("%s.%s", path, "guidance"))
	if err := c.ReferenceModel.Validate(); err != nil {
		errs = multierr.Append(errs, NewConfigValidationError(fmt.Sprintf("%s.%s", path, "reference_model"), err))
	}
	if err := c.DepthPID.Validate(); err != nil {
		errs = multierr.Append(errs, NewConfigValidationError(fmt.Sprintf("%s.%s", path, "depth_pid"), err))
	}
	ctrl, err := c.Backstepping()
	if err == nil {
		err = ctrl.Validate()
	}
	if err != nil {
		errs = multierr.Append(errs, NewConfigValidationError(fmt.Sprintf("%s.%s", path, "controller"), err))
	}
	return errs
}

// Backstepping decodes the controller attributes over the default backstepping config.
// Unknown keys are an error.
func (c *Config) Backstepping() (control.BacksteppingConfig, error) {
	out := control.DefaultBacksteppingConfig()
	if len(c.Controller) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]interface{}(c.Controller)); err != nil {
		return out, errors.Wrap(err, "cannot decode controller attributes")
	}
	return out, nil
}

// HeadingGains returns the runtime-tunable heading gains of the controller.
func (c *Config) HeadingGains() (control.PIDGains, error) {
	ctrl, err := c.Backstepping()
	if err != nil {
		return control.PIDGains{}, err
	}
	return ctrl.Heading, nil
}
