package config

import "github.com/pkg/errors"

// NewConfigValidationError returns an error specifying that there was an error
// validating the config at the given path.
func NewConfigValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}
