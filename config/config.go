// Package config reads and validates the daemon configuration. Config files
// are JSON with ${ENV_VAR} substitution applied before parsing.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/fieldbotics/controllers/controller"
	"github.com/fieldbotics/controllers/joint/fake"
)

// Config is the top level daemon configuration: the control tick rate, the
// joints to expose, and the controllers to build over them.
type Config struct {
	UpdateRate  float64             `json:"update_rate"`
	Joints      []fake.Config       `json:"joints"`
	Controllers []controller.Config `json:"controllers"`
}

// Read loads, substitutes, and validates the config at path.
func Read(path string) (*Config, error) {
	data, err := envsubst.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", path)
	}
	return FromReader(data)
}

// FromReader parses and validates raw config bytes.
func FromReader(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole tree, accumulating every problem found.
func (c *Config) Validate() error {
	var err error
	if c.UpdateRate < 0 {
		err = multierr.Append(err, errors.New("update_rate must not be negative"))
	}

	seenJoints := map[string]bool{}
	for i, j := range c.Joints {
		path := jointPath(i)
		if j.Name == "" {
			err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "name"))
			continue
		}
		if seenJoints[j.Name] {
			err = multierr.Append(err, errors.Errorf("%s: duplicate joint %q", path, j.Name))
		}
		seenJoints[j.Name] = true
		if j.TrackGain < 0 || j.TrackGain > 1 {
			err = multierr.Append(err, errors.Errorf("%s: track_gain must be within [0, 1]", path))
		}
	}

	seenControllers := map[string]bool{}
	for i, cc := range c.Controllers {
		path := controllerPath(i)
		if cc.Name == "" {
			err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "name"))
		} else if seenControllers[cc.Name] {
			err = multierr.Append(err, errors.Errorf("%s: duplicate controller %q", path, cc.Name))
		}
		seenControllers[cc.Name] = true
		if cc.Type == "" {
			err = multierr.Append(err, goutils.NewConfigValidationFieldRequiredError(path, "type"))
		}
	}
	return err
}

func jointPath(i int) string {
	return fmt.Sprintf("joints.%d", i)
}

func controllerPath(i int) string {
	return fmt.Sprintf("controllers.%d", i)
}
