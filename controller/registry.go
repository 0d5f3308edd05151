package controller

import (
	"sync"

	"github.com/edaniels/golog"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is the untyped attribute bag of a controller config entry.
type AttributeMap map[string]interface{}

// TransformTo decodes the attribute map into a typed config struct, honoring
// json tags and weak type conversion.
func (am AttributeMap) TransformTo(dst interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           dst,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(am))
}

// Config describes one controller instance to be built from the registry.
type Config struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	Attributes AttributeMap `json:"attributes"`
}

// Constructor builds a controller from its config entry.
type Constructor func(cfg Config, mgr *Manager, logger golog.Logger) (Controller, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Constructor{}
)

// Register makes a controller type available to Build. It panics on a
// duplicate type name, which indicates conflicting registrations at init.
func Register(typeName string, c Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[typeName]; ok {
		panic(errors.Errorf("controller type %q already registered", typeName))
	}
	registry[typeName] = c
}

// Build constructs the controller described by cfg.
func Build(cfg Config, mgr *Manager, logger golog.Logger) (Controller, error) {
	registryMu.Lock()
	ctor, ok := registry[cfg.Type]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Errorf("no controller type %q registered", cfg.Type)
	}
	c, err := ctor(cfg, mgr, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "building controller %q", cfg.Name)
	}
	return c, nil
}
