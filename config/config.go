// Package config loads and validates the process configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/CefBoud/kafkamux/logging"
	"github.com/CefBoud/kafkamux/protocol"
	"github.com/CefBoud/kafkamux/types"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the configuration used when nothing is specified.
func Default() types.Configuration {
	return types.Configuration{
		Listen:          ":9092",
		TypeID:          1,
		DataDir:         filepath.Join(os.TempDir(), "kafkamux"),
		LogLevel:        logging.INFO,
		MetricsInterval: 10 * time.Second,
	}
}

// Load reads path over Default. JSON files are read as YAML.
func Load(path string) (types.Configuration, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem of cfg at once.
func Validate(cfg types.Configuration) error {
	var errs *multierror.Error
	invalid := func(format string, a ...any) {
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, a...)))
	}

	if cfg.Listen == "" {
		invalid("listen address is empty")
	}
	if cfg.TypeID == 0 {
		invalid("typeId must be set")
	}
	if cfg.DataDir == "" {
		invalid("dataDir is empty")
	}
	if hclog.LevelFromString(cfg.LogLevel) == hclog.NoLevel {
		invalid("unknown log level %q", cfg.LogLevel)
	}
	if cfg.MetricsInterval < 0 {
		invalid("metricsInterval is negative")
	}

	seen := make(map[int64]bool, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		if b.ID == 0 {
			invalid("binding %q has no id", b.Name)
		}
		if seen[b.ID] {
			invalid("duplicate binding id %d", b.ID)
		}
		seen[b.ID] = true
		if _, err := protocol.NewBinding(b); err != nil {
			invalid("%s", err)
		}
	}
	return errs.ErrorOrNil()
}
