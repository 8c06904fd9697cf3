package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads the YAML file at path into out. Unknown keys are rejected so
// that typos in a config file do not silently fall back to defaults.
func Load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Env overrides *dst with the environment variable name when it is set.
func Env(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}
