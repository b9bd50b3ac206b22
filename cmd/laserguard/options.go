package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultOptionsPath is read at startup when --config is not given.
const DefaultOptionsPath = "/etc/laserguard/laserguard.yaml"

// commandOnly names flags that act once and so are refused in an options file.
var commandOnly = map[string]bool{
	"add-api-key":    true,
	"revoke-api-key": true,
	"config":         true,
}

// applyOptionsFile sets every flag of fs named in the YAML file at path,
// unless it was given on the command line. Keys are flag names:
//
//	sta-iface: wlan0
//	led-pin: GPIO17
//	reconnect-retries: 3
//
// A missing file is not an error.
func applyOptionsFile(fs *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("options: read %s: %w", path, err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("options: parse %s: %w", path, err)
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	for name, v := range values {
		if fs.Lookup(name) == nil {
			return fmt.Errorf("options: %s: unknown option %q", path, name)
		}
		if commandOnly[name] {
			return fmt.Errorf("options: %s: %q is only accepted on the command line", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := fs.Set(name, fmt.Sprint(v)); err != nil {
			return fmt.Errorf("options: %s: %s: %w", path, name, err)
		}
	}
	return nil
}
