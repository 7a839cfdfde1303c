// Package config loads gplc's optional YAML settings file, the same
// role tawago's "Tawa Module Information" document plays for tawago
// builds, adapted from a per-directory package manifest to a
// per-invocation compiler settings file since GP-λ compiles one source
// file at a time (spec.md §6).
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// Settings holds the tunables spec.md §6's CLI surface exposes through
// --config instead of a flag, because they change rarely enough that a
// checked-in file suits them better than a command line.
type Settings struct {
	// TargetTriple is passed to the emitted module so clang links for
	// the right platform; empty means "let clang pick the host triple".
	TargetTriple string `yaml:"targetTriple"`
	// OutputDir is the directory compiled .ll files are written to when
	// --output is not given; empty means beside the input file.
	OutputDir string `yaml:"outputDir"`
}

// Default matches tawago's implicit behavior of running clang with the
// host's default triple and writing output beside the input.
func Default() Settings {
	return Settings{}
}

// Load reads and parses a YAML settings file. A missing path is not an
// error: it returns Default() so --config is optional.
func Load(path string) (Settings, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, err
	}

	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
