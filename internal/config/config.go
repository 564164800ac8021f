// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the YAML description of a session conversion.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

const (
	defaultGroupDescription = "a 4-wired electrode"
	defaultLocation         = "unknown"
	defaultFiltering        = "unknown"
)

// Config describes a recording session and the tetrode files to convert.
type Config struct {
	Session          Session        `yaml:"session"`
	ElectrodeGroup   ElectrodeGroup `yaml:"electrode_group"`
	Tetrodes         []Tetrode      `yaml:"tetrodes"`
	Output           string         `yaml:"output"`
	Workers          int            `yaml:"workers"`
	SkipErrors       bool           `yaml:"skip_errors"`
	VerifyTimestamps bool           `yaml:"verify_timestamps"`
	MaxSpikes        int            `yaml:"max_spikes"`
}

// Session holds the metadata describing the recording session.
type Session struct {
	Identifier   string    `yaml:"identifier" json:"identifier"`
	Description  string    `yaml:"description" json:"description,omitempty"`
	Lab          string    `yaml:"lab" json:"lab,omitempty"`
	Institution  string    `yaml:"institution" json:"institution,omitempty"`
	Experimenter []string  `yaml:"experimenter" json:"experimenter,omitempty"`
	SubjectID    string    `yaml:"subject_id" json:"subject_id,omitempty"`
	StartTime    time.Time `yaml:"start_time" json:"start_time"`
}

// ElectrodeGroup holds the defaults applied to every tetrode.
type ElectrodeGroup struct {
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
	Filtering   string `yaml:"filtering"`
}

// Tetrode is a single spike file. Empty fields fall back to the electrode
// group defaults, and an empty name is derived from the file extension.
type Tetrode struct {
	Path        string `yaml:"path"`
	Name        string `yaml:"name"`
	Location    string `yaml:"location"`
	Description string `yaml:"description"`
}

// Load reads the configuration file at path. Relative paths inside it are
// resolved against the directory holding the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration for missing or conflicting values.
func (c *Config) Validate() error {
	if c.Session.Identifier == "" {
		return fmt.Errorf("%w: session identifier is required", ErrInvalidConfig)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output is required", ErrInvalidConfig)
	}
	if len(c.Tetrodes) == 0 {
		return fmt.Errorf("%w: no tetrodes", ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.MaxSpikes < 0 {
		return fmt.Errorf("%w: max_spikes must not be negative, got %d", ErrInvalidConfig, c.MaxSpikes)
	}

	seen := make(map[string]bool, len(c.Tetrodes))
	for i, t := range c.Tetrodes {
		if t.Path == "" {
			return fmt.Errorf("%w: tetrode %d has no path", ErrInvalidConfig, i)
		}
		if seen[t.Path] {
			return fmt.Errorf("%w: duplicate tetrode %s", ErrInvalidConfig, t.Path)
		}
		seen[t.Path] = true
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = 1
	}

	g := &c.ElectrodeGroup
	if g.Description == "" {
		g.Description = defaultGroupDescription
	}
	if g.Location == "" {
		g.Location = defaultLocation
	}
	if g.Filtering == "" {
		g.Filtering = defaultFiltering
	}

	for i := range c.Tetrodes {
		t := &c.Tetrodes[i]
		if t.Location == "" {
			t.Location = g.Location
		}
		if t.Description == "" {
			t.Description = g.Description
		}
	}
}

func (c *Config) resolvePaths(dir string) {
	if c.Output != "" && !filepath.IsAbs(c.Output) {
		c.Output = filepath.Join(dir, c.Output)
	}
	for i := range c.Tetrodes {
		if p := c.Tetrodes[i].Path; !filepath.IsAbs(p) {
			c.Tetrodes[i].Path = filepath.Join(dir, p)
		}
	}
}
