// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package config loads the handful of settings a benchmark program
// needs to stand up a dispatcher: which AWS region to target, the
// build-time function-name prefix, and the default resource
// configuration new task descriptors should carry. It is deliberately
// not consulted by the dispatcher/graph core itself -- those packages
// take plain Go values -- only by the cmd/ programs that wire a
// runnable instance together.
package config

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/faasless/faasless/task"
)

// Config is the top-level shape of a benchmark program's YAML config
// file.
type Config struct {
	Region      string       `json:"region"`
	BuildPrefix string       `json:"buildPrefix"`
	Backend     string       `json:"backend"` // "remote" or "local"
	LocalExec   string       `json:"localExec,omitempty"`
	Resources   task.Config  `json:"resources,omitempty"`
}

// Default matches task.DefaultConfig for Resources and otherwise
// leaves the caller's environment to supply the rest.
var Default = Config{
	Backend:   "remote",
	Resources: task.DefaultConfig,
}

// Load reads and parses a YAML config file at path, using
// sigs.k8s.io/yaml the way the rest of the dependency pack decodes
// YAML through the Kubernetes-style YAML-to-JSON bridge rather than a
// native YAML decoder.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg := Default
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the fields Load cannot check on its own: that a
// region was given, and that a local backend also names an executable.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("config: region is required")
	}
	if c.BuildPrefix == "" {
		return fmt.Errorf("config: buildPrefix is required")
	}
	switch c.Backend {
	case "remote":
	case "local":
		if c.LocalExec == "" {
			return fmt.Errorf("config: backend \"local\" requires localExec")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	return nil
}
