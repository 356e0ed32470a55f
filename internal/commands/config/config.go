// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config implements the config command group.
package config

import (
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/config"
	"github.com/uptimizeai/zenthia/internal/controller/agent"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and validate configuration",
		Long: `View and validate the effective zenthia configuration: defaults, then the
file given by --config, then ZENTHIA_* environment variables.

Subcommands:
  show     - Display the effective configuration
  validate - Check the configuration without starting the controller`,
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the effective configuration as YAML.

Secrets (API token, JWT secret, agent headers) are masked.
Use --json for machine-readable output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return shared.NewConfigError("failed to load configuration", err)
			}
			masked := maskSensitiveConfig(cfg)

			w := cmd.OutOrStdout()
			if shared.GetJSON() {
				// Round-trip through YAML so JSON keys match the file format.
				data, err := yaml.Marshal(masked)
				if err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				var tree map[string]any
				if err := yaml.Unmarshal(data, &tree); err != nil {
					return fmt.Errorf("failed to encode config: %w", err)
				}
				return shared.EmitJSON(w, tree)
			}

			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(masked); err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

// maskSensitiveConfig creates a copy of config with sensitive values masked
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	masked := *cfg
	masked.Auth.APIToken = maskSecret(cfg.Auth.APIToken)
	masked.Auth.JWTSecret = maskSecret(cfg.Auth.JWTSecret)

	masked.Pipeline.Agents = make([]agent.Config, len(cfg.Pipeline.Agents))
	for i, a := range cfg.Pipeline.Agents {
		if len(a.Headers) > 0 {
			headers := maps.Clone(a.Headers)
			for k, v := range headers {
				headers[k] = maskSecret(v)
			}
			a.Headers = headers
		}
		masked.Pipeline.Agents[i] = a
	}

	return &masked
}

// maskSecret keeps the first and last four characters of long values.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
