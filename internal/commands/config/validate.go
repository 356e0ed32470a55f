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

package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/config"
)

// ValidationResult represents the result of config validation.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Long: `Load and validate the configuration without starting the controller.

Warnings flag settings that load but are probably unintended. With
--strict, warnings are treated as errors.`,
		Example: `  zenthia config validate --config /etc/zenthia/config.yaml
  zenthia config validate --strict --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result ValidationResult
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
			} else {
				result.Warnings = warnings(cfg)
			}
			result.Valid = len(result.Errors) == 0 && (!strict || len(result.Warnings) == 0)

			if err := outputValidationResult(cmd, result); err != nil {
				return err
			}
			if !result.Valid {
				return &shared.ExitError{Code: shared.ExitConfig, Message: "configuration is invalid"}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// warnings reports settings that are valid but likely mistakes.
func warnings(cfg *config.Config) []string {
	var out []string
	if len(cfg.Pipeline.Agents) == 0 {
		out = append(out, "No agents configured; started runs will complete immediately.")
	}
	if cfg.Auth.APIToken == "" && cfg.Auth.JWTSecret == "" {
		out = append(out, "No authentication configured; the API accepts anonymous requests.")
	}
	if cfg.Server.AllowRemote && cfg.Server.TLSCert == "" {
		out = append(out, "allow_remote is set without TLS.")
	}
	if cfg.Pipeline.StageTimeout > cfg.Pipeline.StaleAfter {
		out = append(out, fmt.Sprintf("stage_timeout (%v) exceeds stale_after (%v); slow stages will be reaped as stale.",
			cfg.Pipeline.StageTimeout, cfg.Pipeline.StaleAfter))
	}
	if cfg.History.Backend == config.HistoryMemory && cfg.History.Retention > 0 {
		out = append(out, "Memory history is lost on restart; use the sqlite backend to keep runs.")
	}
	return out
}

func outputValidationResult(cmd *cobra.Command, result ValidationResult) error {
	w := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(w, result)
	}

	for _, e := range result.Errors {
		fmt.Fprintln(w, shared.RenderError(e))
	}
	for _, warn := range result.Warnings {
		fmt.Fprintln(w, shared.RenderWarn(warn))
	}
	if result.Valid {
		fmt.Fprintln(w, shared.RenderOK("Configuration is valid"))
	}
	return nil
}
