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

package cli

import (
	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/client"
	"github.com/uptimizeai/zenthia/internal/commands/config"
	"github.com/uptimizeai/zenthia/internal/commands/runs"
	"github.com/uptimizeai/zenthia/internal/commands/serve"
	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/commands/token"
	"github.com/uptimizeai/zenthia/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zenthia",
		Short: "Zenthia - multi-agent pipeline controller",
		Long: `Zenthia runs multi-agent pipelines: each run passes its input through a
fixed sequence of agents, with per-stage timeouts, cooperative cancellation
and automatic cleanup of stale runs.

Run 'zenthia serve' to start the controller, then use 'zenthia runs' to
start, inspect and cancel runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVarP(flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(flags.Config, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(flags.Host, "host", "", "Controller address (default: $"+client.HostEnv+" or "+client.DefaultHost+")")
	cmd.PersistentFlags().StringVar(flags.APIToken, "api-token", "", "API token (default: $"+client.APIKeyEnv+")")
	cmd.PersistentFlags().StringVar(flags.CACert, "ca-cert", "", "PEM file of CAs to trust for an https controller")

	cmd.AddCommand(serve.NewCommand())
	cmd.AddCommand(runs.NewCommand())
	cmd.AddCommand(token.NewCommand())
	cmd.AddCommand(config.NewConfigCommand())
	cmd.AddCommand(version.NewVersionCommand())

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
