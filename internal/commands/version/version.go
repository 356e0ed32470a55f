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

package version

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	Version   string      `json:"version"`
	Commit    string      `json:"commit"`
	BuildDate string      `json:"build_date"`
	Server    *ServerInfo `json:"server,omitempty"`
}

// ServerInfo is the version reported by a running controller.
type ServerInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var server bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for zenthia. With --server,
also query the controller at --host for its version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, server)
		},
	}

	cmd.Flags().BoolVar(&server, "server", false, "Also show the controller version")

	return cmd
}

func runVersion(cmd *cobra.Command, server bool) error {
	v, c, b := shared.GetVersion()
	info := VersionInfo{Version: v, Commit: c, BuildDate: b}

	if server {
		cl, err := shared.NewClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		resp, err := cl.Version(ctx)
		if err != nil {
			return shared.FromAPIError("failed to query controller version", err)
		}
		info.Server = &ServerInfo{Version: resp.Version, Commit: resp.Commit, GoVersion: resp.GoVersion}
	}

	if shared.GetJSON() {
		return shared.EmitJSON(cmd.OutOrStdout(), info)
	}

	cmd.Printf("zenthia version %s\n", info.Version)
	cmd.Printf("  commit:     %s\n", info.Commit)
	cmd.Printf("  build date: %s\n", info.BuildDate)
	if info.Server != nil {
		cmd.Printf("controller version %s\n", info.Server.Version)
		cmd.Printf("  commit:     %s\n", info.Server.Commit)
		cmd.Printf("  go:         %s\n", info.Server.GoVersion)
	}

	return nil
}
