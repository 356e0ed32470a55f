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

/*
Package cli builds the zenthia command tree.

Individual commands live in the internal/commands subpackages; this package
attaches them to the root command and binds the global flags.

# Command Tree

	zenthia
	├── serve         Run the pipeline controller
	├── runs          Start, list, show and cancel runs
	│   └── history   Finished runs from the history store
	├── token         Sign a session token
	├── config        Show or validate configuration
	└── version       Show version

# Global Flags

	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config         Path to config file
	--host           Controller address (http://, https:// or unix://)
	--api-token      Bearer token for the controller API
	--ca-cert        CA bundle for an https controller
*/
package cli
