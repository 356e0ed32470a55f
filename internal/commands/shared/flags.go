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

// Package shared holds state and helpers used by every zenthia command.
package shared

// Global flag values, bound by the root command.
var (
	quietFlag  bool
	jsonFlag   bool
	configFlag string
	hostFlag   string
	tokenFlag  string
	caCertFlag string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags groups pointers to the global flag variables for binding.
type Flags struct {
	Quiet    *bool
	JSON     *bool
	Config   *string
	Host     *string
	APIToken *string
	CACert   *string
}

// RegisterFlagPointers returns the global flag variables for binding.
func RegisterFlagPointers() Flags {
	return Flags{
		Quiet:    &quietFlag,
		JSON:     &jsonFlag,
		Config:   &configFlag,
		Host:     &hostFlag,
		APIToken: &tokenFlag,
		CACert:   &caCertFlag,
	}
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quietFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return configFlag
}

// GetHost returns the --host value.
func GetHost() string {
	return hostFlag
}

// GetAPIToken returns the --api-token value.
func GetAPIToken() string {
	return tokenFlag
}

// GetCACert returns the --ca-cert value.
func GetCACert() string {
	return caCertFlag
}

// ResetFlagsForTest restores every global flag to its zero value.
func ResetFlagsForTest() {
	quietFlag, jsonFlag = false, false
	configFlag, hostFlag, tokenFlag, caCertFlag = "", "", "", ""
}

// SetJSONForTest sets the JSON flag for testing purposes
func SetJSONForTest(v bool) {
	jsonFlag = v
}

// SetHostForTest sets the host flag for testing purposes
func SetHostForTest(host string) {
	hostFlag = host
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	configFlag = path
}
