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

package tracing

// Exporter types accepted in Config.Exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// Config holds observability configuration.
type Config struct {
	// Enabled controls whether spans are recorded and exported.
	// Metrics are collected either way.
	Enabled bool

	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// Exporter selects where spans go: none, stdout, otlp-http, otlp-grpc.
	Exporter string

	// Endpoint is the OTLP collector address (host:port).
	Endpoint string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// SampleRate is the fraction of new traces to record (0.0 - 1.0).
	// Spans with a sampled parent are always recorded.
	SampleRate float64
}

// DefaultConfig returns tracing disabled with metrics still available.
func DefaultConfig() Config {
	return Config{
		ServiceName: "zenthia",
		Exporter:    ExporterNone,
		SampleRate:  1.0,
	}
}
