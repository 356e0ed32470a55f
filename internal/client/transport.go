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

package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// Transport is an http.RoundTripper that dials the controller over a Unix
// socket or TCP.
type Transport struct {
	// SocketPath is the Unix socket path for local connections.
	SocketPath string

	// TLSConfig is used for https URLs.
	TLSConfig *tls.Config

	once sync.Once
	rt   *http.Transport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.once.Do(func() { t.rt = t.httpTransport() })
	return t.rt.RoundTrip(req)
}

func (t *Transport) httpTransport() *http.Transport {
	transport := &http.Transport{
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     t.TLSConfig,
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	switch {
	case t.SocketPath != "":
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", t.SocketPath)
		}
	default:
		transport.DialContext = dialer.DialContext
	}

	return transport
}

// NewUnixTransport creates a transport for a Unix socket.
func NewUnixTransport(socketPath string) *Transport {
	return &Transport{SocketPath: socketPath}
}

// NewTLSTransport creates a transport for HTTPS connections.
func NewTLSTransport(tlsConfig *tls.Config) *Transport {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return &Transport{TLSConfig: tlsConfig}
}
