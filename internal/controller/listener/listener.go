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

// Package listener opens the controller's network listener.
package listener

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

// UnixPrefix marks an address as a Unix socket path.
const UnixPrefix = "unix://"

// Config describes where the controller listens.
type Config struct {
	// Addr is host:port, or unix:///path/to/socket.
	Addr string

	// AllowRemote permits binding to non-loopback interfaces.
	AllowRemote bool

	// TLSCert and TLSKey enable TLS when both are set.
	TLSCert string
	TLSKey  string
}

// New creates a listener for cfg.
func New(cfg Config) (net.Listener, error) {
	if path, ok := strings.CutPrefix(cfg.Addr, UnixPrefix); ok {
		return newUnixListener(path)
	}
	return newTCPListener(cfg)
}

func newUnixListener(socketPath string) (net.Listener, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("unix socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// A stale socket from a previous process blocks Listen.
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on Unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return ln, nil
}

func newTCPListener(cfg Config) (net.Listener, error) {
	if !cfg.AllowRemote && IsRemoteAddr(cfg.Addr) {
		return nil, fmt.Errorf(
			"binding to %s exposes the cancel API to the network; "+
				"set server.allow_remote (and configure auth) if that is intended",
			cfg.Addr,
		)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on TCP: %w", err)
	}

	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			ln.Close()
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}), nil
	}

	return ln, nil
}

// IsRemoteAddr reports whether addr binds to anything beyond loopback.
func IsRemoteAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		if strings.HasPrefix(addr, ":") {
			host = ""
		}
	}

	switch host {
	case "", "0.0.0.0", "::":
		return true
	case "localhost", "127.0.0.1", "::1":
		return false
	}
	return true
}
