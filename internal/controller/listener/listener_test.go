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

package listener

import (
	"net"
	"path/filepath"
	"testing"
)

func TestIsRemoteAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:9880", false},
		{"localhost:9880", false},
		{"[::1]:9880", false},
		{":9880", true},
		{"0.0.0.0:9880", true},
		{"[::]:9880", true},
		{"10.0.0.5:9880", true},
	}
	for _, tt := range tests {
		if got := IsRemoteAddr(tt.addr); got != tt.want {
			t.Errorf("IsRemoteAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}

func TestNew_TCP(t *testing.T) {
	ln, err := New(Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ln.Close()

	if _, ok := ln.Addr().(*net.TCPAddr); !ok {
		t.Errorf("expected TCP listener, got %T", ln.Addr())
	}
}

func TestNew_RemoteRequiresOptIn(t *testing.T) {
	if _, err := New(Config{Addr: "0.0.0.0:0"}); err == nil {
		t.Fatal("expected error binding to all interfaces without AllowRemote")
	}

	ln, err := New(Config{Addr: "0.0.0.0:0", AllowRemote: true})
	if err != nil {
		t.Fatalf("New() with AllowRemote error = %v", err)
	}
	ln.Close()
}

func TestNew_Unix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sock", "zenthia.sock")

	ln, err := New(Config{Addr: UnixPrefix + path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer ln.Close()

	if ln.Addr().Network() != "unix" {
		t.Errorf("network = %q, want unix", ln.Addr().Network())
	}
}

func TestNew_BadTLS(t *testing.T) {
	_, err := New(Config{Addr: "127.0.0.1:0", TLSCert: "/nope/cert.pem", TLSKey: "/nope/key.pem"})
	if err == nil {
		t.Fatal("expected TLS load error")
	}
}
