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

package token

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/controller/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestToken_Generates(t *testing.T) {
	path := writeConfig(t, "auth:\n  jwt_secret: "+testSecret+"\n  jwt_issuer: zenthia-test\n")
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	shared.SetConfigPathForTest(path)
	shared.SetJSONForTest(true)

	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--subject", "portal-user", "--ttl", "1h"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token failed: %v", err)
	}

	var got Output
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	claims, err := auth.ValidateJWT(got.Token, auth.JWTConfig{Secret: []byte(testSecret), Issuer: "zenthia-test"})
	if err != nil {
		t.Fatalf("generated token does not validate: %v", err)
	}
	if claims.UserID != "portal-user" || claims.Subject != "portal-user" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestToken_NoSecret(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)
	shared.SetConfigPathForTest(path)
	t.Setenv("ZENTHIA_JWT_SECRET", "")

	cmd := NewCommand()
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	if code := shared.ExitCode(err); code != shared.ExitConfig {
		t.Errorf("expected exit code %d, got %d (%v)", shared.ExitConfig, code, err)
	}
}

func TestToken_BadTTL(t *testing.T) {
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	cmd := NewCommand()
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	cmd.SetArgs([]string{"--ttl", "0s"})
	err := cmd.Execute()
	if code := shared.ExitCode(err); code != shared.ExitUsage {
		t.Errorf("expected exit code %d, got %d (%v)", shared.ExitUsage, code, err)
	}
}
