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

// Package token implements the token command, which mints session tokens
// accepted by the controller API.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/uptimizeai/zenthia/internal/commands/shared"
	"github.com/uptimizeai/zenthia/internal/config"
	"github.com/uptimizeai/zenthia/internal/controller/auth"
)

// Output is the JSON form of a minted token.
type Output struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCommand creates the token command.
func NewCommand() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a session token",
		Long: `Sign a session token with auth.jwt_secret from the configuration. The
token is accepted by the controller as a bearer token or session cookie.`,
		Example: `  zenthia token --subject portal-user --ttl 1h
  ZENTHIA_API_TOKEN=$(zenthia token -q) zenthia runs list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return shared.NewUsageError("--subject must not be empty")
			}
			if ttl <= 0 {
				return shared.NewUsageError("--ttl must be positive")
			}

			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return shared.NewConfigError("failed to load configuration", err)
			}
			if cfg.Auth.JWTSecret == "" {
				return shared.NewConfigError("auth.jwt_secret is not configured", nil)
			}

			expires := time.Now().Add(ttl).Truncate(time.Second)
			signed, err := auth.GenerateJWT(auth.Claims{
				UserID: subject,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   subject,
					ExpiresAt: jwt.NewNumericDate(expires),
				},
			}, auth.JWTConfig{
				Secret:   []byte(cfg.Auth.JWTSecret),
				Issuer:   cfg.Auth.JWTIssuer,
				Audience: cfg.Auth.JWTAudience,
			})
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}

			w := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(w, Output{Token: signed, Subject: subject, ExpiresAt: expires})
			}
			if shared.GetQuiet() {
				fmt.Fprintln(w, signed)
				return nil
			}
			fmt.Fprintln(w, signed)
			fmt.Fprintf(w, "expires: %s\n", expires.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "User the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "Token lifetime")

	return cmd
}
