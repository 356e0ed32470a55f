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

package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime of generated session tokens.
const DefaultTokenTTL = 24 * time.Hour

// JWTConfig contains session token configuration.
type JWTConfig struct {
	// Secret is the HS256 signing key.
	Secret []byte

	// Issuer is the expected issuer claim.
	Issuer string

	// Audience is the expected audience claim.
	Audience string

	// ClockSkew allows for clock skew when validating exp/nbf claims.
	ClockSkew time.Duration
}

// Claims represents the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	// UserID identifies the portal user the session belongs to.
	UserID string `json:"user_id,omitempty"`
}

// ValidateJWT validates a session token and returns its claims.
func ValidateJWT(tokenString string, cfg JWTConfig) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if len(cfg.Secret) == 0 {
		return nil, fmt.Errorf("no signing secret configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return claims, nil
}

// GenerateJWT signs a session token for claims. Missing expiry, issuer and
// audience are filled from cfg.
func GenerateJWT(claims Claims, cfg JWTConfig) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", fmt.Errorf("no signing secret configured")
	}

	now := time.Now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(DefaultTokenTTL))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if cfg.Issuer != "" && claims.Issuer == "" {
		claims.Issuer = cfg.Issuer
	}
	if cfg.Audience != "" && !slices.Contains(claims.Audience, cfg.Audience) {
		claims.Audience = append(claims.Audience, cfg.Audience)
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
