// Copyright 2025 Jazzam
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

package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Principal is the authenticated caller extracted from a bearer token.
type Principal struct {
	UserID   string
	Email    string
	Name     string
	Role     string
	TenantID string

	// Delegated marks principals acting on a tenant they do not own,
	// e.g. an agency user working a client account. Delegated access
	// additionally requires team membership on the resolved tenant.
	Delegated bool
}

// AuthorizationError carries the HTTP status for an auth failure.
type AuthorizationError struct {
	Status  int
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// Authenticator validates bearer tokens and extracts principals.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator around an HMAC signing secret.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("authenticator requires a signing secret")
	}
	return &Authenticator{secret: secret}, nil
}

// PrincipalFromRequest validates the Authorization header and returns the
// caller's principal. All failures map to 401.
func (a *Authenticator) PrincipalFromRequest(r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Message: "missing authorization header"}
	}

	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header || tokenString == "" {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Message: "malformed authorization header"}
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Message: "invalid token"}
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Message: "invalid token claims"}
	}

	userID := getClaimString(claims, "user_id")
	if userID == "" {
		return nil, &AuthorizationError{Status: http.StatusUnauthorized, Message: "token missing user_id"}
	}

	return &Principal{
		UserID:    userID,
		Email:     getClaimString(claims, "email"),
		Name:      getClaimString(claims, "name"),
		Role:      getClaimString(claims, "role"),
		TenantID:  getClaimString(claims, "tenant_id"),
		Delegated: getClaimBool(claims, "delegated"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

func getClaimBool(claims jwt.MapClaims, key string) bool {
	if val, ok := claims[key].(bool); ok {
		return val
	}
	return false
}
