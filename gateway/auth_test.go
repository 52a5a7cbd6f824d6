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
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-signing-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func TestNewAuthenticator_RequiresSecret(t *testing.T) {
	if _, err := NewAuthenticator(nil); err == nil {
		t.Error("Expected error for empty secret")
	}
}

func TestPrincipalFromRequest(t *testing.T) {
	auth, err := NewAuthenticator(testSecret)
	if err != nil {
		t.Fatalf("Failed to create authenticator: %v", err)
	}

	validToken := signToken(t, testSecret, jwt.MapClaims{
		"user_id":   "user-1",
		"email":     "owner@acme.test",
		"name":      "Acme Owner",
		"role":      "owner",
		"tenant_id": "T1",
	})

	tests := []struct {
		name       string
		authHeader string
		wantErr    bool
	}{
		{"valid token", "Bearer " + validToken, false},
		{"missing header", "", true},
		{"no bearer prefix", validToken, true},
		{"empty bearer", "Bearer ", true},
		{"garbage token", "Bearer not-a-jwt", true},
		{
			"wrong signing secret",
			"Bearer " + signToken(t, []byte("other-secret"), jwt.MapClaims{"user_id": "user-1"}),
			true,
		},
		{
			"missing user_id claim",
			"Bearer " + signToken(t, testSecret, jwt.MapClaims{"tenant_id": "T1"}),
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/leads", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}

			principal, err := auth.PrincipalFromRequest(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				authErr, ok := err.(*AuthorizationError)
				if !ok {
					t.Fatalf("Expected AuthorizationError, got %T", err)
				}
				if authErr.Status != 401 {
					t.Errorf("Expected 401, got %d", authErr.Status)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if principal.UserID != "user-1" {
				t.Errorf("Expected user-1, got %s", principal.UserID)
			}
			if principal.TenantID != "T1" {
				t.Errorf("Expected tenant T1, got %s", principal.TenantID)
			}
			if principal.Role != "owner" {
				t.Errorf("Expected role owner, got %s", principal.Role)
			}
			if principal.Delegated {
				t.Error("Expected non-delegated principal")
			}
		})
	}
}

func TestPrincipalFromRequest_DelegatedClaim(t *testing.T) {
	auth, _ := NewAuthenticator(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{
		"user_id":   "agency-user",
		"tenant_id": "agency",
		"delegated": true,
	})

	r := httptest.NewRequest("GET", "/api/leads", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	principal, err := auth.PrincipalFromRequest(r)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !principal.Delegated {
		t.Error("Expected delegated principal")
	}
}
