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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"jazzam/platform/tenantdb"
)

func testLeadHandlers(t *testing.T) *LeadHandlers {
	t.Helper()
	namer, err := tenantdb.NewTemplateNamer("jazzam_{tenant}")
	if err != nil {
		t.Fatalf("Failed to create namer: %v", err)
	}
	return NewLeadHandlers(tenantdb.NewModelRegistry(namer, nil))
}

func TestCreateLead_Validation(t *testing.T) {
	handlers := testLeadHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing name", `{"email":"a@b.test"}`},
		{"missing email", `{"name":"Ada"}`},
		{"empty body", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/leads", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handlers.CreateLead(rec, r)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateLead_NoFields(t *testing.T) {
	handlers := testLeadHandlers(t)

	r := httptest.NewRequest("PUT", "/api/leads/abc", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handlers.UpdateLead(rec, r)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty update, got %d", rec.Code)
	}
}

func TestCreateLead_RequiresTenantConnection(t *testing.T) {
	handlers := testLeadHandlers(t)

	// Valid body but no tenant connection in context: the handler must
	// fail closed rather than touch a default database.
	r := httptest.NewRequest("POST", "/api/leads", strings.NewReader(`{"name":"Ada","email":"ada@acme.test"}`))
	rec := httptest.NewRecorder()
	handlers.CreateLead(rec, r)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 without tenant connection, got %d", rec.Code)
	}
}

func TestLeadSchema(t *testing.T) {
	schema := leadSchema()
	if schema.Collection != "leads" {
		t.Errorf("Expected leads collection, got %s", schema.Collection)
	}
	if len(schema.Indexes) == 0 {
		t.Error("Expected lead indexes to be declared")
	}
}
