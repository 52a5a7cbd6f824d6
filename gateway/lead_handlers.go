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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jazzam/platform/shared/logger"
	"jazzam/platform/tenantdb"
)

// Lead is one sales lead inside a tenant's database.
type Lead struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	Company   string    `bson:"company,omitempty" json:"company,omitempty"`
	Status    string    `bson:"status" json:"status"`
	OwnerID   string    `bson:"owner_id" json:"ownerId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// leadSchema describes the leads collection. Schemas are immutable for
// the process lifetime; the registry binds one handle per tenant database.
func leadSchema() *tenantdb.ModelSchema {
	return &tenantdb.ModelSchema{
		Collection: "leads",
		Indexes: []mongo.IndexModel{
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// LeadHandlers serves the thin leads surface that exercises the model
// registry through the resolved tenant connection.
type LeadHandlers struct {
	registry *tenantdb.ModelRegistry
	logger   *logger.Logger
}

// NewLeadHandlers creates the leads handler set.
func NewLeadHandlers(registry *tenantdb.ModelRegistry) *LeadHandlers {
	return &LeadHandlers{
		registry: registry,
		logger:   logger.New("gateway"),
	}
}

// Register mounts the leads routes on a router already wrapped with
// tenant resolution.
func (h *LeadHandlers) Register(r *mux.Router) {
	r.HandleFunc("/leads", h.CreateLead).Methods("POST")
	r.HandleFunc("/leads", h.ListLeads).Methods("GET")
	r.HandleFunc("/leads/{id}", h.GetLead).Methods("GET")
	r.HandleFunc("/leads/{id}", h.UpdateLead).Methods("PUT")
	r.HandleFunc("/leads/{id}", h.DeleteLead).Methods("DELETE")
}

// model returns the tenant-scoped Lead model for this request.
func (h *LeadHandlers) model(r *http.Request) (*tenantdb.ModelHandle, error) {
	conn, ok := ConnFromContext(r.Context())
	if !ok {
		return nil, &AuthorizationError{Status: http.StatusInternalServerError, Message: "no tenant connection in request"}
	}
	return h.registry.GetModel(conn, "Lead", leadSchema())
}

type createLeadRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}

// CreateLead handles POST /leads.
func (h *LeadHandlers) CreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	model, err := h.model(r)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	ownerID := ""
	if principal != nil {
		ownerID = principal.UserID
	}

	now := time.Now().UTC()
	lead := Lead{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Email:     req.Email,
		Company:   req.Company,
		Status:    "new",
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := model.InsertOne(r.Context(), lead); err != nil {
		h.writeModelError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, lead)
}

// ListLeads handles GET /leads with an optional status filter.
func (h *LeadHandlers) ListLeads(w http.ResponseWriter, r *http.Request) {
	model, err := h.model(r)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}

	filter := bson.M{}
	if status := r.URL.Query().Get("status"); status != "" {
		filter["status"] = status
	}

	leads := []Lead{}
	if err := model.Find(r.Context(), filter, &leads); err != nil {
		h.writeModelError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leads": leads,
		"count": len(leads),
	})
}

// GetLead handles GET /leads/{id}.
func (h *LeadHandlers) GetLead(w http.ResponseWriter, r *http.Request) {
	model, err := h.model(r)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}

	var lead Lead
	if err := model.FindByID(r.Context(), mux.Vars(r)["id"], &lead); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		h.writeModelError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

type updateLeadRequest struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Company *string `json:"company"`
	Status  *string `json:"status"`
}

// UpdateLead handles PUT /leads/{id}.
func (h *LeadHandlers) UpdateLead(w http.ResponseWriter, r *http.Request) {
	var req updateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if req.Name != nil {
		set["name"] = *req.Name
	}
	if req.Email != nil {
		set["email"] = *req.Email
	}
	if req.Company != nil {
		set["company"] = *req.Company
	}
	if req.Status != nil {
		set["status"] = *req.Status
	}
	if len(set) == 1 {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	model, err := h.model(r)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}

	matched, err := model.UpdateByID(r.Context(), mux.Vars(r)["id"], set)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}
	if !matched {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}

// DeleteLead handles DELETE /leads/{id}.
func (h *LeadHandlers) DeleteLead(w http.ResponseWriter, r *http.Request) {
	model, err := h.model(r)
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}

	deleted, err := model.DeleteByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeModelError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func (h *LeadHandlers) writeModelError(w http.ResponseWriter, r *http.Request, err error) {
	if tenantdb.IsValidation(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		writeError(w, authErr.Status, authErr.Message)
		return
	}

	tenantID, _ := TenantIDFromContext(r.Context())
	h.logger.ErrorWithCode(tenantID, "", "Lead operation failed", http.StatusInternalServerError, err, nil)
	writeError(w, http.StatusInternalServerError, "operation failed")
}
