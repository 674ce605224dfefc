package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/room-booking/internal/application"
	"github.com/example/room-booking/internal/persistence"
)

type resourceService interface {
	CreateResource(ctx context.Context, params application.CreateResourceParams) (persistence.Resource, error)
	GetResource(ctx context.Context, id string) (persistence.Resource, error)
	ListResources(ctx context.Context) ([]persistence.Resource, error)
	SetResourceAvailability(ctx context.Context, params application.SetAvailabilityParams) (persistence.Resource, error)
	UpdateResourceQuantity(ctx context.Context, params application.UpdateQuantityParams) (persistence.Resource, error)
	DeleteResource(ctx context.Context, principal application.Principal, id string) error
}

type ResourceHandler struct {
	service   resourceService
	responder responder
	logger    *slog.Logger
}

func NewResourceHandler(service resourceService, logger *slog.Logger) *ResourceHandler {
	base := defaultLogger(logger)
	return &ResourceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ResourceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "ResourceHandler", operation, attrs...)
}

func (h *ResourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode resource request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create")
	res, err := h.service.CreateResource(r.Context(), application.CreateResourceParams{
		Principal: principal,
		Input: application.ResourceInput{
			Name:          strings.TrimSpace(req.Name),
			Description:   req.Description,
			TotalQuantity: req.TotalQuantity,
		},
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "resource creation failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("resource_id", res.ID).InfoContext(r.Context(), "resource created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, resourceResponse{Resource: toResourceDTO(res)})
}

func (h *ResourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.service.GetResource(r.Context(), id)
	if err != nil {
		logServiceFailure(r.Context(), h.log(r.Context(), "Get", "resource_id", id), "resource lookup failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourceResponse{Resource: toResourceDTO(res)})
}

func (h *ResourceHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListResources(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]resourceDTO, 0, len(list))
	for _, res := range list {
		out = append(out, toResourceDTO(res))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listResourcesResponse{Resources: out})
}

func (h *ResourceHandler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	var req availabilityFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Available == nil {
		h.log(r.Context(), "SetAvailability", "resource_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "invalid availability payload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SetAvailability", "resource_id", id)
	res, err := h.service.SetResourceAvailability(r.Context(), application.SetAvailabilityParams{
		Principal: principal,
		ID:        id,
		Available: *req.Available,
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "resource availability update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourceResponse{Resource: toResourceDTO(res)})
}

func (h *ResourceHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TotalQuantity == nil {
		h.log(r.Context(), "UpdateQuantity", "resource_id", id, "error_kind", "bad_request").WarnContext(r.Context(), "invalid quantity payload", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "UpdateQuantity", "resource_id", id, "total_quantity", *req.TotalQuantity)
	res, err := h.service.UpdateResourceQuantity(r.Context(), application.UpdateQuantityParams{
		Principal:     principal,
		ResourceID:    id,
		TotalQuantity: *req.TotalQuantity,
	})
	if err != nil {
		logServiceFailure(r.Context(), logger, "resource quantity update failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "resource quantity updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resourceResponse{Resource: toResourceDTO(res)})
}

func (h *ResourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	principal, _ := PrincipalFromContext(r.Context())

	logger := h.log(r.Context(), "Delete", "resource_id", id)
	if err := h.service.DeleteResource(r.Context(), principal, id); err != nil {
		logServiceFailure(r.Context(), logger, "resource delete failed", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "resource deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type resourceRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	TotalQuantity int    `json:"total_quantity"`
}

type quantityRequest struct {
	TotalQuantity *int `json:"total_quantity"`
}

type resourceResponse struct {
	Resource resourceDTO `json:"resource"`
}

type listResourcesResponse struct {
	Resources []resourceDTO `json:"resources"`
}

type resourceDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	TotalQuantity     int    `json:"total_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
	IsAvailable       bool   `json:"is_available"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

func toResourceDTO(res persistence.Resource) resourceDTO {
	return resourceDTO{
		ID:                res.ID,
		Name:              res.Name,
		Description:       res.Description,
		TotalQuantity:     res.TotalQuantity,
		AvailableQuantity: res.AvailableQuantity,
		IsAvailable:       res.IsAvailable,
		CreatedAt:         res.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:         res.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}
