// Package rest exposes the product catalog and the operational endpoints over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	perrors "github.com/abgdnv/product-catalog/internal/errors"
	"github.com/abgdnv/product-catalog/internal/service"
	"github.com/abgdnv/product-catalog/internal/transport/reply"
	"github.com/abgdnv/product-catalog/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  service.ProductService
	validate *validator.Validate
	ready    Pinger
	metrics  http.Handler
	logger   *slog.Logger
}

// NewHandler creates a new Handler. ready backs /readyz and metrics serves /metrics; both may be nil.
func NewHandler(svc service.ProductService, ready Pinger, metrics http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		service:  svc,
		validate: service.NewValidator(),
		ready:    ready,
		metrics:  metrics,
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes of the catalog.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.FindAll)
		r.Post("/", h.Create)
		r.Post("/validate", h.ValidateIDs)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindOne)
			r.Patch("/", h.Update)
			r.Delete("/", h.Remove)
		})
	})

	r.Get("/healthz", h.HealthCheck)
	r.Get("/readyz", h.ReadyCheck)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}
}

// FindAll returns a page of products. Paging comes from the page and limit query parameters.
func (h *Handler) FindAll(w http.ResponseWriter, r *http.Request) {
	page, ok := web.ParseOptionalInt(r, w, h.logger, "page", web.Gte(1))
	if !ok {
		return
	}
	limit, ok := web.ParseOptionalInt(r, w, h.logger, "limit", web.Between(1, service.MaxLimit))
	if !ok {
		return
	}
	h.logger.DebugContext(r.Context(), "Received request to find all products", "page", page, "limit", limit)
	result, err := h.service.FindAll(r.Context(), service.PaginationDto{Page: page, Limit: limit})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, reply.Success(result))
}

// FindOne returns a single product.
func (h *Handler) FindOne(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	found, err := h.service.FindOne(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, reply.Success(found))
}

// Create handles the creation of a new product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var dto service.CreateProductDto
	if !h.decode(w, r, &dto) {
		return
	}
	created, err := h.service.Create(r.Context(), dto)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, h.logger, http.StatusCreated, reply.Created(created))
}

// Update applies a partial update. The id comes from the path, never from the body.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	var patch service.ProductPatch
	if !h.decode(w, r, &patch) {
		return
	}
	updated, err := h.service.Update(r.Context(), id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, reply.Updated(updated))
}

// Remove soft-deletes a product.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, ok := web.ParseID(w, r, h.logger)
	if !ok {
		return
	}
	removed, err := h.service.Remove(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, reply.Deleted(removed))
}

// ValidateIDs checks that every given id belongs to an active product.
func (h *Handler) ValidateIDs(w http.ResponseWriter, r *http.Request) {
	var dto service.ValidateProductsDto
	if !h.decode(w, r, &dto) {
		return
	}
	products, err := h.service.ValidateIDs(r.Context(), dto.IDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	web.RespondJSON(w, h.logger, http.StatusOK, reply.Success(products))
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ReadyCheck reports whether the store is reachable.
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			web.RespondError(w, h.logger, http.StatusServiceUnavailable, "store is not reachable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// decode reads and validates the JSON body into dto. On failure a 400 has been written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dto any) bool {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		h.logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(dto); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			h.logger.WarnContext(r.Context(), "Validation errors occurred", "error", err)
			web.RespondError(w, h.logger, http.StatusBadRequest, service.ValidationMessage(err))
			return false
		}
		h.logger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		web.RespondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// respondError writes err using the catalog error contract.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	body := reply.FromError(err)
	if perrors.KindOf(err) == perrors.Internal {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
	}
	web.RespondError(w, h.logger, body.Status, body.Message)
}
