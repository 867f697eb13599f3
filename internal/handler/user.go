package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/user-directory/internal/model"
	"github.com/sakif/user-directory/internal/query"
	"github.com/sakif/user-directory/internal/service"
	"github.com/sakif/user-directory/internal/validation"
)

// maxBodyBytes caps request bodies. A user record is a few hundred bytes.
const maxBodyBytes = 1 << 20

// DataResponse wraps a single record or an aggregation result.
type DataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ListResponse is one page of the user listing.
type ListResponse struct {
	Success bool `json:"success"`
	service.Page
}

// MessageResponse acknowledges an operation that returns no record.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UserHandler exposes the user service over HTTP.
//
// Handlers stay thin: decode the request, call the service, encode the
// result. Validation and storage rules live in the service; status codes
// live in writeError.
type UserHandler struct {
	service   *service.UserService
	validator *validation.Validator
	logger    *slog.Logger
}

// NewUserHandler creates a new UserHandler. v decodes request bodies; pass the
// same Validator the service uses.
func NewUserHandler(svc *service.UserService, v *validation.Validator, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, validator: v, logger: logger}
}

// Routes returns the user endpoints, to be mounted under /api/users.
// chi matches the static /aggregate segment before the {id} parameter.
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleCreate)
	r.Get("/", h.HandleList)
	r.Get("/aggregate", h.HandleAggregate)
	r.Get("/{id}", h.HandleGetByID)
	r.Put("/{id}", h.HandleUpdate)
	r.Delete("/{id}", h.HandleDelete)
	return r
}

// HandleCreate creates a user.
//
// HTTP: POST /api/users
// BODY: {"username":"johndoe","email":"johndoe@example.com","age":25,"city":"New York"}
//
// Responds 201 with the stored record (not wrapped in the envelope).
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := h.validator.DecodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	user, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleList returns one page of users.
//
// HTTP: GET /api/users?page=1&size=10&sortBy=createdAt&order=desc
//
// Bad or missing parameters fall back to their defaults.
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.List(r.Context(), query.ParamsFromValues(r.URL.Query()))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Success: true, Page: *page})
}

// HandleGetByID returns a single user.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: user})
}

// HandleUpdate applies a partial update.
//
// HTTP: PUT /api/users/{id}
// BODY: any non-empty subset of the creation fields
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateUserRequest
	if err := h.validator.DecodeBody(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	user, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: user})
}

// HandleDelete removes a user.
//
// HTTP: DELETE /api/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "User deleted successfully"})
}

// HandleAggregate groups users by city and/or age.
//
// HTTP: GET /api/users/aggregate?city=true&age=false
//
// When both flags are true the groupings are chained, each stage consuming
// the previous stage's rows.
func (h *UserHandler) HandleAggregate(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Aggregate(r.Context(), r.URL.Query())
	if err != nil {
		writeError(h.logger, w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Success: true, Data: rows})
}
