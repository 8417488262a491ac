package user

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mentorship/common/httputil"
	"mentorship/internal/apperror"
	"mentorship/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublicRoutes mounts sign-up. It must sit outside the identity middleware
// since a new user has no identity yet.
func (h *Handler) RegisterPublicRoutes(router chi.Router) {
	router.Post("/users", h.CreateUser)
}

// RegisterRoutes mounts the routes that act on behalf of a known caller.
func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/users/me", h.Me)
	router.Post("/users/me/skills", h.AttachSkills)
	router.Get("/users/{id}", h.GetUser)
}

type SkillsRequest struct {
	Skills []string `json:"skills"`
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var u User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	u.ID = uuid.Nil

	if err := h.service.CreateUser(r.Context(), &u); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "user created", "user_id", u.ID, "role", u.Role)
	httputil.RespondWithJSON(w, http.StatusCreated, u)
}

// Me returns the caller's profile with skills, owned projects and requests.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, profile)
}

func (h *Handler) AttachSkills(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SkillsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}

	skills, err := h.service.AttachSkills(r.Context(), id, req.Skills)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, skills)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid user ID")
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, u)
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperror.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.RespondWithFieldErrors(w, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, apperror.ErrNotFound):
		httputil.RespondWithError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
