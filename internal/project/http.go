package project

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mentorship/common/httputil"
	"mentorship/internal/apperror"
	"mentorship/internal/membership"
	"mentorship/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	msgProjectDeleted   = "Project has been deleted successfully!"
	msgRequested        = "You have requested the project. Wait while the teacher contact to you"
	msgRequestCanceled  = "You have canceled request to the project"
	msgUserAccepted     = "You have accepted user to the project"
	msgRequestDeleted   = "User request to project has been deleted"
	msgProjectCompleted = "Project has been successfully moved to done"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the project routes. The router must run middleware.Identity.
func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Route("/projects", func(r chi.Router) {
		r.Post("/", h.CreateProject)
		r.Get("/", h.ListProjects)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProject)
			r.Put("/", h.UpdateProject)
			r.Delete("/", h.RemoveProject)
			r.Post("/request", h.Request)
			r.Delete("/request", h.CancelRequest)
			r.Post("/participants/{userID}/accept", h.AcceptUser)
			r.Delete("/participants/{userID}", h.RemoveRequest)
			r.Post("/complete", h.Complete)
		})
	})
}

type CompleteResponse struct {
	Message string                       `json:"message"`
	Report  *membership.CompletionReport `json:"report"`
}

func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	var intent CreateProjectIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}
	intent.OwnerID = callerID

	h.logger.InfoContext(r.Context(), "creating project", "title", intent.Title, "owner_id", callerID)
	project, err := h.service.CreateProject(r.Context(), intent)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusCreated, project)
}

// ListProjects accepts optional ownerId and status query parameters.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter

	if raw := r.URL.Query().Get("ownerId"); raw != "" {
		ownerID, err := uuid.Parse(raw)
		if err != nil {
			httputil.RespondWithError(w, http.StatusBadRequest, "invalid owner ID")
			return
		}
		filter.OwnerID = &ownerID
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := Status(raw)
		switch status {
		case StatusBacklog, StatusInProgress, StatusDone:
			filter.Status = &status
		default:
			httputil.RespondWithError(w, http.StatusBadRequest, "invalid status")
			return
		}
	}

	projects, err := h.service.ListProjects(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, projects)
}

func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	project, err := h.service.GetProject(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, project)
}

func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var intent UpdateProjectIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}

	h.logger.InfoContext(r.Context(), "updating project", "project_id", id)
	project, err := h.service.UpdateProject(r.Context(), id, intent)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, project)
}

func (h *Handler) RemoveProject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	h.logger.InfoContext(r.Context(), "removing project", "project_id", id)
	if err := h.service.RemoveProject(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithMessage(w, http.StatusOK, msgProjectDeleted)
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	h.callerMembership(w, r, h.service.Request, http.StatusCreated, msgRequested)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.callerMembership(w, r, h.service.CancelRequest, http.StatusOK, msgRequestCanceled)
}

func (h *Handler) AcceptUser(w http.ResponseWriter, r *http.Request) {
	h.participantMembership(w, r, h.service.AcceptUser, msgUserAccepted)
}

func (h *Handler) RemoveRequest(w http.ResponseWriter, r *http.Request) {
	h.participantMembership(w, r, h.service.RemoveRequest, msgRequestDeleted)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var intent CompleteProjectIntent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid request")
		return
	}

	h.logger.InfoContext(r.Context(), "completing project", "project_id", id, "reviews", len(intent.Reviews))
	report, err := h.service.Complete(r.Context(), id, intent)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, CompleteResponse{Message: msgProjectCompleted, Report: report})
}

type membershipOp func(ctx context.Context, id, userID uuid.UUID) error

// callerMembership runs op for the calling user on the project in the path.
func (h *Handler) callerMembership(w http.ResponseWriter, r *http.Request, op membershipOp, code int, msg string) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	callerID, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := op(r.Context(), id, callerID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithMessage(w, code, msg)
}

// participantMembership runs op for the user named in the path.
func (h *Handler) participantMembership(w http.ResponseWriter, r *http.Request, op membershipOp, msg string) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := op(r.Context(), id, userID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithMessage(w, http.StatusOK, msg)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		h.logger.WarnContext(r.Context(), "caller id not found in context")
		httputil.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return uuid.Nil, false
	}
	return id, true
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var verr *apperror.ValidationError
	switch {
	case errors.As(err, &verr):
		h.logger.InfoContext(ctx, "invalid input", "error", err)
		httputil.RespondWithFieldErrors(w, http.StatusBadRequest, "validation failed", verr.Fields)
	case errors.Is(err, apperror.ErrNotFound):
		h.logger.InfoContext(ctx, "resource not found", "error", err)
		httputil.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperror.ErrDuplicateMembership),
		errors.Is(err, apperror.ErrProjectAlreadyCompleted):
		h.logger.InfoContext(ctx, "conflict", "error", err)
		httputil.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(ctx, "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}
