package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mediaDownloader/api/auth"
	"mediaDownloader/api/dto"
	"mediaDownloader/api/middleware"
	"mediaDownloader/api/models"
	"mediaDownloader/api/repository"
	"mediaDownloader/api/service"
	"mediaDownloader/api/validation"
)

const maxBodyBytes = 1 << 20

type DownloadService interface {
	Submit(ctx context.Context, userID int64, req *dto.SubmitDownloadsRequest) ([]string, error)
	List(ctx context.Context, userID int64) ([]*models.Job, error)
	ListAll(ctx context.Context) ([]*models.Job, error)
	Get(ctx context.Context, p *auth.Principal, id string) (*models.Job, error)
	Status(ctx context.Context, p *auth.Principal, id string) (*dto.StatusResponse, error)
	Cancel(ctx context.Context, userID int64, id string) (*dto.CancelResponse, error)
}

type UserService interface {
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.LoginResponse, error)
	Create(ctx context.Context, req *dto.CreateUserRequest) (*models.User, error)
	Get(ctx context.Context, id int64) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Delete(ctx context.Context, callerID, id int64) error
}

// ActiveJobs reports the execution units currently running.
type ActiveJobs interface {
	ActiveIDs() []string
}

type Handler struct {
	downloads DownloadService
	users     UserService
	active    ActiveJobs
	logger    *zap.Logger
}

func NewHandler(downloads DownloadService, users UserService, active ActiveJobs, logger *zap.Logger) *Handler {
	return &Handler{
		downloads: downloads,
		users:     users,
		active:    active,
		logger:    logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, dto.HealthResponse{
		Status:     "ok",
		ActiveJobs: len(h.active.ActiveIDs()),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// handleError maps service errors to HTTP responses.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		h.respondError(w, r, http.StatusBadRequest, verr.Error(), nil)
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, r, http.StatusNotFound, "Download not found", nil)
	case errors.Is(err, service.ErrConflict):
		h.respondError(w, r, http.StatusBadRequest, "Download already finished or cancelled", nil)
	case errors.Is(err, service.ErrSelfDelete):
		h.respondError(w, r, http.StatusBadRequest, "Cannot delete yourself", nil)
	case errors.Is(err, repository.ErrUserNotFound):
		h.respondError(w, r, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, repository.ErrUsernameTaken):
		h.respondError(w, r, http.StatusConflict, "Username already exists", nil)
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.respondError(w, r, http.StatusUnauthorized, "Invalid credentials", nil)
	default:
		h.respondError(w, r, http.StatusInternalServerError, "Internal server error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	traceID := middleware.GetTraceID(r.Context())
	if err != nil {
		log := h.logger.Warn
		if status >= http.StatusInternalServerError {
			log = h.logger.Error
		}
		log(message,
			zap.String("trace_id", traceID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}

	h.respondJSON(w, status, dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func principal(r *http.Request) *auth.Principal {
	p, _ := middleware.GetPrincipal(r.Context())
	return p
}
