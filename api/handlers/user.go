package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mediaDownloader/api/dto"
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.users.Login(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, users)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.Create(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, user)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid user id", nil)
		return
	}

	if err := h.users.Delete(r.Context(), principal(r).UserID, id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "User deleted"})
}
