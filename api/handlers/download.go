package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mediaDownloader/api/dto"
	"mediaDownloader/api/middleware"
)

func (h *Handler) SubmitDownloads(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitDownloadsRequest
	if !h.decode(w, r, &req) {
		return
	}

	p := principal(r)
	ids, err := h.downloads.Submit(r.Context(), p.UserID, &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.Info("Downloads submitted",
		zap.String("trace_id", middleware.GetTraceID(r.Context())),
		zap.Int64("user_id", p.UserID),
		zap.Strings("download_ids", ids),
	)

	h.respondJSON(w, http.StatusOK, dto.SubmitDownloadsResponse{DownloadIDs: ids})
}

func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.downloads.List(r.Context(), principal(r).UserID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, jobs)
}

func (h *Handler) ListAllDownloads(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.downloads.ListAll(r.Context())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, jobs)
}

func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	job, err := h.downloads.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handler) DownloadStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.downloads.Status(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, status)
}

func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	resp, err := h.downloads.Cancel(r.Context(), principal(r).UserID, chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}
