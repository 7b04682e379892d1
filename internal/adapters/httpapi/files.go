package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/httpjson"
)

// FilesHandler est le point d'entrée des fichiers à traiter.
type FilesHandler struct {
	pipeline fileStarter
}

func NewFilesHandler(pipeline fileStarter) *FilesHandler {
	return &FilesHandler{pipeline: pipeline}
}

func (h *FilesHandler) Routes(r chi.Router) {
	r.Post("/files", h.submit)
}

type submitResponse struct {
	RunID string `json:"runId"`
}

func (h *FilesHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req app.Submission
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid json")
		return
	}

	id, err := h.pipeline.Start(r.Context(), req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidSubmission) {
			httpjson.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusAccepted, submitResponse{RunID: id})
}
