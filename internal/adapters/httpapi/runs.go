package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/httpjson"
)

type RunsHandler struct {
	runs *app.RunService
}

func NewRunsHandler(runs *app.RunService) *RunsHandler {
	return &RunsHandler{runs: runs}
}

func (h *RunsHandler) Routes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
}

func (h *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, runs)
}

func (h *RunsHandler) get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			httpjson.WriteError(w, http.StatusNotFound, "not found")
			return
		}
		httpjson.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, run)
}
