package httpapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/buildinfo"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/httpjson"
)

const defaultRequestTimeout = 30 * time.Second

type healthResponse struct {
	Status string `json:"status"`
	// Busy indique qu'un encodage est en cours.
	Busy    bool `json:"busy"`
	Pending int  `json:"pending"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.deps.Queue != nil {
		snap := s.deps.Queue.Snapshot()
		resp.Busy = snap.Busy
		resp.Pending = len(snap.Pending)
	}
	httpjson.Write(w, http.StatusOK, resp)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, buildinfo.Current())
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, s.deps.Queue.Snapshot())
}

func (s *Server) handleBackups(w http.ResponseWriter, r *http.Request) {
	httpjson.Write(w, http.StatusOK, s.deps.Backups.Snapshot())
}

func accessLogFn(r *http.Request, status, size int, duration time.Duration) {
	logger := hlog.FromRequest(r)
	logger.Info().
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg("http")
}
