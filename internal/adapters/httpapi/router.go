package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/ports"
)

type fileStarter interface {
	Start(ctx context.Context, sub app.Submission) (string, error)
}

type queueViewer interface {
	Snapshot() app.AdmissionSnapshot
}

type backupViewer interface {
	Snapshot() []app.BackupTask
}

// Deps : tout est optionnel, les routes correspondantes ne sont montées que
// si la dépendance est fournie.
type Deps struct {
	Pipeline fileStarter
	Runs     *app.RunService
	Queue    queueViewer
	Backups  backupViewer
	Bus      ports.EventBus
	Metrics  http.Handler
}

type Server struct {
	logger zerolog.Logger
	deps   Deps
}

func NewServer(logger zerolog.Logger, deps Deps) *Server {
	return &Server{logger: logger, deps: deps}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("request_id", "Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.UserAgentHandler("user_agent"))
	r.Use(hlog.AccessHandler(accessLogFn))

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Flux SSE : hors du timeout des requêtes courtes.
		if s.deps.Bus != nil {
			r.Get("/events", s.handleEvents)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultRequestTimeout))

			r.Get("/health", s.handleHealth)
			r.Get("/version", s.handleVersion)
			r.Get("/openapi.json", s.handleOpenAPI)

			if s.deps.Pipeline != nil {
				NewFilesHandler(s.deps.Pipeline).Routes(r)
			}
			if s.deps.Runs != nil {
				NewRunsHandler(s.deps.Runs).Routes(r)
			}
			if s.deps.Queue != nil {
				r.Get("/queue", s.handleQueue)
			}
			if s.deps.Backups != nil {
				r.Get("/backups", s.handleBackups)
			}
		})
	})

	return r
}
