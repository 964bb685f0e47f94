package http

import (
	"context"
	"net/http"
	"time"

	httpmw "github.com/cwrk-planet/karaoke-service/internal/transport/http/middleware"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Handler  *Handler
	WS       http.HandlerFunc
	Verifier httpmw.TokenVerifier
	Store    Pinger

	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	h := d.Handler
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}

	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httpmw.WithRequestLoggerCtx)
	r.Use(httpmw.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", httpmw.HeaderUserID, httpmw.HeaderUserName},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Store != nil {
			if err := d.Store.Ping(r.Context()); err != nil {
				writeError(w, r, "Healthz", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// WS без таймаута: соединение живёт долго
	if d.WS != nil {
		r.With(httpmw.Auth(d.Verifier)).Get("/ws/rooms/{id}", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.Auth(d.Verifier))
		pr.Use(middlewareChi.Timeout(timeout))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/", h.CreateRoom)
			rm.Get("/code/{code}", h.GetRoomByCode)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Post("/end", h.EndRoom)
				rr.Post("/join", h.JoinRoom)
				rr.Post("/leave", h.LeaveRoom)
				rr.Get("/status", h.GetStatus)

				rr.Get("/participants", h.GetParticipants)
				rr.Get("/participants/pending", h.GetPending)
				rr.Route("/participants/{userID}", func(pp chi.Router) {
					pp.Post("/approve", h.admission("Approve", h.ctl.Approve))
					pp.Post("/deny", h.admission("Deny", h.ctl.Deny))
					pp.Post("/kick", h.admission("Kick", h.ctl.Kick))
					pp.Post("/reapprove", h.admission("Reapprove", h.ctl.Reapprove))
				})

				rr.Get("/queue", h.GetQueue)
				rr.Post("/queue", h.SubmitSong)
				rr.Get("/history", h.GetHistory)
				rr.Post("/queue/advance", h.Advance)
				rr.Post("/queue/ensure", h.EnsurePlaying)
				rr.Post("/queue/{itemID}/skip", h.SkipSong)
				rr.Post("/queue/{itemID}/error", h.PlaybackError)
			})
		})
	})

	return r
}
