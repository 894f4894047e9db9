package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/chat-relay/internal/metrics"
	httpmw "github.com/cwrk-planet/chat-relay/internal/transport/http/middleware"
	"github.com/cwrk-planet/chat-relay/pkg/httputil"
)

type Deps struct {
	Accounts       AccountService
	Verifier       httpmw.ClaimsVerifier
	History        HistoryReader
	Rooms          RoomLister
	Presence       PresenceLister
	WS             http.HandlerFunc
	HistoryLimit   int
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareLogging)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint: аутентификация внутри, до upgrade; без Timeout (долгоживущее соединение)
	r.Get("/ws", d.WS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	ah := &AuthHandlers{Accounts: d.Accounts}
	rh := &RoomHandlers{History: d.History, Rooms: d.Rooms, Presence: d.Presence, DefaultLimit: d.HistoryLimit}

	r.Group(func(g chi.Router) {
		g.Use(middleware.Timeout(d.RequestTimeout))

		g.Post("/auth/register", ah.Register)
		g.Post("/auth/login", ah.Login)

		// Все маршруты ниже требуют access_token
		g.Group(func(pr chi.Router) {
			pr.Use(httpmw.AuthMiddleware(d.Verifier))

			pr.Post("/auth/logout", ah.Logout)
			pr.Get("/auth/session", ah.Session)

			pr.Get("/rooms", rh.ListRooms)
			pr.Get("/rooms/{id}/messages", rh.Messages)
			pr.Get("/presence", rh.ListPresence)
		})
	})

	return r
}
