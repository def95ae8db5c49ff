package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RhizaCore/internal/admin"
	"RhizaCore/internal/backend"
	"RhizaCore/internal/metrics"
	"RhizaCore/internal/notifier"
	"RhizaCore/internal/session"
	"RhizaCore/internal/ton"
)

// Caller identity headers set by the Mini-App.
const (
	HeaderUserID     = "X-User-ID"
	HeaderTelegramID = "X-Telegram-ID"
)

var errBackendDisabled = errors.New("backend is not configured")

// TONReader is the part of ton.Client the API exposes.
type TONReader interface {
	Balance(ctx context.Context, address string) (*ton.Account, error)
	Jettons(ctx context.Context, address string) ([]ton.JettonBalance, error)
}

// Notifier forwards wallet errors to the operator chat.
type Notifier interface {
	Notify(ctx context.Context, level notifier.Level, text string) error
}

// Options wires the server's dependencies. Procedures, TON and Notifier may be nil.
type Options struct {
	Sessions    *session.Manager
	Procedures  backend.Procedures
	Authorizer  *admin.Authorizer
	TON         TONReader
	Notifier    Notifier
	Clock       clockwork.Clock
	CORSOrigins []string
	Receiver    string
	TransferTTL time.Duration
	Logger      *slog.Logger
}

// Server is the HTTP API of rhizad.
type Server struct {
	router *chi.Mux
	opts   Options
	log    *slog.Logger
	srv    *http.Server
}

// NewServer builds the router and the underlying http.Server.
func NewServer(addr string, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TransferTTL == 0 {
		opts.TransferTTL = 5 * time.Minute
	}
	s := &Server{
		router: chi.NewRouter(),
		opts:   opts,
		log:    opts.Logger,
	}
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. http.ErrServerClosed is not an error.
func (s *Server) ListenAndServe() error {
	s.log.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)
	s.router.Use(metrics.Middleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", HeaderUserID, HeaderTelegramID},
		MaxAge:         300,
	}))

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": len(s.opts.Sessions.List())})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleLogin)
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
			r.Get("/{id}/earnings", s.handleEarnings)
			r.Post("/{id}/visibility", s.handleVisibility)
			r.Delete("/{id}", s.handleLogout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/status", s.handleAdminStatus)
			r.With(s.requireSuper).Post("/initialize", s.handleInitializeAdmin)
			r.With(s.requireAdmin).Get("/users", s.handleListAdmins)
			r.With(s.requireSuper).Post("/users", s.handleAddAdmin)
			r.With(s.requireSuper).Delete("/users/{userID}", s.handleRemoveAdmin)
		})

		r.Post("/activation", s.handleActivate)
		r.With(s.requireAdmin).Post("/activation/auto", s.handleAutoActivate)
		r.Get("/activation/{userID}", s.handleActivationStatus)

		r.Route("/staking/{userID}", func(r chi.Router) {
			r.Get("/summary", s.handleStakingSummary)
			r.Get("/locks", s.handleStakingLocks)
			r.Get("/can-unstake", s.handleCanUnstake)
			r.With(s.requireSelf).Post("/stake", s.handleStake)
			r.With(s.requireSelf).Post("/unstake", s.handleUnstake)
		})

		r.Route("/ton", func(r chi.Router) {
			r.Get("/{address}/balance", s.handleTONBalance)
			r.Get("/{address}/jettons", s.handleJettons)
			r.Post("/transfer", s.handleTransfer)
			r.Post("/wallet-error", s.handleWalletError)
		})
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// pathInt64 parses a positive integer URL parameter.
func pathInt64(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return v, nil
}

func queryInt64(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}
