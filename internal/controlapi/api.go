// Package controlapi serves the control plane REST API: flag CRUD backed by
// the flag store, ad hoc evaluation, and a change signal to the syncer after
// every write.
package controlapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/skylab/internal/cache"
	"github.com/rafaeljc/skylab/internal/evaluation"
	"github.com/rafaeljc/skylab/internal/store"
	"github.com/rafaeljc/skylab/internal/validation"
)

// Retry policy for the change signal.
const (
	notifyTimeout    = 20 * time.Second
	notifyMaxRetries = 3
	notifyBaseDelay  = 100 * time.Millisecond
)

// API is the control plane handler set. Mount Router on an http.Server.
type API struct {
	Router *chi.Mux

	logger *slog.Logger
	flags  store.FlagRepository
	cache  cache.Service // change signals for the syncer
	engine *evaluation.Engine

	keyHash         []byte // lower case hex SHA-256 of the API key; nil disables auth
	notifyBaseDelay time.Duration
}

// Option customises an API at construction.
type Option func(*apiOptions)

type apiOptions struct {
	keyHash     string
	noAuth      bool
	notifyDelay time.Duration
}

// WithAPIKeyHash requires callers to present the key whose SHA-256 hex
// digest is hash. Case is ignored.
func WithAPIKeyHash(hash string) Option {
	return func(o *apiOptions) { o.keyHash = hash }
}

// WithoutAuth serves /api/v1 unauthenticated. Development only.
func WithoutAuth() Option {
	return func(o *apiOptions) { o.noAuth = true }
}

// WithNotifyBackoff sets the first retry delay of the change signal.
func WithNotifyBackoff(d time.Duration) Option {
	return func(o *apiOptions) { o.notifyDelay = d }
}

// NewAPI builds the router. Unless WithoutAuth is given, an API key hash is
// mandatory. It panics on missing dependencies, which are wiring bugs.
func NewAPI(logger *slog.Logger, flagRepo store.FlagRepository, cacheSvc cache.Service, engine *evaluation.Engine, opts ...Option) *API {
	o := apiOptions{notifyDelay: notifyBaseDelay}
	for _, opt := range opts {
		opt(&o)
	}

	if flagRepo == nil {
		panic("controlapi: flag repository cannot be nil")
	}
	if cacheSvc == nil {
		panic("controlapi: cache service cannot be nil")
	}
	validation.AssertNotNil(engine, "controlapi", "evaluation engine")
	if !o.noAuth {
		validation.AssertNotEmpty(o.keyHash, "controlapi", "apiKeyHash")
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		Router:          chi.NewRouter(),
		logger:          logger,
		flags:           flagRepo,
		cache:           cacheSvc,
		engine:          engine,
		notifyBaseDelay: o.notifyDelay,
	}
	if !o.noAuth {
		a.keyHash = []byte(strings.ToLower(o.keyHash))
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.Router
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(a.logger),
		Metrics,
		middleware.Recoverer,
		render.SetContentType(render.ContentTypeJSON),
	)

	// Process liveness only; dependencies are probed on the admin port.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.authenticateAPIKey)

		r.Post("/evaluate", a.handleEvaluate)
		r.Route("/flags", func(r chi.Router) {
			r.Get("/", a.handleListFlags)
			r.Post("/", a.handleCreateFlag)
			r.Get("/{key}", a.handleGetFlag)
			r.Patch("/{key}", a.handleUpdateFlag)
			r.Delete("/{key}", a.handleDeleteFlag)
		})
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, resp *ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
