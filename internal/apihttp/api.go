// Package apihttp serves the trip API. Every route runs the same pipeline:
// the category rate limit, then input sanitizing and validation, then the
// store. The category of each route is fixed here, not by the limiter.
package apihttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/tripdesk/internal/attachments"
	"github.com/keithlinneman/tripdesk/internal/httpmw"
	"github.com/keithlinneman/tripdesk/internal/log"
	"github.com/keithlinneman/tripdesk/internal/ratelimit"
	"github.com/keithlinneman/tripdesk/internal/travel"
)

const (
	defaultMaxJSONBytes   = 64 << 10
	defaultMaxUploadBytes = 10 << 20
	defaultSignedURLTTL   = 15 * time.Minute
)

// Metrics is the subset of the server metrics the handlers report to.
type Metrics interface {
	IncValidationFailure(route string)
	ObserveUpload(contentType string, size int)
}

type noopMetrics struct{}

func (noopMetrics) IncValidationFailure(string) {}
func (noopMetrics) ObserveUpload(string, int)   {}

type Options struct {
	Logger  log.Logger
	Limiter *ratelimit.Limiter
	Store   *travel.Store
	Storage attachments.Storage
	Metrics Metrics

	// MaxJSONBytes caps JSON request bodies, MaxUploadBytes caps one attachment.
	MaxJSONBytes   int64
	MaxUploadBytes int64
	SignedURLTTL   time.Duration

	// AdminToken gates /api/admin/*; empty disables the admin routes.
	AdminToken string
}

type API struct {
	logger     log.Logger
	limiter    *ratelimit.Limiter
	store      *travel.Store
	storage    attachments.Storage
	metrics    Metrics
	maxJSON    int64
	maxUpload  int64
	signedTTL  time.Duration
	adminToken string
}

func NewAPI(opts Options) *API {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.New()
	}
	if opts.Store == nil {
		opts.Store = travel.NewStore()
	}
	if opts.Storage == nil {
		opts.Storage = attachments.NewMemoryStorage()
	}
	if opts.Metrics == nil {
		opts.Metrics = noopMetrics{}
	}
	if opts.MaxJSONBytes <= 0 {
		opts.MaxJSONBytes = defaultMaxJSONBytes
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.SignedURLTTL <= 0 {
		opts.SignedURLTTL = defaultSignedURLTTL
	}
	return &API{
		logger:     opts.Logger,
		limiter:    opts.Limiter,
		store:      opts.Store,
		storage:    opts.Storage,
		metrics:    opts.Metrics,
		maxJSON:    opts.MaxJSONBytes,
		maxUpload:  opts.MaxUploadBytes,
		signedTTL:  opts.SignedURLTTL,
		adminToken: opts.AdminToken,
	}
}

// RegisterRoutes attaches the API routes, each behind its category limit.
func (api *API) RegisterRoutes(r chi.Router) {
	limit := func(c ratelimit.Category, name string) chi.Router {
		return r.With(api.limiter.Middleware(c), httpmw.Scope(name))
	}

	limit(ratelimit.Auth, "session").Get("/api/auth/session", api.handleSession)

	limit(ratelimit.Read, "list_trips").Get("/api/trips", api.handleListTrips)
	limit(ratelimit.Read, "get_trip").Get("/api/trips/{tripID}", api.handleGetTrip)
	limit(ratelimit.Read, "list_expenses").Get("/api/trips/{tripID}/expenses", api.handleListExpenses)
	limit(ratelimit.Read, "list_attachments").Get("/api/trips/{tripID}/attachments", api.handleListAttachments)
	limit(ratelimit.Read, "attachment_url").Get("/api/trips/{tripID}/attachments/{attachmentID}/url", api.handleAttachmentURL)

	limit(ratelimit.Write, "create_trip").Post("/api/trips", api.handleCreateTrip)
	limit(ratelimit.Write, "update_trip").Patch("/api/trips/{tripID}", api.handleUpdateTrip)
	limit(ratelimit.Write, "delete_trip").Delete("/api/trips/{tripID}", api.handleDeleteTrip)
	limit(ratelimit.Write, "add_expense").Post("/api/trips/{tripID}/expenses", api.handleAddExpense)
	limit(ratelimit.Write, "upload_attachment").Post("/api/trips/{tripID}/attachments", api.handleUploadAttachment)

	limit(ratelimit.Sensitive, "feedback").Post("/api/feedback", api.handleFeedback)
	limit(ratelimit.Sensitive, "delete_account").Delete("/api/account", api.handleDeleteAccount)
	limit(ratelimit.Sensitive, "admin_ratelimit").Get("/api/admin/ratelimit", api.handleAdminRateLimit)
}

// Handler returns a standalone router with only the API routes.
func (api *API) Handler() http.Handler {
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}
