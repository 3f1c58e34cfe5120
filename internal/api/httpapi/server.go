// Package httpapi provides the JSON HTTP API for the regional music cache.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/osa030/tunemap/internal/app/geocache"
	"github.com/osa030/tunemap/internal/app/notification"
	"github.com/osa030/tunemap/internal/app/regional"
	"github.com/osa030/tunemap/internal/app/token"
	"github.com/osa030/tunemap/internal/domain/region"
	"github.com/osa030/tunemap/internal/infra/logger"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"

	defaultHeartbeat = 15 * time.Second
	maxBodyBytes     = 64 << 10
)

// Regions serves and refreshes regional entries.
type Regions interface {
	Refresh(ctx context.Context, codes []string) (map[string]regional.Entry, error)
	RefreshViewport(ctx context.Context, v region.Viewport) (map[string]regional.Entry, error)
	Cached(codes []string) map[string]regional.Entry
	Table() region.Table
}

// CacheAdmin is the cache surface used by the status and admin endpoints.
type CacheAdmin interface {
	Entries() []regional.Entry
	IsCached(code string) bool
	Remove(code string) error
	Clear() error
	Stats() geocache.Stats
	TTL() time.Duration
	MaxSize() int
}

// TokenStatus reports the current access token state.
type TokenStatus interface {
	State() token.State
}

// EventSource delivers cache change events to subscribers.
type EventSource interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(id string)
	SubscriberCount() int
}

// Services bundles what the API serves.
type Services struct {
	Regions  Regions
	Cache    CacheAdmin
	Tokens   TokenStatus
	Events   EventSource
	Throttle regional.Throttle
}

// Option configures a Server.
type Option func(*Server)

// WithHeartbeat sets the interval of keep-alive comments on event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server implements the HTTP API.
type Server struct {
	svc        Services
	adminToken string
	heartbeat  time.Duration
	log        zerolog.Logger
}

// NewServer creates a new Server. An empty adminToken rejects every admin call.
func NewServer(svc Services, adminToken string, opts ...Option) *Server {
	s := &Server{
		svc:        svc,
		adminToken: adminToken,
		heartbeat:  defaultHeartbeat,
		log:        logger.Component("httpapi"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler, wrapped with access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/regions", s.handleCached)
	mux.HandleFunc("POST /v1/regions/refresh", s.handleRefresh)
	mux.HandleFunc("GET /v1/viewport/offer", s.handleOffer)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.Handle("DELETE /v1/cache", s.requireAdmin(http.HandlerFunc(s.handleClear)))
	mux.Handle("DELETE /v1/cache/{code}", s.requireAdmin(http.HandlerFunc(s.handleRemove)))

	return s.accessLog(mux)
}
