package httpapi

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	ratelimit "github.com/riftlabs/tier-ratelimiter"
)

// UserReader is the narrow read capability the HTTP surface needs from the
// user record store.
type UserReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (ratelimit.UserRecord, error)
}

// OverrideWriter is the narrow write capability the HTTP surface needs from
// the user record store; it is the only one of the three handlers allowed
// to mutate the user store.
type OverrideWriter interface {
	UpdateOverride(ctx context.Context, id uuid.UUID, patch ratelimit.OverridePatch) (ratelimit.OverrideFields, error)
}

// Server wires the decision engine, stats projector, and user store onto
// the HTTP surface.
type Server struct {
	Users    UserReader
	Writer   OverrideWriter
	Engine   ratelimit.Engine
	Stats    ratelimit.StatsProjector
	ready    atomic.Bool
}

// NewServer constructs a Server. Call SetReady(true) once both store
// clients have passed their startup readiness probe; until then /healthz
// reports 503.
func NewServer(users UserReader, writer OverrideWriter, engine ratelimit.Engine, stats ratelimit.StatsProjector) *Server {
	return &Server{Users: users, Writer: writer, Engine: engine, Stats: stats}
}

// SetReady flips the readiness flag /healthz reports.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Mux builds the route table. Routing uses the standard library's Go 1.22
// method+pattern ServeMux syntax; no third-party router is introduced (see
// DESIGN.md).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/check", s.handleCheck)
	mux.HandleFunc("GET /rate-limit-stats", s.handleStats)
	mux.HandleFunc("PUT /users/{userId}/rate-limits", s.handleUpdateOverride)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	return mux
}
