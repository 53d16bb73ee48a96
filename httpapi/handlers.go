package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	ratelimit "github.com/riftlabs/tier-ratelimiter"
)

// defaultOperationTimeout bounds each outbound call to the user store or
// counter store on the request path; it never extends the inbound
// request's own deadline, only tightens it.
const defaultOperationTimeout = 2 * time.Second

func withOperationTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultOperationTimeout)
}

type errorBody struct {
	Error string `json:"error"`
}

type checkResponse struct {
	StatusCode int    `json:"statusCode"`
	Status     string `json:"status"`
	RetryAfter string `json:"RetryAfter,omitempty"`
}

type statsResponse struct {
	ID                string `json:"id"`
	Tier              string `json:"tier"`
	Limit             int    `json:"limit"`
	WindowSeconds     int    `json:"windowSeconds"`
	CurrentCount      int64  `json:"currentCount"`
	SecondsUntilReset int64  `json:"secondsUntilReset"`
	OverrideActive    bool   `json:"overrideActive"`
}

type overridePatchBody struct {
	OverrideLimit         *int       `json:"overrideLimit"`
	OverrideWindowSeconds *int       `json:"overrideWindowSeconds"`
	OverrideExpiry        *time.Time `json:"overrideExpiry"`
}

type updateOverrideResponse struct {
	Success bool           `json:"success"`
	UserID  string         `json:"userId"`
	Updated overrideUpdate `json:"updated"`
}

type overrideUpdate struct {
	OverrideLimit         *int       `json:"overrideLimit"`
	OverrideWindowSeconds *int       `json:"overrideWindowSeconds"`
	OverrideExpiry        *time.Time `json:"overrideExpiry"`
}

// handleCheck implements GET /api/check.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readCtx, cancel := withOperationTimeout(r.Context())
	user, err := s.Users.FindByID(readCtx, id)
	cancel()
	if err != nil {
		s.writeDomainError(w, id.String(), err)
		return
	}

	checkCtx, cancel := withOperationTimeout(r.Context())
	decision, err := s.Engine.Check(checkCtx, user)
	cancel()
	if err != nil {
		s.writeDomainError(w, id.String(), err)
		return
	}

	if decision.Kind == ratelimit.Allowed {
		writeJSON(w, http.StatusOK, checkResponse{StatusCode: http.StatusOK, Status: "ALLOWED"})
		return
	}

	retryAfter := strconv.Itoa(decision.RetryAfterSeconds)
	w.Header().Set("Retry-After", retryAfter)
	writeJSON(w, http.StatusTooManyRequests, checkResponse{
		StatusCode: http.StatusTooManyRequests,
		Status:     "NOT ALLOWED",
		RetryAfter: retryAfter,
	})
}

// handleStats implements GET /rate-limit-stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readCtx, cancel := withOperationTimeout(r.Context())
	user, err := s.Users.FindByID(readCtx, id)
	cancel()
	if err != nil {
		s.writeDomainError(w, id.String(), err)
		return
	}

	statsCtx, cancel := withOperationTimeout(r.Context())
	stats, err := s.Stats.Read(statsCtx, user)
	cancel()
	if err != nil {
		s.writeDomainError(w, id.String(), err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		ID:                stats.UserID.String(),
		Tier:              stats.Tier,
		Limit:             stats.Limit,
		WindowSeconds:     stats.WindowSeconds,
		CurrentCount:      stats.CurrentCount,
		SecondsUntilReset: stats.SecondsUntilReset,
		OverrideActive:    stats.OverrideActive,
	})
}

// handleUpdateOverride implements PUT /users/{userId}/rate-limits.
func (s *Server) handleUpdateOverride(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r.PathValue("userId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body overridePatchBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if body.OverrideLimit != nil && *body.OverrideLimit <= 0 {
		writeError(w, http.StatusBadRequest, "overrideLimit must be positive")
		return
	}
	if body.OverrideWindowSeconds != nil && *body.OverrideWindowSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "overrideWindowSeconds must be positive")
		return
	}
	if body.OverrideExpiry != nil && !body.OverrideExpiry.After(time.Now()) {
		writeError(w, http.StatusBadRequest, "overrideExpiry must be in the future")
		return
	}

	patch := ratelimit.OverridePatch{
		Limit:         body.OverrideLimit,
		WindowSeconds: body.OverrideWindowSeconds,
		Expiry:        body.OverrideExpiry,
	}

	writeCtx, cancel := withOperationTimeout(r.Context())
	updated, err := s.Writer.UpdateOverride(writeCtx, id, patch)
	cancel()
	if err != nil {
		s.writeDomainError(w, id.String(), err)
		return
	}

	resp := updateOverrideResponse{
		Success: true,
		UserID:  id.String(),
		Updated: overrideUpdate{
			OverrideLimit:         updated.Limit,
			OverrideWindowSeconds: updated.WindowSeconds,
			OverrideExpiry:        updated.Expiry,
		},
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealthz implements GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parseUserID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.UUID{}, &ratelimit.BadRequestError{Msg: "userId is required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, &ratelimit.BadRequestError{Msg: "userId must be a valid UUID"}
	}
	return id, nil
}

// writeDomainError maps the five error kinds onto their HTTP status and
// logs the cause with the user id for operators; external bodies carry
// only the classified message.
func (s *Server) writeDomainError(w http.ResponseWriter, userID string, err error) {
	var notFound *ratelimit.NotFoundError
	var userStoreErr *ratelimit.UserStoreError
	var storeErr *ratelimit.StoreError
	var cfgErr *ratelimit.ConfigError
	var badReq *ratelimit.BadRequestError

	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &userStoreErr):
		log.Printf("user store error: user=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Database error")
	case errors.As(err, &storeErr):
		log.Printf("counter store error: user=%s key=%s err=%v", userID, storeErr.Key, err)
		writeError(w, http.StatusInternalServerError, "Cache error")
	case errors.As(err, &cfgErr):
		log.Printf("config error: user=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "Config error")
	case errors.As(err, &badReq):
		writeError(w, http.StatusBadRequest, badReq.Error())
	default:
		log.Printf("unclassified error: user=%s err=%v", userID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response body: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
