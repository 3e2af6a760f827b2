package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/clicklab/analytics/internal/models"
)

// EventBatch is the submission envelope: an ordered sequence of events
// bounded at 1000 per call.
type EventBatch struct {
	Events []models.RawEvent `json:"events" validate:"required,min=1,max=1000,dive"`
}

func (s *Server) handleCollectEvents(w http.ResponseWriter, r *http.Request) {
	var batch EventBatch
	if err := decodeJSON(r, &batch); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	if err := s.validate.Struct(batch); err != nil {
		writeProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", fieldErrors(err))
		return
	}

	// Accept-then-process: the acknowledgment precedes the write; write
	// failures surface through logs and counters only.
	if !s.dispatcher.Enqueue(batch.Events) {
		writeProblem(w, http.StatusServiceUnavailable, "overloaded", "ingest queue is full, please retry", nil)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"events_count": len(batch.Events),
		"timestamp":    time.Now().UTC(),
	})
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var ident models.UserIdentification
	if err := decodeJSON(r, &ident); err != nil {
		writeProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	if err := s.validate.Struct(ident); err != nil {
		writeProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", fieldErrors(err))
		return
	}
	if err := s.resolver.Identify(r.Context(), ident); err != nil {
		writeProblem(w, http.StatusInternalServerError, "identify failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"user_id":      ident.UserID,
		"anonymous_id": ident.AnonymousID,
		"timestamp":    time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "unhealthy", "datastore not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.Snapshot(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "stats query failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDataQuality(w http.ResponseWriter, r *http.Request) {
	report, err := s.stats.Quality(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "quality query failed", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// fieldErrors flattens validator output into a field -> messages map.
func fieldErrors(err error) map[string][]string {
	out := map[string][]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["_"] = []string{err.Error()}
		return out
	}
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "required"
		case "max":
			msg = fmt.Sprintf("max length %s", fe.Param())
		case "min":
			msg = fmt.Sprintf("min %s", fe.Param())
		case "gte":
			msg = fmt.Sprintf("must be >= %s", fe.Param())
		default:
			msg = fe.Tag()
		}
		out[field] = append(out[field], msg)
	}
	return out
}
