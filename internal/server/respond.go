package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/engine"
	"github.com/crimson-sun/persona/internal/model"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	s.respondJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message, Details: details}})
}

// respondFailure maps a core error to a status code.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var (
		upstream *model.UpstreamRetrievalFailure
		stage    *engine.StageError
	)
	switch {
	case errors.As(err, &upstream):
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "post store unavailable", nil)
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "TIMEOUT", "request timed out", nil)
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	case errors.As(err, &stage):
		s.log.Error("prediction failed", "stage", stage.Stage, "error", stage.Err)
		s.respondError(w, http.StatusInternalServerError, "PREDICTION_ERROR", "prediction failed", map[string]any{"stage": string(stage.Stage)})
	default:
		s.log.Error("request failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}
