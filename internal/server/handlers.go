package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/crimson-sun/persona/internal/model"
	"github.com/crimson-sun/persona/internal/output"
)

const maxBodyBytes = 4 << 20

// pingRequest is the legacy classification request. Clients send their
// post objects along, in whatever shape they store them; those are accepted
// but ignored and predictions always run over the posts held in the store
// for UserID.
type pingRequest struct {
	UserID string            `json:"user_id" validate:"required,max=256"`
	Posts  []json.RawMessage `json:"posts"`
}

type pingResponse struct {
	Message         string   `json:"message"`
	UserIDReceived  string   `json:"user_id_received"`
	PostsReceived   int      `json:"posts_received"`
	MBTIPredictions []string `json:"mbti_predictions"`
}

type predictRequest struct {
	Texts []string `json:"texts" validate:"required,min=1,max=256"`
}

type predictResponse struct {
	Predictions []model.Prediction `json:"predictions"`
}

type healthResponse struct {
	Status string `json:"status"`
	Labels int    `json:"labels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, healthResponse{Status: "ok", Labels: len(s.predictor.Labels())})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var req pingRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.users.ClassifyUserPosts(r.Context(), req.UserID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pingResponse{
		Message:         "pong",
		UserIDReceived:  req.UserID,
		PostsReceived:   res.PostCount,
		MBTIPredictions: nonNil(res.Predictions),
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if !s.decode(w, r, &req) {
		return
	}
	preds, err := s.predictor.PredictBatch(req.Texts)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, predictResponse{Predictions: preds})
}

func (s *Server) handleUserPredictions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	verbosity, err := output.ParseVerbosity(r.URL.Query().Get("verbosity"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	res, err := s.users.ClassifyUserPosts(r.Context(), userID)
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, output.FormatResult(res, verbosity))
}

// decode reads a JSON body into v and validates it, writing a 400 and
// returning false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body too large", nil)
			return false
		}
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "could not read request body", nil)
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if err := validateStruct(v); err != nil {
		var ve *validationError
		if errors.As(err, &ve) {
			s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", ve.Error(), map[string]any{"fields": ve.fields})
			return false
		}
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return false
	}
	return true
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
