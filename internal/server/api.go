package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/signflow/internal/observe"
	"github.com/MrWong99/signflow/internal/rephrase"
	"github.com/MrWong99/signflow/internal/signs"
	"github.com/MrWong99/signflow/internal/vocab"
)

const (
	defaultSuggestions = 5
	maxSuggestions     = 25
)

type errorResponse struct {
	Error string `json:"error"`
}

// handleRephrase serves the assisted rephrase contract:
// 400 for missing fields, 503 without a configured backend, 502 when the
// backend fails.
func (s *Server) handleRephrase(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	var req rephrase.Request
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Sentence) == "" || req.AvailableWords == nil {
		writeError(w, http.StatusBadRequest, "Missing sentence or availableWords")
		return
	}
	if s.service == nil {
		writeError(w, http.StatusServiceUnavailable, "assisted rephrasing not configured")
		return
	}

	resp, err := s.service.Rephrase(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, rephrase.ErrBadRequest):
		writeError(w, http.StatusBadRequest, "Missing sentence or availableWords")
	case errors.Is(err, rephrase.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "assisted rephrasing not configured")
	default:
		log.Warn("rephrase backend failed", "err", err)
		writeError(w, http.StatusBadGateway, "Failed to rephrase sentence")
	}
}

type translateRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out, err := s.signs.Translate(r.Context(), req.Text)
	if errors.Is(err, signs.ErrEmptyText) {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type vocabularyResponse struct {
	Count int      `json:"count"`
	Words []string `json:"words"`
}

func (s *Server) handleVocabulary(w http.ResponseWriter, _ *http.Request) {
	words := s.signs.Store().Words()
	writeJSON(w, http.StatusOK, vocabularyResponse{Count: len(words), Words: words})
}

type suggestResponse struct {
	Word        string             `json:"word"`
	Known       bool               `json:"known"`
	Suggestions []vocab.Suggestion `json:"suggestions"`
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	word := strings.TrimSpace(r.URL.Query().Get("word"))
	if word == "" {
		writeError(w, http.StatusBadRequest, "word is required")
		return
	}
	n := defaultSuggestions
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		n = min(v, maxSuggestions)
	}

	res := s.signs.Lookup(word, n)
	out := suggestResponse{Word: res.Word, Known: res.Known, Suggestions: res.Suggestions}
	if res.Known {
		out.Suggestions = []vocab.Suggestion{{Word: res.Word, Score: 1}}
	}
	if out.Suggestions == nil {
		out.Suggestions = []vocab.Suggestion{}
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
