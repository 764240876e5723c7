// Package handler exposes the comparison pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/mmfshirokan/PriceCompare/internal/a2a"
	"github.com/mmfshirokan/PriceCompare/internal/dates"
	"github.com/mmfshirokan/PriceCompare/internal/llm"
	"github.com/mmfshirokan/PriceCompare/internal/metrics"
	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	"github.com/mmfshirokan/PriceCompare/internal/service"
	log "github.com/sirupsen/logrus"
)

const maxBodySize = 1 << 20

type Handler struct {
	comparator service.Comparator
	parser     llm.Parser
	responder  llm.Responder
	fallback   llm.Responder
	cache      repository.Cache
	now        func() time.Time
}

func New(comparator service.Comparator, parser llm.Parser, responder llm.Responder, cache repository.Cache) *Handler {
	return &Handler{
		comparator: comparator,
		parser:     parser,
		responder:  responder,
		fallback:   llm.NewStaticResponder(),
		cache:      cache,
		now:        time.Now,
	}
}

// Router wires every route. API routes sit behind the API key check and limiter.
func (h *Handler) Router(apiKeys []string, limiter Limiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(metrics.Middleware, logRequests)

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	guarded := []mux.MiddlewareFunc{RequireAPIKey(apiKeys), RateLimit(limiter)}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(guarded...)
	api.HandleFunc("/crypto/{asset}/compare", h.compare).Methods(http.MethodGet)
	api.HandleFunc("/crypto/{asset}/compare/", h.compare).Methods(http.MethodGet)
	api.HandleFunc("/nlp/parse", h.nlpParse).Methods(http.MethodPost)
	api.HandleFunc("/nlp/parse/", h.nlpParse).Methods(http.MethodPost)
	api.HandleFunc("/nlp/compare", h.nlpCompare).Methods(http.MethodPost)
	api.HandleFunc("/nlp/compare/", h.nlpCompare).Methods(http.MethodPost)

	agent := router.PathPrefix("/a2a").Subrouter()
	agent.Use(guarded...)
	agent.HandleFunc("/crypto", h.a2aCrypto).Methods(http.MethodPost)

	return router
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "ok", "cache": "ok"}
	if err := h.cache.Ping(ctx); err != nil {
		log.Warnf("health: cache ping: %v", err)
		status["cache"] = "unavailable"
	}

	writeJSON(w, http.StatusOK, status)
}

type compareResponse struct {
	Comparison model.Comparison `json:"comparison"`
	Task       a2a.Response     `json:"task"`
}

func (h *Handler) compare(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	date := r.URL.Query().Get("date")
	if date == "" {
		writeDetail(w, http.StatusBadRequest, "date query parameter required, YYYY-MM-DD")
		return
	}
	day, err := time.Parse(dates.Layout, date)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid date format; use YYYY-MM-DD")
		return
	}

	cmp, err := h.comparator.Compare(r.Context(), asset, day)
	if err != nil {
		writeCompareError(w, err, nil)
		return
	}

	writeJSON(w, http.StatusOK, compareResponse{
		Comparison: cmp,
		Task:       a2a.BuildTask(nil, cmp, h.now()),
	})
}

type textRequest struct {
	Text string `json:"text"`
}

func (h *Handler) nlpParse(w http.ResponseWriter, r *http.Request) {
	text, ok := readText(w, r)
	if !ok {
		return
	}

	parsed, err := h.parser.Parse(r.Context(), text)
	if err != nil {
		writeParseError(w, err, parsed)
		return
	}

	writeJSON(w, http.StatusOK, parsed)
}

type nlpCompareResponse struct {
	Parsed     llm.ParsedQuery  `json:"parsed"`
	Comparison model.Comparison `json:"comparison"`
	Response   string           `json:"response"`
}

func (h *Handler) nlpCompare(w http.ResponseWriter, r *http.Request) {
	text, ok := readText(w, r)
	if !ok {
		return
	}

	parsed, err := h.parser.Parse(r.Context(), text)
	if err != nil {
		writeParseError(w, err, parsed)
		return
	}
	if parsed.Symbol == "" {
		writeDetail(w, http.StatusBadRequest, "asset could not be parsed")
		return
	}
	if parsed.Date == "" {
		writeDetail(w, http.StatusBadRequest, "date could not be parsed; specify a date, e.g. 'on 2025-01-01'")
		return
	}

	cmp, err := h.comparator.CompareText(r.Context(), parsed.Symbol, parsed.Date)
	if err != nil {
		writeCompareError(w, err, &parsed)
		return
	}

	writeJSON(w, http.StatusOK, nlpCompareResponse{
		Parsed:     parsed,
		Comparison: cmp,
		Response:   h.respond(r.Context(), cmp),
	})
}

func (h *Handler) a2aCrypto(w http.ResponseWriter, r *http.Request) {
	var req a2a.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, a2a.BuildError(nil, a2a.CodeParseError, "parse error"))
		return
	}
	if req.JSONRPC != a2a.Version {
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.CodeInvalidRequest, "jsonrpc must be \"2.0\""))
		return
	}
	if req.Method != a2a.MethodSend {
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.CodeMethodNotFound, "method not found: "+req.Method))
		return
	}

	var params a2a.SendParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Message.Text() == "" {
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.CodeInvalidParams, "params.message must contain text"))
		return
	}

	parsed, err := h.parser.Parse(r.Context(), params.Message.Text())
	if err != nil {
		log.Warnf("a2a parse: %v", err)
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.CodeUnavailable, "could not understand the request right now, please try again shortly"))
		return
	}
	if parsed.Symbol == "" || parsed.Date == "" {
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.CodeInvalidParams, "name a coin and a date, e.g. \"check btc yesterday\""))
		return
	}

	cmp, err := h.comparator.CompareText(r.Context(), parsed.Symbol, parsed.Date)
	if err != nil {
		logCompareError(err)
		writeJSON(w, http.StatusOK, a2a.BuildError(req.ID, a2a.ErrorCode(err), model.UserMessage(err)))
		return
	}

	writeJSON(w, http.StatusOK, a2a.BuildTask(req.ID, cmp, h.now()))
}

// respond falls back to the plain summary when the language model fails.
func (h *Handler) respond(ctx context.Context, cmp model.Comparison) string {
	text, err := h.responder.Respond(ctx, cmp)
	if err == nil && text != "" {
		return text
	}
	if err != nil {
		log.Warnf("responder: %v", err)
	}

	text, _ = h.fallback.Respond(ctx, cmp)

	return text
}

func readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "body must be JSON: {\"text\": \"...\"}")
		return "", false
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeDetail(w, http.StatusBadRequest, "text is required")
		return "", false
	}

	return text, true
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidDate):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrInvalidSymbol), errors.Is(err, model.ErrNoDataForDate):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUpstreamUnavailable), errors.Is(err, model.ErrRateLimited):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeCompareError(w http.ResponseWriter, err error, parsed *llm.ParsedQuery) {
	logCompareError(err)

	body := map[string]any{
		"detail": model.UserMessage(err),
		"kind":   model.Kind(err),
	}
	if parsed != nil {
		body["parsed"] = parsed
	}

	writeJSON(w, statusOf(err), body)
}

func writeParseError(w http.ResponseWriter, err error, parsed llm.ParsedQuery) {
	log.Warnf("parse: %v", err)

	if errors.Is(err, llm.ErrNonJSONReply) {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"detail": "the language model returned an unreadable answer",
			"raw":    parsed.Raw,
		})
		return
	}

	writeDetail(w, http.StatusBadGateway, "the language model is unavailable, please try again shortly")
}

func logCompareError(err error) {
	entry := log.WithField("kind", model.Kind(err))
	if model.IsUserError(err) {
		entry.Infof("compare rejected: %v", err)
		return
	}
	entry.Errorf("compare failed: %v", err)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("write response: %v", err)
	}
}
