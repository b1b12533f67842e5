// Package httpapi is the HTTP edge of the answer pipeline. It validates
// inbound requests, resolves the organisation configuration, assembles the
// per-request sink, streamer, and flow, and relays the resulting event stream
// to the client as server-sent events.
//
// The handler owns the stream lifecycle: whatever happens to the request, the
// response is a well-formed event stream that terminates. Rejected requests
// get a one-shot error stream; accepted requests are drained to the sink's
// close even after the client disconnects, so no producer is left blocked.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AmityCo/answercore/internal/answer"
	"github.com/AmityCo/answercore/internal/fetchcache"
	"github.com/AmityCo/answercore/internal/observe"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/internal/quickreply"
	"github.com/AmityCo/answercore/internal/resilience"
	"github.com/AmityCo/answercore/internal/sse"
	"github.com/AmityCo/answercore/internal/tts"
	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/provider/llm"
	"github.com/AmityCo/answercore/pkg/provider/llm/anyllm"
	"github.com/AmityCo/answercore/pkg/provider/validator"
	"github.com/AmityCo/answercore/pkg/provider/validator/gemini"
)

// Deps carries the process-wide collaborators the server hands to each
// request's flow.
type Deps struct {
	Configs  orgconfig.Loader
	Fetcher  *fetchcache.Fetcher
	Renderer *tts.Renderer
	KM       km.Provider
	Quick    answer.QuickReplier

	// NewValidator and NewLLM build the per-organisation providers from the
	// credentials in its configuration. Nil selects the production backends.
	NewValidator func(apiKey string) (validator.Provider, error)
	NewLLM       func(model string, keys anyllm.Keys) (llm.Provider, error)

	// StreamTimeout bounds one answer stream end to end. Zero disables.
	StreamTimeout time.Duration
}

// Server handles the /api/v1 surface.
type Server struct {
	deps    Deps
	metrics *observe.Metrics

	// One breaker per degradable upstream, shared across requests so that a
	// failing backend trips once, not per stream.
	validatorBreaker *resilience.CircuitBreaker
	kmBreaker        *resilience.CircuitBreaker
}

// NewServer creates a server over deps, filling in the production provider
// constructors where none are given.
func NewServer(deps Deps) *Server {
	if deps.NewValidator == nil {
		deps.NewValidator = func(apiKey string) (validator.Provider, error) {
			return gemini.New(apiKey)
		}
	}
	if deps.NewLLM == nil {
		deps.NewLLM = func(model string, keys anyllm.Keys) (llm.Provider, error) {
			return anyllm.ForModel(model, keys)
		}
	}
	return &Server{
		deps:             deps,
		metrics:          observe.DefaultMetrics(),
		validatorBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "validator"}),
		kmBreaker:        resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "km"}),
	}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/answer-sse", s.HandleAnswerSSE)
	mux.HandleFunc("POST /api/v1/quickreply", s.HandleQuickReply)
}

// HandleAnswerSSE runs the answer pipeline for one question and streams its
// events to the client.
func (s *Server) HandleAnswerSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var req answerRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.writeErrorStream(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.writeErrorStream(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	cfg, err := s.deps.Configs.Load(r.Context(), req.OrgID, req.ConfigID)
	switch {
	case errors.Is(err, orgconfig.ErrNotFound):
		s.writeErrorStream(w, http.StatusBadRequest, "unknown organisation configuration")
		return
	case err != nil:
		slog.Error("load org config failed",
			"org_id", req.OrgID, "config_id", req.ConfigID, "error", err)
		s.writeErrorStream(w, http.StatusServiceUnavailable, "configuration unavailable")
		return
	}

	loc, err := cfg.Localisation(req.Language)
	if err != nil {
		s.writeErrorStream(w, http.StatusBadRequest, "no localisation for language "+req.Language)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if s.deps.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.deps.StreamTimeout)
		defer cancel()
	}

	sink := sse.NewSink(0)
	streamer, err := tts.NewStreamer(ctx, cfg, s.deps.Renderer, s.deps.Fetcher, sink)
	if err != nil {
		slog.Error("construct tts streamer", "error", err)
		s.writeErrorStream(w, http.StatusInternalServerError, "stream setup failed")
		return
	}

	flow := answer.New(answer.Deps{
		Config:   cfg,
		Loc:      loc,
		Fetcher:  s.deps.Fetcher,
		Sink:     sink,
		Streamer: streamer,

		Validator: s.validatorFor(cfg),
		KM:        s.deps.KM,
		LLM:       s.llmFactory(cfg),
		Quick:     s.deps.Quick,

		ValidatorBreaker: s.validatorBreaker,
		KMBreaker:        s.kmBreaker,
	})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.metrics.ActiveStreams.Add(ctx, 1)
	defer s.metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)

	go flow.Run(ctx, req.toPipeline())

	// The sink must be drained to its close even after the client goes away,
	// otherwise blocked producers leak. On a write failure the request context
	// is cancelled so the pipeline winds down within its cancellation bounds,
	// and the remaining events are consumed without being written.
	clientGone := false
	for ev := range sink.Events() {
		s.metrics.RecordEvent(ctx, string(ev.Type))
		if clientGone {
			continue
		}
		payload, err := ev.MarshalSSE()
		if err != nil {
			slog.Error("marshal stream event", "type", ev.Type, "error", err)
			continue
		}
		if _, err := w.Write(payload); err != nil {
			slog.Info("client disconnected, draining remaining events")
			clientGone = true
			cancel()
			continue
		}
		flusher.Flush()
	}
}

// quickReplyResponse is the JSON body of a quick-reply lookup.
type quickReplyResponse struct {
	Matched bool              `json:"matched"`
	Reply   *quickreply.Reply `json:"reply,omitempty"`
}

// errorBody is the JSON error shape of the non-streaming endpoints.
type errorBody struct {
	Error string `json:"error"`
}

// HandleQuickReply looks a transcript up against the organisation's scripted
// answers without running the pipeline.
func (s *Server) HandleQuickReply(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quick == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "quick replies are not configured"})
		return
	}

	var req quickReplyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := req.validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	reply, ok, err := s.deps.Quick.Match(r.Context(), req.OrgID, req.ConfigID, req.Transcript, req.Language)
	if err != nil {
		slog.Warn("quick-reply lookup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Error: "quick-reply lookup failed"})
		return
	}

	resp := quickReplyResponse{Matched: ok}
	if ok {
		resp.Reply = &reply
	}
	writeJSON(w, http.StatusOK, resp)
}

// validatorFor builds the validator from the organisation's credentials, or
// nil when validation is not configured. A construction failure degrades to
// no validation rather than failing the request.
func (s *Server) validatorFor(cfg *orgconfig.Config) validator.Provider {
	if cfg.Gemini == nil || !cfg.Gemini.ValidatorEnabled || cfg.Gemini.Key == "" {
		return nil
	}
	p, err := s.deps.NewValidator(cfg.Gemini.Key)
	if err != nil {
		slog.Warn("validator unavailable, validation will be skipped", "error", err)
		return nil
	}
	return p
}

// llmFactory captures the organisation's generator credentials so the flow
// can construct a provider once the model is known.
func (s *Server) llmFactory(cfg *orgconfig.Config) answer.LLMFactory {
	var keys anyllm.Keys
	if cfg.OpenAI != nil {
		keys.OpenAI = cfg.OpenAI.APIKey
	}
	if cfg.Groq != nil {
		keys.Groq = cfg.Groq.APIKey
	}
	return func(model string) (llm.Provider, error) {
		return s.deps.NewLLM(model, keys)
	}
}

// writeErrorStream responds with a one-shot event stream: an error event
// followed by complete. Rejected requests still end with a well-formed
// stream, never a hanging connection.
func (s *Server) writeErrorStream(w http.ResponseWriter, status int, message string) {
	sink := sse.NewSink(2)
	sink.Emit(sse.Error(message))
	sink.MarkAllComplete()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	for ev := range sink.Events() {
		payload, err := ev.MarshalSSE()
		if err != nil {
			continue
		}
		w.Write(payload)
	}
}

// writeJSON encodes v with the given status. On encoding failure the response
// is already partially written, so the error is only logged.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
