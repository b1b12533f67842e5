// Package answer runs the per-request pipeline: quick-reply lookup,
// transcript validation, knowledge retrieval, streamed generation, and the
// hand-off of answer text into speech synthesis. Progress and results are
// pushed onto the request's event sink; the sink's completion registry, not
// this package, decides when the stream closes.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/AmityCo/answercore/internal/fetchcache"
	"github.com/AmityCo/answercore/internal/observe"
	"github.com/AmityCo/answercore/internal/orgconfig"
	"github.com/AmityCo/answercore/internal/quickreply"
	"github.com/AmityCo/answercore/internal/resilience"
	"github.com/AmityCo/answercore/internal/sse"
	"github.com/AmityCo/answercore/internal/tts"
	"github.com/AmityCo/answercore/pkg/provider/km"
	"github.com/AmityCo/answercore/pkg/provider/llm"
	"github.com/AmityCo/answercore/pkg/provider/validator"
	"github.com/AmityCo/answercore/pkg/types"
)

// SinkComponent is the completion-registry name for the text producer.
const SinkComponent = "text_generation"

// Generation defaults, applied when the organisation configures nothing.
const (
	DefaultModel       = "gpt-4.1-mini"
	DefaultTemperature = 0.01
	DefaultMaxTokens   = 2048
)

// Request is the validated inbound question.
type Request struct {
	Transcript string
	Language   string
	OrgID      string
	ConfigID   string

	// Audio is the raw recording the transcript came from, when available.
	Audio []byte

	ChatHistory []types.Message

	// Keywords being non-nil (even empty) is a control signal: validation is
	// skipped and these keywords drive retrieval.
	Keywords []string

	TranscriptConfidence float64

	// GenerateAnswer, when explicitly false, stops the pipeline after the
	// retrieval stage.
	GenerateAnswer *bool
}

func (r Request) shouldGenerate() bool {
	return r.GenerateAnswer == nil || *r.GenerateAnswer
}

// LLMFactory returns the provider for a routed model name.
type LLMFactory func(model string) (llm.Provider, error)

// QuickReplier is the scripted-answer lookup. Satisfied by
// [quickreply.Matcher].
type QuickReplier interface {
	Match(ctx context.Context, orgID, configID, transcript, language string) (quickreply.Reply, bool, error)
}

// contentPayload is the data shape of answer_chunk, thinking, and
// formatted_answer events.
type contentPayload struct {
	Content string `json:"content"`
}

// Deps carries everything one flow needs. Validator, KM, and Quick may be
// nil; their stages then degrade the same way their error paths do.
type Deps struct {
	Config   *orgconfig.Config
	Loc      orgconfig.Localization
	Fetcher  *fetchcache.Fetcher
	Sink     *sse.Sink
	Streamer *tts.Streamer

	Validator validator.Provider
	KM        km.Provider
	LLM       LLMFactory
	Quick     QuickReplier

	// ValidatorBreaker and KMBreaker guard the two upstreams that have a
	// cheap degradation path. Nil leaves the upstream unguarded.
	ValidatorBreaker *resilience.CircuitBreaker
	KMBreaker        *resilience.CircuitBreaker
}

// Flow orchestrates one request. Create per request with [New]; Run exactly
// once.
type Flow struct {
	deps    Deps
	metrics *observe.Metrics
}

// New returns a flow over deps.
func New(deps Deps) *Flow {
	return &Flow{deps: deps, metrics: observe.DefaultMetrics()}
}

// Run drives the pipeline to completion. It never closes the sink directly:
// it marks its component done (or aborts fatally) and lets the registry
// close the stream once synthesis has drained too.
func (f *Flow) Run(ctx context.Context, req Request) {
	start := time.Now()
	defer func() {
		f.metrics.PipelineDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if err := f.deps.Sink.Register(SinkComponent); err != nil {
		slog.Error("register text producer", "error", err)
		return
	}

	f.deps.Sink.Emit(sse.Status("Starting answer pipeline"))

	var pendingMeta map[string]any
	if f.deps.Quick != nil {
		reply, ok, err := f.deps.Quick.Match(ctx, req.OrgID, req.ConfigID, req.Transcript, req.Language)
		switch {
		case err != nil:
			slog.Warn("quick-reply lookup failed", "error", err)
		case ok && reply.HasAnswer():
			f.streamQuickReply(req, reply)
			f.finalise(nil, reply.Metadata)
			return
		case ok:
			// Metadata-only match rides along with the normal pipeline.
			pendingMeta = reply.Metadata
		}
	}

	result := f.validate(ctx, req)
	f.deps.Sink.Emit(sse.Data(sse.TypeValidationResult, result))

	kmResult := f.search(ctx, req, result)
	f.deps.Sink.Emit(sse.Data(sse.TypeKMResult, kmResult))

	if !req.shouldGenerate() {
		f.finalise(nil, pendingMeta)
		return
	}

	parser, fatal := f.generate(ctx, req, result, kmResult)
	if fatal {
		// The sink is already closed; release synthesis so nothing leaks.
		f.deps.Streamer.Close()
		return
	}
	f.finalise(parser, pendingMeta)
}

// streamQuickReply plays a scripted answer through the normal event and
// synthesis paths.
func (f *Flow) streamQuickReply(req Request, reply quickreply.Reply) {
	f.deps.Sink.Emit(sse.Status("Answering from quick replies"))
	f.deps.Sink.Emit(sse.Data(sse.TypeAnswerChunk, contentPayload{Content: reply.Answer}))
	f.deps.Streamer.AddText(reply.Answer, req.Language)
}

// validate produces the validation result per the request's shape: provided
// keywords short-circuit, otherwise the validator runs with or without
// audio, and any failure falls back to the transcript unchanged.
func (f *Flow) validate(ctx context.Context, req Request) types.ValidationResult {
	if req.Keywords != nil {
		f.deps.Sink.Emit(sse.Status("Skipping validation – using provided keywords"))
		return types.ValidationResult{Correction: req.Transcript, Keywords: req.Keywords}
	}

	identity := types.ValidationResult{Correction: req.Transcript, Keywords: []string{}}
	if f.deps.Validator == nil {
		return identity
	}

	system, prompt, err := ValidatorPrompts(ctx, f.deps.Fetcher, f.deps.Loc, req.Transcript, req.ChatHistory)
	if err != nil {
		slog.Warn("validator prompts unavailable, skipping validation", "error", err)
		return identity
	}

	var result types.ValidationResult
	start := time.Now()
	err = f.execute(f.deps.ValidatorBreaker, func() error {
		var verr error
		result, verr = f.deps.Validator.Validate(ctx, validator.Request{
			SystemPrompt:     system,
			TranscriptPrompt: prompt,
			Audio:            req.Audio,
			Language:         req.Language,
		})
		return verr
	})
	f.metrics.ValidationDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("validation failed, using transcript as-is",
			"error", errors.Join(ErrValidatorFailed, err))
		f.deps.Sink.Emit(sse.Status("Validation failed, continuing with original transcript"))
		return identity
	}
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	return result
}

// search runs knowledge retrieval. Failures degrade to an empty document
// set; the generator is expected to cope with having no context.
func (f *Flow) search(ctx context.Context, req Request, result types.ValidationResult) types.KMResult {
	empty := types.KMResult{Data: []types.KMHit{}}
	if f.deps.KM == nil {
		return empty
	}

	var kmResult types.KMResult
	start := time.Now()
	err := f.execute(f.deps.KMBreaker, func() error {
		var serr error
		kmResult, serr = f.deps.KM.Search(ctx, km.Query{
			Text:        result.Correction,
			Keywords:    result.Keywords,
			KnowledgeID: f.deps.Config.KMID,
			Language:    req.Language,
		})
		return serr
	})
	f.metrics.KMSearchDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		slog.Warn("knowledge search failed, continuing without documents",
			"error", errors.Join(ErrKMFailed, err))
		f.deps.Sink.Emit(sse.Status("Knowledge search failed, continuing without documents"))
		return empty
	}
	if kmResult.Data == nil {
		kmResult.Data = []types.KMHit{}
	}
	return kmResult
}

// generate streams the model response through the sectioned parser, fanning
// answer text into events and synthesis. The second return reports a fatal
// abort (sink already closed).
func (f *Flow) generate(ctx context.Context, req Request, result types.ValidationResult, kmResult types.KMResult) (*StreamParser, bool) {
	system, sectioned, err := SystemPrompt(ctx, f.deps.Fetcher, f.deps.Loc)
	if err != nil {
		slog.Error("system prompt unavailable", "error", err)
		f.deps.Sink.Fatal("Answer pipeline unavailable: required prompt could not be loaded")
		return nil, true
	}

	model := f.deps.Config.GeneratorModel(f.deps.Loc, DefaultModel)
	provider, err := f.deps.LLM(model)
	if err != nil {
		slog.Error("no generator for model", "model", model, "error", err)
		f.deps.Sink.Emit(sse.Error("Answer generation failed"))
		return nil, false
	}

	chunks, err := provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages: []types.Message{{
			Role:    types.RoleUser,
			Content: UserPrompt(QuestionBlock(ctx, f.deps.Fetcher, f.deps.Loc, result.Correction), kmResult.Data, req.ChatHistory),
		}},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	})
	if err != nil {
		slog.Error("generation stream failed to open",
			"model", model, "error", errors.Join(ErrLLMFailed, err))
		f.metrics.RecordProviderError(ctx, "llm", model)
		f.deps.Sink.Emit(sse.Error("Answer generation failed"))
		return nil, false
	}

	parser := NewStreamParser(sectioned)
	start := time.Now()
	for chunk := range chunks {
		if chunk.FinishReason == llm.FinishReasonError {
			slog.Error("generation failed mid-stream", "model", model, "detail", chunk.Text)
			f.metrics.RecordProviderError(ctx, "llm", model)
			f.deps.Sink.Emit(sse.Error("Answer generation failed"))
			for range chunks {
				// Release the producer; nothing further is emitted.
			}
			break
		}
		for _, seg := range parser.Feed(chunk.Text) {
			f.emitSegment(seg, req.Language)
		}
	}
	for _, seg := range parser.Finish() {
		f.emitSegment(seg, req.Language)
	}
	f.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	return parser, false
}

func (f *Flow) emitSegment(seg Segment, language string) {
	switch seg.Kind {
	case SegmentAnswer:
		f.deps.Sink.Emit(sse.Data(sse.TypeAnswerChunk, contentPayload{Content: seg.Text}))
		f.deps.Streamer.AddText(seg.Text, language)
	case SegmentThinking:
		f.deps.Sink.Emit(sse.Data(sse.TypeThinking, contentPayload{Content: seg.Text}))
	case SegmentFormatted:
		f.deps.Sink.Emit(sse.Data(sse.TypeFormattedAnswer, contentPayload{Content: seg.Text}))
	}
}

// finalise emits trailing metadata, releases synthesis, and marks the text
// producer done. Metadata goes out after the last answer_chunk and before
// complete.
func (f *Flow) finalise(parser *StreamParser, extra map[string]any) {
	meta := map[string]any{}
	if parser != nil {
		if ids := parser.DocIDs(); len(ids) > 0 {
			meta["doc_ids"] = strings.Join(ids, ",")
		}
		if parser.SessionEnd() {
			meta["session_end"] = true
		}
	}
	for k, v := range extra {
		meta[k] = v
	}
	if len(meta) > 0 {
		f.deps.Sink.Emit(sse.Data(sse.TypeMetadata, meta))
	}

	f.deps.Streamer.FlushAll()
	f.deps.Streamer.Close()
	f.deps.Sink.MarkComplete(SinkComponent)
}

// execute runs fn, optionally behind a circuit breaker.
func (f *Flow) execute(breaker *resilience.CircuitBreaker, fn func() error) error {
	if breaker == nil {
		return fn()
	}
	return breaker.Execute(fn)
}
