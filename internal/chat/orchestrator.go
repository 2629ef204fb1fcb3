// Package chat runs a single chat turn: session check, input validation, keyword gate,
// answer generation (or clinic lookup, or canned fallback), policy gate and audit.
//
// Only ErrUnauthorized and *ValidationError are returned to callers. Generator and
// audit failures degrade to a successful Reply.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/careline/careline/internal/clinic"
	"github.com/careline/careline/internal/filter"
	"github.com/careline/careline/internal/generator"
	"github.com/careline/careline/internal/session"
	"github.com/careline/careline/internal/telemetry"
)

// ErrUnauthorized is returned for a missing, unknown, revoked or expired token
var ErrUnauthorized = errors.New("chat: unauthorized")

const defaultGenerateTimeout = 30 * time.Second

// Source tells where the final answer came from
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
	SourceClinic    Source = "clinic"
	SourceRefusal   Source = "refusal"
)

// Reply is the outcome of a chat turn
type Reply struct {
	Answer string
	Source Source
	// Decision is the admission decision that determined the answer: the pre-check
	// decision for keyword misses, otherwise the post-check decision.
	Decision filter.Decision
}

// SessionValidator resolves a bearer token to an identity
type SessionValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// Recorder persists the audit trail of a turn. Implementations must not block.
type Recorder interface {
	Record(query, response string, when time.Time)
}

// ClinicAnswerer answers facility-search turns
type ClinicAnswerer interface {
	Answer(ctx context.Context, req clinic.Request) (string, error)
}

// Orchestrator composes the pipeline collaborators
type Orchestrator struct {
	sessions     SessionValidator
	filter       *filter.Filter
	generator    generator.Generator
	audit        Recorder
	clinics      ClinicAnswerer
	policyPrompt string
	timeout      time.Duration
	maxLen       int
	now          func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithPolicyPrompt sets the system prompt sent with every generation request
func WithPolicyPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.policyPrompt = prompt }
}

// WithGenerateTimeout bounds each generation and clinic lookup
func WithGenerateTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMaxMessageLength sets the message limit in runes
func WithMaxMessageLength(n int) Option {
	return func(o *Orchestrator) { o.maxLen = n }
}

// WithClinicLocator enables facility-search answers
func WithClinicLocator(c ClinicAnswerer) Option {
	return func(o *Orchestrator) { o.clinics = c }
}

// WithClock overrides the audit timestamp source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the pipeline
func NewOrchestrator(sessions SessionValidator, f *filter.Filter, gen generator.Generator, audit Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions:     sessions,
		filter:       f,
		generator:    gen,
		audit:        audit,
		policyPrompt: generator.DefaultSystemPrompt,
		timeout:      defaultGenerateTimeout,
		maxLen:       DefaultMaxMessageLength,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Handle runs one chat turn for the session identified by token
func (o *Orchestrator) Handle(ctx context.Context, token, query string) (Reply, error) {
	if _, err := o.sessions.Validate(ctx, token); err != nil {
		if errors.Is(err, session.ErrStoreUnavailable) {
			slog.Error("session store unavailable during chat", "error", err)
		}
		return Reply{}, ErrUnauthorized
	}

	query, err := ValidateMessage(query, o.maxLen)
	if err != nil {
		return Reply{}, err
	}

	pre := o.filter.PreCheck(query)
	telemetry.AdmissionDecisionsTotal.WithLabelValues(filter.StagePre, string(pre.Reason)).Inc()
	if !pre.Allowed {
		slog.Info("chat turn refused by keyword gate", "query_len", len(query), "off_domain", pre.OffDomain)
		return o.finish(query, Reply{Answer: filter.RefusalMessage, Source: SourceRefusal, Decision: pre}), nil
	}

	answer, source := o.answer(ctx, query)

	post := o.filter.PostCheck(answer)
	telemetry.AdmissionDecisionsTotal.WithLabelValues(filter.StagePost, string(post.Reason)).Inc()
	if !post.Allowed {
		slog.Info("chat answer replaced by policy gate", "source", source, "markers", post.Matched)
		answer, source = filter.RefusalMessage, SourceRefusal
	}

	return o.finish(query, Reply{Answer: answer, Source: source, Decision: post}), nil
}

// answer returns the candidate answer before the policy gate
func (o *Orchestrator) answer(ctx context.Context, query string) (string, Source) {
	if o.clinics != nil {
		if req, ok := clinic.Detect(query); ok {
			cctx, cancel := context.WithTimeout(ctx, o.timeout)
			text, err := o.clinics.Answer(cctx, req)
			cancel()
			if err == nil {
				telemetry.GenerationRequestsTotal.WithLabelValues("clinic").Inc()
				return text, SourceClinic
			}
			slog.Warn("clinic lookup failed, answering with generator", "kind", req.Kind, "error", err)
		}
	}

	gctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	text, err := o.generator.Generate(gctx, generator.Request{Query: query, PolicyPrompt: o.policyPrompt})
	telemetry.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.GenerationRequestsTotal.WithLabelValues("unavailable").Inc()
		if !errors.Is(err, generator.ErrUnavailable) {
			slog.Error("generator returned unexpected error", "error", err)
		} else {
			slog.Warn("generator unavailable, using fallback answer", "error", err)
		}
		return generator.Fallback(query), SourceFallback
	}
	telemetry.GenerationRequestsTotal.WithLabelValues("ok").Inc()
	return text, SourceGenerated
}

func (o *Orchestrator) finish(query string, r Reply) Reply {
	o.audit.Record(query, r.Answer, o.now())
	return r
}
