// Package enrich asks an LLM to read the fragments the normalizer could not
// map, and parses its answers back into MRE records.
package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/resilience"
)

// Status is the outcome of resolving one fragment.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

// Unresolved reasons.
const (
	ReasonDisabled    = "enrichment disabled"
	ReasonUnavailable = "llm service unavailable"
	ReasonCallFailed  = "llm call failed"
	ReasonMalformed   = "malformed response"
)

// Resolution is the tagged result of Resolve.
type Resolution struct {
	Status  Status
	Records []model.MRERecord
	Reason  string
	Detail  string
}

// Resolved reports whether the fragment was resolved.
func (r Resolution) Resolved() bool { return r.Status == StatusResolved }

// Stats counts adapter activity over a run.
type Stats struct {
	Calls     int
	Failures  int
	Malformed int
	Rejected  int
}

// Options tunes the call policy.
type Options struct {
	Timeout           time.Duration
	MaxAttempts       int
	Backoff           time.Duration
	RequestsPerSecond float64
}

// Adapter resolves fragments through a Generator. A nil Generator makes
// every fragment unresolved without a call. Not safe for concurrent use.
type Adapter struct {
	gen     Generator
	tmpl    *Template
	parser  *Parser
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	stats   Stats
}

// NewAdapter wires a generator to its prompt template and response parser.
func NewAdapter(gen Generator, tmpl *Template, parser *Parser, opts Options) *Adapter {
	name := "disabled"
	if gen != nil {
		name = gen.Name()
	}

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.MaxAttempts
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 2
	}
	retry.AttemptTimeout = opts.Timeout
	if opts.Backoff > 0 {
		retry.InitialBackoff = opts.Backoff
	}
	retry.OnRetry = resilience.RetryLogger(name, "generate")

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Adapter{
		gen:    gen,
		tmpl:   tmpl,
		parser: parser,
		retry:  retry,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: 1,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("enrich: circuit state change",
					zap.String("generator", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Enabled reports whether the adapter has a generator.
func (a *Adapter) Enabled() bool { return a.gen != nil }

// Available reports whether calls are still being made.
func (a *Adapter) Available() bool {
	return a.gen != nil && a.breaker.State() != resilience.CircuitOpen
}

// Stats returns the activity counters.
func (a *Adapter) Stats() Stats {
	s := a.stats
	s.Rejected = a.breaker.Rejected()
	return s
}

// Resolve sends one fragment to the generator. Failures never escape as
// errors; they come back as an unresolved Resolution.
func (a *Adapter) Resolve(ctx context.Context, f model.RawTableFragment) Resolution {
	if a.gen == nil {
		return Resolution{Status: StatusUnresolved, Reason: ReasonDisabled}
	}

	prompt := a.tmpl.Render(f)
	text, err := resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, a.retry, func(ctx context.Context) (string, error) {
			if err := a.limiter.Wait(ctx); err != nil {
				return "", eris.Wrap(err, "enrich: rate limiter")
			}
			a.stats.Calls++
			return a.gen.Generate(ctx, prompt)
		})
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			return Resolution{Status: StatusUnresolved, Reason: ReasonUnavailable}
		}
		a.stats.Failures++
		zap.L().Warn("enrich: llm call failed",
			zap.String("generator", a.gen.Name()),
			zap.String("company", f.CompanyID),
			zap.String("document", f.DocumentID),
			zap.Int("page", f.PageNumber),
			zap.Error(err),
		)
		return Resolution{Status: StatusUnresolved, Reason: ReasonCallFailed, Detail: err.Error()}
	}

	records, err := a.parser.Parse(text, f)
	if err != nil {
		a.stats.Malformed++
		zap.L().Warn("enrich: rejecting response",
			zap.String("generator", a.gen.Name()),
			zap.String("company", f.CompanyID),
			zap.String("document", f.DocumentID),
			zap.Int("page", f.PageNumber),
			zap.Error(err),
		)
		return Resolution{Status: StatusUnresolved, Reason: ReasonMalformed, Detail: err.Error()}
	}

	zap.L().Info("enrich: fragment resolved",
		zap.String("company", f.CompanyID),
		zap.String("document", f.DocumentID),
		zap.Int("page", f.PageNumber),
		zap.Int("records", len(records)),
	)
	return Resolution{Status: StatusResolved, Records: records}
}
