// Package pipeline runs the extraction end to end: document store, text
// and table extraction, normalization, optional LLM enrichment and output.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/config"
	"github.com/sells-group/mre-cli/internal/docstore"
	"github.com/sells-group/mre-cli/internal/enrich"
	"github.com/sells-group/mre-cli/internal/extract"
	"github.com/sells-group/mre-cli/internal/metrics"
	"github.com/sells-group/mre-cli/internal/model"
	"github.com/sells-group/mre-cli/internal/normalize"
	"github.com/sells-group/mre-cli/internal/output"
	"github.com/sells-group/mre-cli/internal/store"
)

// Pipeline processes every announcement in the document store in one run.
type Pipeline struct {
	cfg        *config.Config
	docs       docstore.Options
	extractor  *extract.Extractor
	normalizer *normalize.Normalizer
	adapter    *enrich.Adapter
	store      store.Store
	metrics    *metrics.Metrics
}

// New creates a Pipeline. st may be nil when no ledger is configured.
func New(
	cfg *config.Config,
	docs docstore.Options,
	ex *extract.Extractor,
	n *normalize.Normalizer,
	adapter *enrich.Adapter,
	st store.Store,
) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		docs:       docs,
		extractor:  ex,
		normalizer: n,
		adapter:    adapter,
		store:      st,
		metrics:    metrics.New(),
	}
}

// Metrics returns the run counters.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// run accumulates the state of one Run call.
type run struct {
	summary    model.RunSummary
	skips      []model.Skip
	unresolved []model.Skip
	records    []model.MRERecord
}

// Run processes the document store and writes the output table. Per-page,
// per-row and per-fragment failures are logged and counted in the summary;
// only an unreadable document store, an unwritable output file, a ledger
// failure or cancellation return an error.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	r, err := p.start(ctx)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("run_id", r.summary.ID))
	log.Info("pipeline: starting run",
		zap.String("docs", p.docs.Dir),
		zap.String("output", p.cfg.Output.Path),
		zap.Bool("llm", p.adapter.Enabled()),
	)

	docs, err := docstore.Open(ctx, p.docs)
	if err != nil {
		return p.fail(ctx, r, err)
	}
	r.summary.DocumentsSkipped = len(docs.Skipped())
	p.metrics.Documents.WithLabelValues("skipped").Add(float64(len(docs.Skipped())))

	all := normalize.NewRecordSet()
	for _, g := range docs.Groups() {
		set, err := p.company(ctx, r, g)
		if err != nil {
			return p.fail(ctx, r, err)
		}
		all.Merge(set)
		r.summary.Companies++
	}

	r.records = all.Records()
	r.summary.Conflicts = all.Conflicts()
	if err := output.Write(p.cfg.Output.Path, p.cfg.Output.Format, r.records); err != nil {
		return p.fail(ctx, r, err)
	}

	r.summary.Records = len(r.records)
	for _, rec := range r.records {
		if rec.Source == model.SourceLLM {
			r.summary.LLMRecords++
		} else {
			r.summary.ParsedRecords++
		}
		p.metrics.Records.WithLabelValues(string(rec.Source)).Inc()
	}
	p.metrics.Conflicts.Add(float64(r.summary.Conflicts))

	p.reportUnresolved(r)
	r.summary.Status = model.RunStatusComplete
	if err := p.finish(ctx, r); err != nil {
		return &r.summary, err
	}
	return &r.summary, nil
}

func (p *Pipeline) start(ctx context.Context) (*run, error) {
	r := &run{}
	if p.store != nil {
		sum, err := p.store.CreateRun(ctx, p.cfg.Output.Path)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
		r.summary = *sum
		return r, nil
	}
	r.summary = model.RunSummary{
		ID:         uuid.New().String(),
		Status:     model.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
		OutputPath: p.cfg.Output.Path,
	}
	return r, nil
}

// company extracts, normalizes and enriches one company's announcements.
func (p *Pipeline) company(ctx context.Context, r *run, g docstore.Group) (*normalize.RecordSet, error) {
	log := zap.L().With(zap.String("company", g.CompanyID))

	var frags []model.RawTableFragment
	for _, ann := range g.Announcements {
		fr, pagesSkipped, err := extract.Collect(p.extractor.Fragments(ctx, ann))
		r.summary.PagesSkipped += pagesSkipped
		p.metrics.PagesSkipped.Add(float64(pagesSkipped))
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "pipeline: cancelled")
			}
			log.Warn("pipeline: skipping document", zap.String("document", ann.DocumentID), zap.Error(err))
			r.summary.DocumentsSkipped++
			p.metrics.Documents.WithLabelValues("skipped").Inc()
			p.addSkip(r, model.Skip{
				Kind:       model.SkipUnparseable,
				Detail:     err.Error(),
				CompanyID:  ann.CompanyID,
				DocumentID: ann.DocumentID,
				Row:        -1,
			})
			continue
		}
		r.summary.Documents++
		p.metrics.Documents.WithLabelValues("processed").Inc()
		for _, f := range fr {
			p.metrics.Fragments.WithLabelValues(string(f.Kind)).Inc()
		}
		frags = append(frags, fr...)
	}
	r.summary.Fragments += len(frags)

	c := p.normalizer.Company(frags)
	for _, s := range c.Skips {
		p.addSkip(r, s)
	}

	for _, u := range c.Unmapped {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "pipeline: cancelled")
		}
		p.enrich(ctx, r, c.Set, u)
	}

	log.Info("pipeline: company done",
		zap.Int("documents", len(g.Announcements)),
		zap.Int("fragments", len(frags)),
		zap.Int("records", c.Set.Len()),
		zap.Int("unmapped", len(c.Unmapped)),
	)
	return c.Set, nil
}

// enrich resolves one unmapped fragment. LLM records only fill keys the
// parsed tables did not produce.
func (p *Pipeline) enrich(ctx context.Context, r *run, set *normalize.RecordSet, u normalize.Unmapped) {
	f := u.Fragment
	res := p.adapter.Resolve(ctx, f)
	p.metrics.LLMCalls.WithLabelValues(resultLabel(res)).Inc()

	if !res.Resolved() {
		detail := u.Reason + "; " + res.Reason
		if res.Detail != "" {
			detail += ": " + res.Detail
		}
		s := model.Skip{
			Kind:       model.SkipUnresolved,
			Detail:     detail,
			CompanyID:  f.CompanyID,
			DocumentID: f.DocumentID,
			PageNumber: f.PageNumber,
			Row:        -1,
		}
		r.unresolved = append(r.unresolved, s)
		p.addSkip(r, s)
		return
	}
	for _, rec := range res.Records {
		set.Fill(rec)
	}
}

func resultLabel(res enrich.Resolution) string {
	switch {
	case res.Resolved():
		return "resolved"
	case res.Reason == enrich.ReasonMalformed:
		return "malformed"
	case res.Reason == enrich.ReasonUnavailable:
		return "rejected"
	case res.Reason == enrich.ReasonDisabled:
		return "disabled"
	default:
		return "failed"
	}
}

func (p *Pipeline) addSkip(r *run, s model.Skip) {
	r.skips = append(r.skips, s)
	p.metrics.Skips.WithLabelValues(string(s.Kind)).Inc()
	if s.Kind != model.SkipIgnored && s.Kind != model.SkipUnresolved && s.Kind != model.SkipUnparseable {
		r.summary.RowsDropped++
	}
}

// reportUnresolved lists every fragment that produced nothing, for the
// operator to decide on a re-run.
func (p *Pipeline) reportUnresolved(r *run) {
	r.summary.Unresolved = len(r.unresolved)
	if len(r.unresolved) == 0 {
		return
	}
	for _, s := range r.unresolved {
		zap.L().Warn("pipeline: unresolved fragment",
			zap.String("company", s.CompanyID),
			zap.String("document", s.DocumentID),
			zap.Int("page", s.PageNumber),
			zap.String("reason", s.Detail),
		)
	}
	if !p.adapter.Available() {
		zap.L().Warn("pipeline: llm enrichment was skipped or unavailable; re-run once the service is reachable",
			zap.Int("unresolved", len(r.unresolved)),
		)
	}
}

func (p *Pipeline) fail(ctx context.Context, r *run, cause error) (*model.RunSummary, error) {
	r.summary.Status = model.RunStatusFailed
	r.summary.Error = cause.Error()
	if err := p.finish(ctx, r); err != nil {
		zap.L().Error("pipeline: recording failed run", zap.Error(err))
	}
	return &r.summary, cause
}

// finish stamps the summary, writes the ledger and metrics and logs the
// summary line.
func (p *Pipeline) finish(ctx context.Context, r *run) error {
	stats := p.adapter.Stats()
	r.summary.LLMCalls = stats.Calls
	r.summary.LLMFailures = stats.Failures + stats.Malformed
	r.summary.FinishedAt = time.Now().UTC()
	s := r.summary

	zap.L().Info("pipeline: run summary",
		zap.String("run_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.Duration("duration", s.FinishedAt.Sub(s.StartedAt)),
		zap.Int("companies", s.Companies),
		zap.Int("documents", s.Documents),
		zap.Int("documents_skipped", s.DocumentsSkipped),
		zap.Int("pages_skipped", s.PagesSkipped),
		zap.Int("fragments", s.Fragments),
		zap.Int("records", s.Records),
		zap.Int("parsed_records", s.ParsedRecords),
		zap.Int("llm_records", s.LLMRecords),
		zap.Int("rows_dropped", s.RowsDropped),
		zap.Int("conflicts", s.Conflicts),
		zap.Int("unresolved", s.Unresolved),
		zap.Int("llm_calls", s.LLMCalls),
		zap.Int("llm_failures", s.LLMFailures),
		zap.String("output", s.OutputPath),
	)

	p.metrics.Finish(s)
	if path := p.cfg.Metrics.Textfile; path != "" {
		if err := p.metrics.WriteTextfile(path); err != nil {
			zap.L().Error("pipeline: writing metrics", zap.Error(err))
		}
	}

	if p.store == nil {
		return nil
	}
	// The ledger records cancelled runs too.
	err := p.store.FinishRun(context.WithoutCancel(ctx), &model.Run{
		Summary: s,
		Skips:   r.skips,
		Records: r.records,
	})
	return eris.Wrap(err, "pipeline: finish run")
}
