// Package metrics counts what a run processed and dropped, and writes the
// counts in the Prometheus textfile format for node_exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mre-cli/internal/model"
)

// Metrics holds the counters of one run on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Documents      *prometheus.CounterVec
	PagesSkipped   prometheus.Counter
	Fragments      *prometheus.CounterVec
	Records        *prometheus.CounterVec
	Skips          *prometheus.CounterVec
	Conflicts      prometheus.Counter
	LLMCalls       *prometheus.CounterVec
	RunDuration    prometheus.Gauge
	LastRunSuccess prometheus.Gauge
	LastRunTime    prometheus.Gauge
}

// New creates a Metrics with every series registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mre_documents_total",
			Help: "Announcements seen, by result",
		}, []string{"result"}),
		PagesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "mre_pages_skipped_total",
			Help: "Pages whose text could not be read",
		}),
		Fragments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mre_fragments_total",
			Help: "Raw table fragments extracted, by kind",
		}, []string{"kind"}),
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mre_records_total",
			Help: "Records written, by extraction source",
		}, []string{"source"}),
		Skips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mre_skips_total",
			Help: "Rows and fragments excluded from output, by reason kind",
		}, []string{"kind"}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "mre_dedup_conflicts_total",
			Help: "Record keys overwritten by a later fragment with different values",
		}),
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mre_llm_requests_total",
			Help: "Enrichment requests, by result",
		}, []string{"result"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "mre_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "mre_last_run_success",
			Help: "1 if the last run completed, 0 if it failed",
		}),
		LastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Name: "mre_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
}

// Finish records the run-level gauges from the summary.
func (m *Metrics) Finish(sum model.RunSummary) {
	finished := sum.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	m.RunDuration.Set(finished.Sub(sum.StartedAt).Seconds())
	m.LastRunTime.Set(float64(finished.Unix()))
	if sum.Status == model.RunStatusComplete {
		m.LastRunSuccess.Set(1)
	} else {
		m.LastRunSuccess.Set(0)
	}
}

// WriteTextfile writes every series to path. The write goes through a
// temporary file so node_exporter never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return eris.Wrapf(err, "metrics: write %s", path)
	}
	return nil
}
