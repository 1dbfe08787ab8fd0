package normalize

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/mre-cli/internal/model"
)

// RecordSet holds at most one record per uniqueness key.
type RecordSet struct {
	records   map[model.RecordKey]model.MRERecord
	conflicts int
	kept      int
}

// NewRecordSet creates an empty RecordSet.
func NewRecordSet() *RecordSet {
	return &RecordSet{records: make(map[model.RecordKey]model.MRERecord)}
}

// Put stores r. A later record for an existing key replaces the earlier one;
// a replacement with different values is counted and logged as a conflict.
func (s *RecordSet) Put(r model.MRERecord) {
	key := r.Key()
	if prev, ok := s.records[key]; ok && !prev.SameValues(r) {
		s.conflicts++
		zap.L().Warn("normalize: conflicting values for record, keeping later",
			zap.String("key", key.String()),
			zap.String("previous_document", prev.DocumentID),
			zap.Int("previous_page", prev.PageNumber),
			zap.Float64("previous_tonnage_t", prev.Tonnage),
			zap.Float64("previous_grade_gpt", prev.Grade),
			zap.String("document", r.DocumentID),
			zap.Int("page", r.PageNumber),
			zap.Float64("tonnage_t", r.Tonnage),
			zap.Float64("grade_gpt", r.Grade),
		)
	}
	s.records[key] = r
}

// Fill stores r unless a parsed record already holds its key, and reports
// whether it was stored. Against another LLM record it behaves like Put.
func (s *RecordSet) Fill(r model.MRERecord) bool {
	key := r.Key()
	if prev, ok := s.records[key]; ok {
		if prev.Source == model.SourceLLM {
			s.Put(r)
			return true
		}
		s.kept++
		zap.L().Info("normalize: keeping existing record over gap-fill candidate",
			zap.String("key", key.String()),
			zap.String("kept_source", string(prev.Source)),
			zap.String("candidate_source", string(r.Source)),
			zap.String("document", r.DocumentID),
		)
		return false
	}
	s.records[key] = r
	return true
}

// Merge puts every record of o into s in key order.
func (s *RecordSet) Merge(o *RecordSet) {
	for _, r := range o.Records() {
		s.Put(r)
	}
	s.conflicts += o.conflicts
	s.kept += o.kept
}

// Records returns the records sorted by key.
func (s *RecordSet) Records() []model.MRERecord {
	out := make([]model.MRERecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// Len returns the number of records.
func (s *RecordSet) Len() int { return len(s.records) }

// Conflicts returns how many Puts replaced a record with different values.
func (s *RecordSet) Conflicts() int { return s.conflicts }

// Kept returns how many Fill candidates lost to a parsed record.
func (s *RecordSet) Kept() int { return s.kept }

// Company is the normalized view of one company's fragments.
type Company struct {
	Set      *RecordSet
	Skips    []model.Skip
	Unmapped []Unmapped
}

// Unmapped is a fragment the deterministic mapping could not use.
type Unmapped struct {
	Fragment model.RawTableFragment
	Reason   string
}

// Company normalizes one company's fragments in order. Later fragments win
// key collisions.
func (n *Normalizer) Company(frags []model.RawTableFragment) Company {
	c := Company{Set: NewRecordSet()}
	for _, f := range frags {
		res := n.Normalize(f)
		if res.Unmapped {
			c.Unmapped = append(c.Unmapped, Unmapped{Fragment: f, Reason: res.Reason})
			continue
		}
		for _, o := range res.Outcomes {
			if o.OK() {
				c.Set.Put(*o.Record)
				continue
			}
			c.Skips = append(c.Skips, *o.Skip)
			logSkip(*o.Skip)
		}
	}
	return c
}

func logSkip(s model.Skip) {
	fields := []zap.Field{
		zap.String("company", s.CompanyID),
		zap.String("document", s.DocumentID),
		zap.Int("page", s.PageNumber),
		zap.Int("row", s.Row),
		zap.String("kind", string(s.Kind)),
		zap.String("reason", s.Detail),
	}
	if s.Kind == model.SkipIgnored {
		zap.L().Debug("normalize: ignoring row", fields...)
		return
	}
	zap.L().Warn("normalize: dropping row", fields...)
}
