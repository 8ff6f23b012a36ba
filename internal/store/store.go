// Package store persists student result records. Every backend replaces its whole
// contents atomically on ReplaceAll; there is no per-record update or delete.
package store

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Lllllllleong/gazetteflow/internal/models"
)

// Store is the record store used by ingestion, statistics and chat.
type Store interface {
	// ReplaceAll deletes every stored record and inserts records, in order, as one
	// atomic step. Readers observe either the old or the new set, never a mix.
	ReplaceAll(ctx context.Context, records []models.StudentRecord) error
	Count(ctx context.Context) (int, error)
	// AverageCGPA averages the records that carry a CGPA. ok is false when none do.
	AverageCGPA(ctx context.Context) (avg float64, ok bool, err error)
	CountByRemark(ctx context.Context) ([]models.RemarkCount, error)
	// CGPAValues projects the non-zero CGPA values in insertion order.
	CGPAValues(ctx context.Context) ([]float64, error)
	Find(ctx context.Context, q Query) ([]models.StudentRecord, error)
	Close() error
}

// SortField names a sortable record field.
type SortField string

const (
	SortNone       SortField = ""
	SortGrandTotal SortField = "grand_total"
	SortCGPA       SortField = "cgpa"
)

// Query selects records. Without a sort the insertion order is kept. Limit <= 0
// returns every match.
type Query struct {
	Filter     Filter
	Sort       SortField
	Descending bool
	Limit      int
}

// Filter matches records. Subject and Grade apply to the same subject entry, so
// {Subject: physics, Grade: A} means "got an A in physics".
type Filter struct {
	Name    *regexp.Regexp
	Remark  *regexp.Regexp
	Subject *regexp.Regexp
	Grade   string
}

// IsZero reports whether the filter matches every record.
func (f Filter) IsZero() bool {
	return f.Name == nil && f.Remark == nil && f.Subject == nil && f.Grade == ""
}

// Matches reports whether r satisfies every set condition.
func (f Filter) Matches(r models.StudentRecord) bool {
	if f.Name != nil && !f.Name.MatchString(r.Name) {
		return false
	}
	if f.Remark != nil && !f.Remark.MatchString(r.Remark) {
		return false
	}
	if f.Subject == nil && f.Grade == "" {
		return true
	}
	for _, s := range r.Subjects {
		if f.Subject != nil && !f.Subject.MatchString(s.Name) {
			continue
		}
		if f.Grade != "" && !strings.EqualFold(strings.TrimSpace(s.Grade), f.Grade) {
			continue
		}
		return true
	}
	return false
}

// CompilePattern builds a case-insensitive matcher. Patterns come from model output,
// so an invalid expression degrades to a literal substring match. Go's RE2 engine
// runs in linear time regardless of the pattern. An empty pattern yields nil.
func CompilePattern(pattern string) *regexp.Regexp {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	if re, err := regexp.Compile("(?i)" + pattern); err == nil {
		return re
	}
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(pattern))
}

// apply filters, sorts and limits records without modifying the input.
func apply(records []models.StudentRecord, q Query) []models.StudentRecord {
	out := make([]models.StudentRecord, 0, len(records))
	for _, r := range records {
		if q.Filter.Matches(r) {
			out = append(out, r)
		}
	}
	sortRecords(out, q.Sort, q.Descending)
	return limit(out, q.Limit)
}

func limit(records []models.StudentRecord, n int) []models.StudentRecord {
	if n > 0 && len(records) > n {
		return records[:n]
	}
	return records
}

// sortRecords orders by field, keeping insertion order for ties. Records without the
// field sort last in both directions.
func sortRecords(records []models.StudentRecord, field SortField, desc bool) {
	if field == SortNone {
		return
	}
	key := func(r models.StudentRecord) (float64, bool) {
		switch field {
		case SortGrandTotal:
			if r.GrandTotal != nil {
				return float64(*r.GrandTotal), true
			}
		case SortCGPA:
			if r.CGPA != nil {
				return *r.CGPA, true
			}
		}
		return 0, false
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, aok := key(records[i])
		b, bok := key(records[j])
		if aok != bok {
			return aok
		}
		if desc {
			return a > b
		}
		return a < b
	})
}

// groupRemarks turns remark counts into buckets ordered by count, then remark.
func groupRemarks(counts map[string]int) []models.RemarkCount {
	out := make([]models.RemarkCount, 0, len(counts))
	for remark, n := range counts {
		rc := models.RemarkCount{Count: n}
		if remark != "" {
			remark := remark
			rc.ID = &remark
		}
		out = append(out, rc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return remarkKey(out[i]) < remarkKey(out[j])
	})
	return out
}

func remarkKey(rc models.RemarkCount) string {
	if rc.ID == nil {
		return ""
	}
	return *rc.ID
}

// cloneRecords deep-copies records so callers cannot mutate stored state.
func cloneRecords(records []models.StudentRecord) []models.StudentRecord {
	out := make([]models.StudentRecord, len(records))
	for i, r := range records {
		out[i] = cloneRecord(r)
	}
	return out
}

func cloneRecord(r models.StudentRecord) models.StudentRecord {
	c := r
	if r.GrandTotal != nil {
		v := *r.GrandTotal
		c.GrandTotal = &v
	}
	if r.CGPA != nil {
		v := *r.CGPA
		c.CGPA = &v
	}
	if r.SGPA != nil {
		c.SGPA = append([]float64(nil), r.SGPA...)
	}
	c.Subjects = append([]models.SubjectScore{}, r.Subjects...)
	return c
}
