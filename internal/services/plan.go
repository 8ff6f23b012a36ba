package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/store"
)

// PlanOp is one of the operations a query plan may request.
type PlanOp string

const (
	OpFindStudent  PlanOp = "find_student"
	OpFindStudents PlanOp = "find_students"
	OpCount        PlanOp = "count"
	OpTop          PlanOp = "top"
)

// MaxPlanLimit bounds how many records a single plan can return.
const MaxPlanLimit = 50

// ErrUnsafeQuery is returned for planner output that is not an allowed query plan.
var ErrUnsafeQuery = errors.New("query plan rejected")

// QueryPlan is the structured query the planner model emits. It is data, never code:
// the only way it reaches the store is through Execute.
type QueryPlan struct {
	Op      PlanOp `json:"op"`
	Name    string `json:"name,omitempty"`
	Subject string `json:"subject,omitempty"`
	Grade   string `json:"grade,omitempty"`
	Remark  string `json:"remark,omitempty"`
	SortBy  string `json:"sort_by,omitempty"`
	Order   string `json:"order,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// ParsePlan is the allow-list gate. The text must be a single JSON object that
// validates against the plan schema; anything else wraps ErrUnsafeQuery.
func ParsePlan(text string) (*QueryPlan, error) {
	cleaned := trimFences(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, fmt.Errorf("%w: not a JSON object", ErrUnsafeQuery)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	// Planners fill unused fields with null; an absent field means the same thing.
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	if err := validateJSON(planSchema, data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var plan QueryPlan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsafeQuery, err)
	}
	if plan.Op == OpFindStudent && strings.TrimSpace(plan.Name) == "" {
		return nil, fmt.Errorf("%w: find_student needs a name", ErrUnsafeQuery)
	}
	return &plan, nil
}

func (p *QueryPlan) filter() store.Filter {
	return store.Filter{
		Name:    store.CompilePattern(p.Name),
		Remark:  store.CompilePattern(p.Remark),
		Subject: store.CompilePattern(p.Subject),
		Grade:   strings.TrimSpace(p.Grade),
	}
}

// Query converts the plan to a store query. Count plans use the same filter with
// no limit.
func (p *QueryPlan) Query() store.Query {
	q := store.Query{Filter: p.filter()}
	switch p.Op {
	case OpFindStudent:
		q.Limit = 1
	case OpFindStudents:
		q.Limit = clampLimit(p.Limit, MaxPlanLimit)
	case OpTop:
		q.Sort = store.SortGrandTotal
		if p.SortBy == string(store.SortCGPA) {
			q.Sort = store.SortCGPA
		}
		q.Descending = p.Order != "asc"
		q.Limit = clampLimit(p.Limit, 1)
	}
	return q
}

func clampLimit(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	if n > MaxPlanLimit {
		return MaxPlanLimit
	}
	return n
}

// PlanResult is the materialized outcome of a plan. Count is set only for count plans.
type PlanResult struct {
	Count   *int
	Records []models.StudentRecord
}

// Empty reports whether the plan matched nothing.
func (r *PlanResult) Empty() bool {
	if r.Count != nil {
		return *r.Count == 0
	}
	return len(r.Records) == 0
}

// MarshalJSON renders the result as the data shown to the answer model.
func (r *PlanResult) MarshalJSON() ([]byte, error) {
	if r.Count != nil {
		return json.Marshal(map[string]int{"count": *r.Count})
	}
	records := r.Records
	if records == nil {
		records = []models.StudentRecord{}
	}
	return json.Marshal(records)
}

// Execute runs the plan against st. It is the only dispatcher from plans to the store.
func (p *QueryPlan) Execute(ctx context.Context, st store.Store) (*PlanResult, error) {
	q := p.Query()
	switch p.Op {
	case OpCount:
		var n int
		var err error
		if q.Filter.IsZero() {
			n, err = st.Count(ctx)
		} else {
			var records []models.StudentRecord
			records, err = st.Find(ctx, q)
			n = len(records)
		}
		if err != nil {
			return nil, err
		}
		return &PlanResult{Count: &n}, nil
	case OpFindStudent, OpFindStudents, OpTop:
		records, err := st.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		return &PlanResult{Records: records}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrUnsafeQuery, p.Op)
}
