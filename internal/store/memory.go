package store

import (
	"context"
	"sync"

	"github.com/Lllllllleong/gazetteflow/internal/models"
)

// Memory is a process-local Store, used for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	records []models.StudentRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) ReplaceAll(_ context.Context, records []models.StudentRecord) error {
	next := cloneRecords(records)
	m.mu.Lock()
	m.records = next
	m.mu.Unlock()
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *Memory) AverageCGPA(_ context.Context) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	var n int
	for _, r := range m.records {
		if r.CGPA != nil {
			sum += *r.CGPA
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (m *Memory) CountByRemark(_ context.Context) ([]models.RemarkCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range m.records {
		counts[r.Remark]++
	}
	return groupRemarks(counts), nil
}

func (m *Memory) CGPAValues(_ context.Context) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make([]float64, 0, len(m.records))
	for _, r := range m.records {
		if r.HasCGPA() {
			values = append(values, *r.CGPA)
		}
	}
	return values, nil
}

func (m *Memory) Find(_ context.Context, q Query) ([]models.StudentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRecords(apply(m.records, q)), nil
}

func (m *Memory) Close() error { return nil }
