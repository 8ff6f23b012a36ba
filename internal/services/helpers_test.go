package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/store"
)

// fakeGenerator replays canned responses in order and records every request.
type fakeGenerator struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     [][]genai.Part
}

func (f *fakeGenerator) Generate(_ context.Context, parts ...genai.Part) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.calls)
	f.calls = append(f.calls, parts)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	if len(f.responses) > 0 {
		return f.responses[len(f.responses)-1], nil
	}
	return "", errors.New("fakeGenerator: no response configured")
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGenerator) prompt(call int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, p := range f.calls[call] {
		if t, ok := p.(genai.Text); ok {
			buf.WriteString(string(t))
		}
	}
	return buf.String()
}

type fakeStager struct {
	stageErr error
	staged   []string
	released []models.DocumentRef
}

func (f *fakeStager) Stage(_ context.Context, localPath string) (models.DocumentRef, error) {
	if f.stageErr != nil {
		return models.DocumentRef{}, f.stageErr
	}
	f.staged = append(f.staged, localPath)
	n := len(f.staged)
	return models.DocumentRef{
		URI:      fmt.Sprintf("gs://staging-bucket/staging/doc-%d.pdf", n),
		MIMEType: "application/pdf",
		Object:   fmt.Sprintf("staging/doc-%d.pdf", n),
	}, nil
}

func (f *fakeStager) Release(_ context.Context, ref models.DocumentRef) error {
	f.released = append(f.released, ref)
	return nil
}

type pageResult struct {
	records []models.StudentRecord
	err     error
}

// fakeExtractor returns per-page canned results; pages without an entry are empty.
type fakeExtractor struct {
	pages  map[int]pageResult
	called []int
	onCall func(page int)
}

func (f *fakeExtractor) ExtractPage(_ context.Context, _ models.DocumentRef, page int) ([]models.StudentRecord, error) {
	f.called = append(f.called, page)
	if f.onCall != nil {
		f.onCall(page)
	}
	r := f.pages[page]
	return r.records, r.err
}

// spyStore wraps a store and counts calls; err, when set, fails every call.
type spyStore struct {
	store.Store
	mu       sync.Mutex
	finds    int
	replaces int
	err      error
}

func newSpyStore() *spyStore { return &spyStore{Store: store.NewMemory()} }

func (s *spyStore) ReplaceAll(ctx context.Context, records []models.StudentRecord) error {
	s.mu.Lock()
	s.replaces++
	s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return s.Store.ReplaceAll(ctx, records)
}

func (s *spyStore) Find(ctx context.Context, q store.Query) ([]models.StudentRecord, error) {
	s.mu.Lock()
	s.finds++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.Find(ctx, q)
}

func (s *spyStore) Count(ctx context.Context) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.Store.Count(ctx)
}

func (s *spyStore) CountByRemark(ctx context.Context) ([]models.RemarkCount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.Store.CountByRemark(ctx)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func record(seat, name string, total int, cgpa float64, remark string, subjects ...models.SubjectScore) models.StudentRecord {
	if subjects == nil {
		subjects = []models.SubjectScore{}
	}
	return models.StudentRecord{
		SeatNo:     seat,
		Name:       name,
		GrandTotal: intPtr(total),
		CGPA:       floatPtr(cgpa),
		Remark:     remark,
		Subjects:   subjects,
	}
}

// buildPDF writes a minimal well-formed PDF with n blank pages.
func buildPDF(n int) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, n+2)
	buf.WriteString("%PDF-1.4\n")

	writeObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := ""
	for i := 0; i < n; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, n))
	for i := 0; i < n; i++ {
		writeObj(i+3, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	xref := buf.Len()
	size := n + 3
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)
	return buf.Bytes()
}
