package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	result   *services.IngestResult
	err      error
	filename string
	body     []byte
	calls    int
}

func (f *fakeIngester) Ingest(_ context.Context, filename string, r io.Reader) (*services.IngestResult, error) {
	f.calls++
	f.filename = filename
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	f.body = b
	return f.result, f.err
}

type fakeStats struct {
	stats *models.Stats
	err   error
}

func (f *fakeStats) Stats(context.Context) (*models.Stats, error) { return f.stats, f.err }

type fakeAnswerer struct {
	questions []string
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) string {
	f.questions = append(f.questions, question)
	return "answer to: " + question
}

type testServer struct {
	ingester *fakeIngester
	stats    *fakeStats
	answerer *fakeAnswerer
	handler  http.Handler
}

func newTestServer(maxUpload int64) *testServer {
	ts := &testServer{
		ingester: &fakeIngester{result: &services.IngestResult{RecordsProcessed: 12}},
		stats:    &fakeStats{stats: models.EmptyStats()},
		answerer: &fakeAnswerer{},
	}
	h := NewHandlers(ts.ingester, ts.stats, ts.answerer, maxUpload, nil)
	ts.handler = NewRouter(h, nil)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	rec := newTestServer(0).do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"gazette-results"}`, rec.Body.String())
}

func TestUpload_Success(t *testing.T) {
	ts := newTestServer(1 << 20)
	rec := ts.do(multipartRequest(t, "file", "gazette.pdf", []byte("%PDF-1.4 test")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"success","records_processed":12}`, rec.Body.String())
	assert.Equal(t, "gazette.pdf", ts.ingester.filename)
	assert.Equal(t, "%PDF-1.4 test", string(ts.ingester.body))
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(1 << 20)
	rec := ts.do(multipartRequest(t, "document", "gazette.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"no file uploaded"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("not a form"))
	req.Header.Set("Content-Type", "text/plain")
	rec = ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, ts.ingester.calls)
}

func TestUpload_TooLarge(t *testing.T) {
	ts := newTestServer(64)
	rec := ts.do(multipartRequest(t, "file", "big.pdf", bytes.Repeat([]byte("x"), 4096)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "detail")
	assert.Equal(t, 0, ts.ingester.calls)
}

func TestUpload_IngestFailure(t *testing.T) {
	ts := newTestServer(1 << 20)
	ts.ingester.result = nil
	ts.ingester.err = errors.New("failed to stage document: permission denied")

	rec := ts.do(multipartRequest(t, "file", "gazette.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"failed to stage document: permission denied"}`, rec.Body.String())
}

func TestStats(t *testing.T) {
	ts := newTestServer(0)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total":0,"avg_cgpa":0,"pass_fail":[],"cgpa_dist":[]}`, rec.Body.String())

	ts.stats.err = errors.New("database is locked")
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"database is locked"}`, rec.Body.String())
}

func TestChat(t *testing.T) {
	ts := newTestServer(0)
	rec := ts.do(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query":"Who topped?"}`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"answer to: Who topped?"}`, rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"query":`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, ts.answerer.questions, 1)
}

func TestRouter_MethodsAndCORS(t *testing.T) {
	ts := newTestServer(0)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	rec = ts.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = ts.do(req)
	assert.Less(t, rec.Code, 300)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
