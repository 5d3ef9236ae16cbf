package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"sunkelo/internal/config"
	"sunkelo/internal/domain"
	"sunkelo/internal/ports"
	"sunkelo/internal/stream"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakePipeline struct {
	mu       sync.Mutex
	inputs   []domain.QueryInput
	products []string
	sources  []domain.NormalizedSource
}

func (f *fakePipeline) Run(_ context.Context, in domain.QueryInput, w *stream.Writer) error {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if in.InputError != nil {
		w.Error(stream.ErrorPayload{Code: domain.ErrInvalidInput, Message: in.InputError.Error()})
		w.Done(stream.DonePayload{})
		return nil
	}
	w.Status(stream.StatusListening, nil)
	w.Done(stream.DonePayload{Remaining: 4})
	return nil
}

func (f *fakePipeline) CollectSources(_ context.Context, productName string) []domain.NormalizedSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products = append(f.products, productName)
	return f.sources
}

func (f *fakePipeline) lastInput(t *testing.T) domain.QueryInput {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		t.Fatalf("pipeline was not called")
	}
	return f.inputs[len(f.inputs)-1]
}

type fakeAssets struct {
	assets map[string]domain.AudioAsset
	err    error
}

func (f *fakeAssets) SaveAsset(context.Context, domain.AudioAsset) error { return nil }

func (f *fakeAssets) GetAsset(_ context.Context, key string) (*domain.AudioAsset, error) {
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.assets[key]; ok {
		return &a, nil
	}
	return nil, nil
}

type pingFunc func() error

func (f pingFunc) Ping(context.Context) error { return f() }

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestQueryStreamsEvents(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{}
	handler := New(Deps{Pipeline: pipeline}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"text":"  Redmi Note 15 kaisa hai?  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache, no-transform" {
		t.Fatalf("unexpected cache control %q", got)
	}

	want := "event: status\ndata: {\"status\":\"listening\"}\n\n" +
		"event: done\ndata: {\"cached\":false,\"remaining\":4}\n\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected body:\n%q\nwant\n%q", rec.Body.String(), want)
	}

	in := pipeline.lastInput(t)
	if in.Text != "Redmi Note 15 kaisa hai?" || in.InputError != nil {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.CallerHash != hashOf("203.0.113.7") {
		t.Fatalf("caller should be the first forwarded address")
	}
}

func TestQueryInvalidBodies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{"not json", "text/plain", "hello", "request must be JSON {text} or multipart audio"},
		{"blank text", "application/json", `{"text":"   "}`, "text is required"},
		{"missing audio", "multipart/form-data; boundary=xyz", "--xyz--\r\n", "audio file is required"},
	}
	for _, tc := range cases {
		pipeline := &fakePipeline{}
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", tc.contentType)
		rec := httptest.NewRecorder()
		New(Deps{Pipeline: pipeline}).Handler().ServeHTTP(rec, req)

		in := pipeline.lastInput(t)
		if in.InputError == nil || in.InputError.Error() != tc.want {
			t.Fatalf("%s: unexpected input error %v", tc.name, in.InputError)
		}
		if !strings.Contains(rec.Body.String(), "event: error\n") || !strings.HasSuffix(rec.Body.String(), "\n\n") {
			t.Fatalf("%s: error should be streamed: %q", tc.name, rec.Body.String())
		}
	}
}

func multipartAudio(t *testing.T, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("audio", "query.webm")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(audio); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestQueryAudioUpload(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{}
	handler := New(Deps{Pipeline: pipeline, Config: config.ServerConfig{MaxAudioBytes: 8}}).Handler()

	body, contentType := multipartAudio(t, []byte("webm"))
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	req.Header.Set("Content-Type", contentType)
	req.RemoteAddr = "198.51.100.4:5555"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	in := pipeline.lastInput(t)
	if string(in.Audio) != "webm" || in.InputError != nil {
		t.Fatalf("unexpected input: %+v", in)
	}
	if in.CallerHash != hashOf("198.51.100.4") {
		t.Fatalf("caller should fall back to the remote host")
	}

	body, contentType = multipartAudio(t, []byte("much too long audio"))
	req = httptest.NewRequest(http.MethodPost, "/api/query", body)
	req.Header.Set("Content-Type", contentType)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if in := pipeline.lastInput(t); in.InputError == nil || len(in.Audio) != 0 {
		t.Fatalf("oversized audio should be rejected: %+v", in)
	}
}

func TestSources(t *testing.T) {
	t.Parallel()

	pipeline := &fakePipeline{sources: []domain.NormalizedSource{{
		ScrapedSource: domain.ScrapedSource{URL: "https://www.amazon.in/x", Title: "x", Type: domain.SourceEcommerce},
	}}}
	handler := New(Deps{Pipeline: pipeline}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sources", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sources", strings.NewReader(`{"productSlug":"redmi-note-15"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Product     string                    `json:"product"`
		ProductSlug string                    `json:"productSlug"`
		SourceCount int                       `json:"sourceCount"`
		Sources     []domain.NormalizedSource `json:"sources"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Product != "Redmi Note 15" || resp.ProductSlug != "redmi-note-15" || resp.SourceCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if pipeline.products[0] != "Redmi Note 15" {
		t.Fatalf("unexpected product passed to pipeline: %v", pipeline.products)
	}
}

func TestAudioEndpoint(t *testing.T) {
	t.Parallel()

	assets := &fakeAssets{assets: map[string]domain.AudioAsset{
		"tts_p_1-hi-IN-x.wav": {MimeType: "audio/wav", Data: []byte("RIFF")},
	}}
	handler := New(Deps{Pipeline: &fakePipeline{}, Assets: assets}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio/tts_p_1-hi-IN-x.wav", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "RIFF" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "audio/wav" || rec.Header().Get("Cache-Control") != "public, max-age=86400" {
		t.Fatalf("unexpected headers: %v", rec.Header())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio/missing.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	assets.err = errors.New("db down")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audio/tts_p_1-hi-IN-x.wav", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	redisErr := error(nil)
	handler := New(Deps{Pipeline: &fakePipeline{}, Health: map[string]ports.HealthChecker{
		"postgres": pingFunc(func() error { return nil }),
		"redis":    pingFunc(func() error { return redisErr }),
	}}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	redisErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), `"status":"degraded"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"postgres":"ok"`) {
		t.Fatalf("healthy dependency should still be reported: %s", rec.Body.String())
	}
}

func TestCallerHashFallbacks(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ""
	if got := CallerHash(req); got != hashOf("unknown") {
		t.Fatalf("missing address should hash unknown")
	}
	req.RemoteAddr = "bare-host"
	if got := CallerHash(req); got != hashOf("bare-host") {
		t.Fatalf("unparseable address should be used as is")
	}
}
