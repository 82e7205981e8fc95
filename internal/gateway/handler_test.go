package gateway

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/modelgate/modelgate/internal/api/openai"
	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/recording"
	"github.com/modelgate/modelgate/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loadRegistry(t *testing.T, upstreamURL string) *registry.Registry {
	t.Helper()
	yaml := fmt.Sprintf(`
models:
  gpt-large:
    backend: responses
    native_model: gpt-5
    reasoning_effort: medium
    base_url: %s
  kimi:
    backend: passthrough
    native_model: moonshot-v1-128k
    base_url: %s
`, upstreamURL, upstreamURL)

	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write models: %v", err)
	}
	reg, err := registry.Load(path)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return reg
}

func testUpstreamConfig() config.UpstreamConfig {
	return config.UpstreamConfig{
		Responses: config.ResponsesConfig{
			APIKey:         "up-key",
			APIVersion:     "2025-04-01-preview",
			SummaryLevel:   "detailed",
			VerbosityLevel: "medium",
			Truncation:     "disabled",
		},
		Messages:    config.MessagesConfig{APIKey: "up-key", Version: "2023-06-01"},
		Passthrough: config.PassthroughConfig{APIKey: "up-key", APIVersion: "2024-05-01-preview"},
	}
}

func newTestRouter(t *testing.T, upstreamURL string) *chi.Mux {
	t.Helper()
	h := NewHandler(loadRegistry(t, upstreamURL), testUpstreamConfig(), testLogger(),
		WithCompletionLogging(false))
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func postCompletion(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *openai.APIError {
	t.Helper()
	var envelope openai.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, rec.Body.String())
	}
	if envelope.Error == nil {
		t.Fatalf("missing error in envelope %q", rec.Body.String())
	}
	return envelope.Error
}

func TestChatCompletionsMissingModel(t *testing.T) {
	router := newTestRouter(t, "http://unused.invalid")

	rec := postCompletion(t, router, `{"messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Type != "invalid_request_error" || apiErr.Param != "model" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestChatCompletionsInvalidBody(t *testing.T) {
	router := newTestRouter(t, "http://unused.invalid")

	rec := postCompletion(t, router, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestChatCompletionsUnknownModel(t *testing.T) {
	router := newTestRouter(t, "http://unused.invalid")

	rec := postCompletion(t, router, `{"model":"nope","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Code != "model_not_found" {
		t.Errorf("expected model_not_found code, got %q", apiErr.Code)
	}
	if !strings.Contains(apiErr.Message, "gpt-large") || !strings.Contains(apiErr.Message, "kimi") {
		t.Errorf("error must enumerate available models, got %q", apiErr.Message)
	}
}

func TestChatCompletionsStreamsTranslatedChunks(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-key"); got != "up-key" {
			t.Errorf("upstream expected api-key header, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response.created\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hello\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.completed\"}\n\n")
	}))
	defer upstream.Close()

	router := newTestRouter(t, upstream.URL)

	rec := postCompletion(t, router, `{"model":"gpt-large","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Errorf("unexpected content type %q", got)
	}

	body := rec.Body.String()
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream must end with the sentinel, got %q", body)
	}
	if !strings.Contains(body, `"content":"Hello"`) {
		t.Errorf("expected translated content chunk, got %q", body)
	}
	if !strings.Contains(body, `"finish_reason":"stop"`) {
		t.Errorf("expected finish chunk, got %q", body)
	}
}

func TestChatCompletionsPassthroughVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"model":"moonshot-v1-128k"`) {
			t.Errorf("expected substituted model in upstream body, got %s", body)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer up-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"chatcmpl-up\",\"unmodeled\":true}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer upstream.Close()

	router := newTestRouter(t, upstream.URL)

	rec := postCompletion(t, router, `{"model":"kimi","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `{"id":"chatcmpl-up","unmodeled":true}`) {
		t.Errorf("passthrough frames must be verbatim, got %q", rec.Body.String())
	}
}

func TestChatCompletionsUpstream401Becomes400(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad upstream key","type":"invalid_request_error"}}`)
	}))
	defer upstream.Close()

	router := newTestRouter(t, upstream.URL)

	rec := postCompletion(t, router, `{"model":"gpt-large","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("upstream 401 must surface as 400, got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Message != "bad upstream key" {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
}

func TestChatCompletionsUpstream429Passes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `rate limited`)
	}))
	defer upstream.Close()

	router := newTestRouter(t, upstream.URL)

	rec := postCompletion(t, router, `{"model":"gpt-large","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 to pass through, got %d", rec.Code)
	}
	apiErr := decodeError(t, rec)
	if apiErr.Type != "upstream_error" {
		t.Errorf("non-JSON upstream bodies wrap as upstream_error, got %+v", apiErr)
	}
}

func TestChatCompletionsClientDisconnectClosesUpstream(t *testing.T) {
	upstreamGone := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"type\":\"response.created\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(upstreamGone)
	}))
	defer upstream.Close()

	front := httptest.NewServer(newTestRouter(t, upstream.URL))
	defer front.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "POST", front.URL+"/v1/chat/completions",
		strings.NewReader(`{"model":"gpt-large","messages":[{"role":"user","content":"hi"}]}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	// Read one frame, then drop the connection mid-stream.
	if _, err := bufio.NewReader(resp.Body).ReadString('\n'); err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	cancel()

	select {
	case <-upstreamGone:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream request was not cancelled after the client went away")
	}
}

func TestChatCompletionsRecordsRedactedExchange(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"response.created\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.output_text.delta\",\"delta\":\"Hello\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"response.completed\"}\n\n")
	}))
	defer upstream.Close()

	dbPath := filepath.Join(t.TempDir(), "recordings.db")
	recorder, err := recording.New(dbPath, testLogger())
	if err != nil {
		t.Fatalf("recording.New: %v", err)
	}

	h := NewHandler(loadRegistry(t, upstream.URL), testUpstreamConfig(), testLogger(),
		WithCompletionLogging(false), WithRecorder(recorder))
	router := chi.NewRouter()
	h.Register(router)

	rec := postCompletion(t, router, `{"model":"gpt-large","messages":[{"role":"user","content":"hi"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Close drains the write queue before the read below.
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	var status, headers string
	row := db.QueryRow(`SELECT status, request_headers FROM recordings`)
	if err := row.Scan(&status, &headers); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "completed" {
		t.Errorf("expected completed status, got %q", status)
	}
	if strings.Contains(headers, "up-key") {
		t.Errorf("upstream key must not be persisted, got %q", headers)
	}
	if !strings.Contains(headers, "REDACTED") {
		t.Errorf("expected redacted credential header, got %q", headers)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, "http://unused.invalid")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestListModels(t *testing.T) {
	router := newTestRouter(t, "http://unused.invalid")

	req := httptest.NewRequest("GET", "/v1/models", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var list openai.ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Data[0].ID != "gpt-large" || list.Data[1].ID != "kimi" {
		t.Errorf("models must be sorted by alias, got %+v", list.Data)
	}
}
