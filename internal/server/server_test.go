package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicelay/voicelay/internal/assemble"
	"github.com/voicelay/voicelay/internal/cache"
	"github.com/voicelay/voicelay/internal/chunkstore"
	"github.com/voicelay/voicelay/internal/convo"
	"github.com/voicelay/voicelay/internal/health"
	"github.com/voicelay/voicelay/internal/pipeline"
	"github.com/voicelay/voicelay/internal/synth"
	"github.com/voicelay/voicelay/pkg/audio"
	llmmock "github.com/voicelay/voicelay/pkg/provider/llm/mock"
	sttmock "github.com/voicelay/voicelay/pkg/provider/stt/mock"
	ttsmock "github.com/voicelay/voicelay/pkg/provider/tts/mock"
)

type fixture struct {
	stt     *sttmock.Provider
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chunks, err := chunkstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("chunkstore.New() error = %v", err)
	}
	replyCache, err := cache.New(t.TempDir(), true)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	f := &fixture{
		stt: &sttmock.Provider{Text: "merhaba"},
		llm: &llmmock.Provider{Reply: "selam"},
		tts: &ttsmock.Provider{},
	}
	f.tts.Audio = audio.EncodeWAV(audio.SamplesToBytes(make([]int16, 400)), 16000, 1)

	registry := convo.NewRegistry("seed", 0)
	asm := assemble.New(16000, 4.0, 32767)
	syn := synth.New(f.tts, replyCache.Dir(), 16000, 1.0, 2.0, 1.25)
	runner := pipeline.New(chunks, asm, registry, f.stt, f.llm, syn, replyCache, "tr", nil, nil)
	healthHandler := health.New(
		health.DirWritable("chunk_dir", chunks.Root()),
		health.DirWritable("cache_dir", replyCache.Dir()),
	)

	f.handler = New(chunks, runner, replyCache, registry, healthHandler, nil, nil).Handler()
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
	return body
}

func chunkBody() *bytes.Reader {
	return bytes.NewReader(audio.SamplesToBytes([]int16{100, 200, 300, 400}))
}

func TestChunkIngest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat", chunkBody()))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["message"] != "Chunk received" {
		t.Errorf("message = %v, want Chunk received", body["message"])
	}
	if body["filename"] == "" {
		t.Error("filename missing from response")
	}
}

func TestChunkIngestEmptyBody(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "No data received" {
		t.Errorf("error = %v, want No data received", body["error"])
	}
}

func TestEndWithoutChunks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat/end", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "No audio data found" {
		t.Errorf("error = %v, want No audio data found", body["error"])
	}
}

func TestFullExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat", chunkBody())); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat/end", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d; body %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["text"] != "merhaba" || body["response"] != "selam" {
		t.Errorf("result = %v, want merhaba/selam", body)
	}
	audioURL, _ := body["audio_url"].(string)
	if audioURL == "" {
		t.Fatal("audio_url missing")
	}

	// The reply downloads once, then is gone (serve-then-delete).
	dl := f.do(t, httptest.NewRequest(http.MethodGet, audioURL, nil))
	if dl.Code != http.StatusOK {
		t.Fatalf("download status = %d", dl.Code)
	}
	if ct := dl.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Content-Type = %q, want audio/wav", ct)
	}
	again := f.do(t, httptest.NewRequest(http.MethodGet, audioURL, nil))
	if again.Code != http.StatusNotFound {
		t.Errorf("second download status = %d, want 404", again.Code)
	}
}

func TestTranscriptionFailureExchange(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.stt.Text = ""
	if rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat", chunkBody())); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat/end", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["text"] != "" || body["response"] != "[Speech not understood]" || body["audio_url"] != "" {
		t.Errorf("result = %v, want empty/not-understood/empty", body)
	}

	// The chunk store must be empty afterward.
	status := decodeJSON(t, f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil)))
	if got := status["temp_files_count"].(float64); got != 0 {
		t.Errorf("temp_files_count = %v, want 0", got)
	}
}

func TestLatestWhenEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/response", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "No audio files available" {
		t.Errorf("error = %v, want No audio files available", body["error"])
	}
}

func TestResponseNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/response/unknown.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if body := decodeJSON(t, rec); body["error"] != "File not found" {
		t.Errorf("error = %v, want File not found", body["error"])
	}
}

func TestResponseRejectsTraversal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/response/%2e%2e%2fsecret.wav", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if rec := f.do(t, httptest.NewRequest(http.MethodPost, "/chat", chunkBody())); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "running" {
		t.Errorf("status = %v, want running", body["status"])
	}
	if got := body["temp_files_count"].(float64); got != 1 {
		t.Errorf("temp_files_count = %v, want 1", got)
	}
	if got := body["tts_files_count"].(float64); got != 0 {
		t.Errorf("tts_files_count = %v, want 0", got)
	}
}

func TestSessionIsolation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", chunkBody())
	req.Header.Set("X-Session-ID", "alice")
	if rec := f.do(t, req); rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d", rec.Code)
	}

	// Bob has no staged audio even though alice does.
	end := httptest.NewRequest(http.MethodPost, "/chat/end", nil)
	end.Header.Set("X-Session-ID", "bob")
	rec := f.do(t, end)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bob's end status = %d, want 400", rec.Code)
	}

	// Alice's utterance still goes through.
	end = httptest.NewRequest(http.MethodPost, "/chat/end", nil)
	end.Header.Set("X-Session-ID", "alice")
	if rec := f.do(t, end); rec.Code != http.StatusOK {
		t.Errorf("alice's end status = %d, want 200", rec.Code)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}
