package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/gateway/config"
	"github.com/alpha-ultimate/yusra/pkg/settings"
)

type fakeTransport struct {
	chunks   []string
	fullText string
	videoURI string
}

func (f *fakeTransport) Stream(_ context.Context, _ chat.StreamRequest, onChunk func(string)) (*chat.StreamResult, error) {
	for _, c := range f.chunks {
		onChunk(c)
	}
	return &chat.StreamResult{FullText: f.fullText}, nil
}

func (f *fakeTransport) Title(context.Context, string) (string, error) {
	return "Test Title", nil
}

func (f *fakeTransport) Speech(context.Context, string, string) ([]byte, error) {
	return []byte("RIFFfake"), nil
}

func (f *fakeTransport) Transcribe(context.Context, string, string) (string, error) {
	return "transcribed words", nil
}

func (f *fakeTransport) Analyze(context.Context, string, string, string) (string, error) {
	return "an image of a cat", nil
}

func (f *fakeTransport) GenerateVideo(context.Context, string, string) (string, error) {
	if f.videoURI == "" {
		return "", errors.New("no video configured")
	}
	return f.videoURI, nil
}

func testServer(t *testing.T, tr chat.Transport, opts ...func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Config{
		AuthMode:                 config.AuthModeDisabled,
		GeminiAPIKey:             "test",
		TitleTimeout:             time.Second,
		VoiceConversationTimeout: 20 * time.Second,
		VoiceRestartDelay:        time.Millisecond,
		LiveWriteTimeout:         time.Second,
		LivePingInterval:         time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	return New(cfg, Deps{Transport: tr}, logger).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	h := testServer(t, &fakeTransport{fullText: "hi"})

	rec := doJSON(t, h, http.MethodPost, "/v1/sessions", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	var created chat.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.Title != chat.PlaceholderTitle {
		t.Fatalf("title = %q", created.Title)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []chat.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = doJSON(t, h, http.MethodPatch, "/v1/sessions/"+created.ID, map[string]string{"title": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	var got chat.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if got.Title != "Renamed" {
		t.Fatalf("title = %q", got.Title)
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d", rec.Code)
	}
}

type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestSubmitStreamsSSE(t *testing.T) {
	h := testServer(t, &fakeTransport{
		chunks:   []string{"Hel", "Hello wor"},
		fullText: "Hello world.",
	})

	rec := doJSON(t, h, http.MethodPost, "/v1/messages", map[string]any{"text": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) != 4 {
		t.Fatalf("events = %d (%v), want meta + 2 chunks + done", len(events), events)
	}
	if events[0].name != "meta" || events[1].name != "chunk" || events[2].name != "chunk" || events[3].name != "done" {
		t.Fatalf("event order = %v", events)
	}

	var done chat.SubmitResult
	if err := json.Unmarshal([]byte(events[3].data), &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if done.AssistantMessage.Content != "Hello world." {
		t.Fatalf("final content = %q", done.AssistantMessage.Content)
	}
	if done.Failed {
		t.Fatal("unexpected Failed")
	}
}

func TestSubmitEmptyRejected(t *testing.T) {
	h := testServer(t, &fakeTransport{fullText: "x"})

	rec := doJSON(t, h, http.MethodPost, "/v1/messages", map[string]any{"text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestSubmitBodyOverLimitRejected(t *testing.T) {
	h := testServer(t, &fakeTransport{fullText: "x"}, func(cfg *config.Config) {
		cfg.MaxBodyBytes = 512
	})

	rec := doJSON(t, h, http.MethodPost, "/v1/messages", map[string]any{
		"text": strings.Repeat("a", 2048),
	})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := testServer(t, &fakeTransport{})

	rec := doJSON(t, h, http.MethodGet, "/v1/settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var prefs settings.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &prefs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if prefs != settings.Defaults() {
		t.Fatalf("fresh settings = %+v, want defaults", prefs)
	}

	prefs.Theme = settings.ThemeGold
	prefs.WakeWord = "Nova"
	rec = doJSON(t, h, http.MethodPut, "/v1/settings", prefs)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/settings", nil)
	var loaded settings.Settings
	if err := json.Unmarshal(rec.Body.Bytes(), &loaded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loaded.Theme != settings.ThemeGold || loaded.WakeWord != "Nova" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestTranscribeAndVision(t *testing.T) {
	h := testServer(t, &fakeTransport{})

	rec := doJSON(t, h, http.MethodPost, "/v1/transcribe", map[string]string{
		"mimeType": "audio/webm",
		"data":     "aGVsbG8=",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d: %s", rec.Code, rec.Body)
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["text"] != "transcribed words" {
		t.Fatalf("text = %q", out["text"])
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/vision", map[string]string{
		"prompt":   "what is this",
		"mimeType": "image/png",
		"data":     "aGVsbG8=",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("vision status = %d: %s", rec.Code, rec.Body)
	}
}

func TestSpeechReturnsWAV(t *testing.T) {
	h := testServer(t, &fakeTransport{})

	rec := doJSON(t, h, http.MethodPost, "/v1/speech", map[string]string{"text": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestVideoJobLifecycle(t *testing.T) {
	h := testServer(t, &fakeTransport{videoURI: "https://video.example/clip.mp4"})

	rec := doJSON(t, h, http.MethodPost, "/v1/videos", map[string]string{"prompt": "a sunrise"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	var job chat.VideoJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.ID == "" || job.Done {
		t.Fatalf("job = %+v", job)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec = doJSON(t, h, http.MethodGet, "/v1/videos/"+job.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
			t.Fatalf("decode poll: %v", err)
		}
		if job.Done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if job.URI != "https://video.example/clip.mp4" || job.Errmsg != "" {
		t.Fatalf("job = %+v", job)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/videos/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	h := testServer(t, &fakeTransport{})

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/readyz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz = %d: %s", rec.Code, rec.Body)
	}
}
