package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/danshapiro/gamecrew/internal/gateway"
	"github.com/danshapiro/gamecrew/internal/handoff"
	"github.com/danshapiro/gamecrew/internal/llm"
	"github.com/danshapiro/gamecrew/internal/roles"
	"github.com/danshapiro/gamecrew/web"
)

type scriptedInvoker struct {
	mu    sync.Mutex
	calls int
	msgs  []string
	hist  [][]llm.Message
	raw   string
	err   error
}

func (s *scriptedInvoker) Invoke(_ context.Context, role roles.Role, history []llm.Message, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.msgs = append(s.msgs, message)
	s.hist = append(s.hist, history)
	return s.raw, s.err
}

// newTestServer wires a real controller over a scripted backend.
func newTestServer(t *testing.T, inv *scriptedInvoker, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	reg, err := roles.DefaultRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	srv, err := New(Config{Addr: ":0", Model: "gemini-test", Provider: "fake"}, handoff.NewController(reg, inv), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return srv, ts
}

func postChat(t *testing.T, url string, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/api/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp, out
}

func TestIntegration_HealthEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &scriptedInvoker{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Model != "gemini-test" || !body.Credentials {
		t.Errorf("unexpected health: %+v", body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Errorf("missing %s header", RequestIDHeader)
	}
}

func TestIntegration_Roles(t *testing.T) {
	_, ts := newTestServer(t, &scriptedInvoker{})

	resp, err := http.Get(ts.URL + "/api/roles")
	if err != nil {
		t.Fatalf("GET /api/roles: %v", err)
	}
	defer resp.Body.Close()
	var body RolesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Roles) != 14 || body.Roles[0] != "Producer" || body.Terminal != "FINISH" {
		t.Fatalf("unexpected roles: %+v", body)
	}
}

func TestIntegration_ChatTurn(t *testing.T) {
	inv := &scriptedInvoker{raw: `{"thought":"t","content":"` + "```html\\n<p>hi</p>\\n```" + `","next_agent":"Technical QA"}`}
	_, ts := newTestServer(t, inv)

	resp, body := postChat(t, ts.URL, `{
  "agent": "Core Gameplay Developer",
  "user_input": "",
  "history": [
    {"role": "user", "parts": ["make snake"]},
    {"role": "model", "parts": [{"text": "{\"thought\":\"ok\",\"content\":\"plan\",\"next_agent\":\"Core Gameplay Developer\"}"}]}
  ]
}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["next_agent"] != "Technical QA" || body["thought"] != "t" {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["code_snippet"] != "\n<p>hi</p>\n" {
		t.Fatalf("code_snippet: %#v", body["code_snippet"])
	}
	if inv.calls != 1 || inv.msgs[0] != "" || len(inv.hist[0]) != 2 {
		t.Fatalf("invoker saw calls=%d msgs=%q hist=%v", inv.calls, inv.msgs, inv.hist)
	}
	if inv.hist[0][1].Role != llm.RoleModel {
		t.Fatalf("history role: %q", inv.hist[0][1].Role)
	}
}

func TestIntegration_ChatNullSnippet(t *testing.T) {
	inv := &scriptedInvoker{raw: "plain prose, not JSON"}
	_, ts := newTestServer(t, inv)

	resp, body := postChat(t, ts.URL, `{"agent":"Producer","user_input":"hi","history":[]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if v, ok := body["code_snippet"]; !ok || v != nil {
		t.Fatalf("code_snippet should be null: %#v", body)
	}
	if body["next_agent"] != "Producer" || body["content"] != "plain prose, not JSON" {
		t.Fatalf("fallback body: %v", body)
	}
}

func TestIntegration_UnknownAgent(t *testing.T) {
	inv := &scriptedInvoker{raw: "{}"}
	_, ts := newTestServer(t, inv)

	resp, body := postChat(t, ts.URL, `{"agent":"NotARole","user_input":"hi","history":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body["error"].(string), "NotARole") {
		t.Fatalf("error: %v", body)
	}
	if inv.calls != 0 {
		t.Fatalf("backend called %d times", inv.calls)
	}
}

func TestIntegration_GatewayFailure(t *testing.T) {
	inv := &scriptedInvoker{err: &gateway.GatewayError{Kind: gateway.KindQuota, Role: roles.Producer, Cause: errors.New("quota exceeded")}}
	_, ts := newTestServer(t, inv)

	resp, body := postChat(t, ts.URL, `{"agent":"Producer","user_input":"hi","history":[]}`)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if !strings.Contains(body["error"].(string), "quota exceeded") {
		t.Fatalf("error: %v", body)
	}
}

func TestIntegration_MissingCredentials(t *testing.T) {
	srv, err := New(Config{Addr: ":0"}, nil, WithCredentialError(&llm.ConfigurationError{Message: "GOOGLE_API_KEY not set"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	// Reported even for unknown agents.
	for _, agent := range []string{"Producer", "NotARole"} {
		resp, body := postChat(t, ts.URL, `{"agent":"`+agent+`","user_input":"","history":[]}`)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", agent, resp.StatusCode)
		}
		if !strings.Contains(body["error"].(string), "GOOGLE_API_KEY") {
			t.Fatalf("error: %v", body)
		}
	}
}

func TestIntegration_BadBodies(t *testing.T) {
	inv := &scriptedInvoker{raw: "{}"}
	_, ts := newTestServer(t, inv)

	for _, body := range []string{
		`not json`,
		`{"agent":"Producer"} {"agent":"Producer"}`,
		`{"agent":"Producer","history":[{"role":"user","parts":[7]}]}`,
	} {
		resp, _ := postChat(t, ts.URL, body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, resp.StatusCode)
		}
	}

	if inv.calls != 0 {
		t.Fatalf("backend called %d times", inv.calls)
	}
}

func TestIntegration_BodyTooLarge(t *testing.T) {
	inv := &scriptedInvoker{raw: "{}"}
	srv, _ := newTestServer(t, inv)

	big := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	body := `{"agent":"Producer","user_input":"` + string(big) + `"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if inv.calls != 0 {
		t.Fatalf("backend called %d times", inv.calls)
	}
}

func TestIntegration_CrossOriginBlocked(t *testing.T) {
	_, ts := newTestServer(t, &scriptedInvoker{raw: "{}"})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"agent":"Producer"}`))
	req.Header.Set("Origin", "https://evil.example")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestIntegration_StaticAssets(t *testing.T) {
	fsys := fstest.MapFS{
		"index.html":   {Data: []byte("<!DOCTYPE html><html></html>")},
		"app.js":       {Data: []byte("console.log(1)")},
		"notes/secret": {Data: []byte("nope")},
	}
	_, ts := newTestServer(t, &scriptedInvoker{}, WithStatic(fsys))

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("index: %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/index.html", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("conditional GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/notes/secret")
	if err != nil {
		t.Fatalf("GET secret: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unlisted file served: %d", resp.StatusCode)
	}
}

func TestIntegration_EmbeddedUI(t *testing.T) {
	a, err := loadStatic(web.Static(), nil)
	if err != nil {
		t.Fatalf("loadStatic: %v", err)
	}
	names := strings.Join(a.Names(), ",")
	for _, want := range []string{"index.html", "app.js", "style.css"} {
		if !strings.Contains(names, want) {
			t.Fatalf("missing %s in %s", want, names)
		}
	}
}

func TestIntegration_InvalidGlob(t *testing.T) {
	_, err := New(Config{StaticGlobs: []string{"[broken"}}, &scriptedHandler{}, WithStatic(fstest.MapFS{}))
	if err == nil {
		t.Fatalf("expected invalid glob error")
	}
}

type scriptedHandler struct{}

func (scriptedHandler) Handle(context.Context, handoff.TurnRequest) (handoff.TurnResult, error) {
	return handoff.TurnResult{NextRole: roles.Finish}, nil
}
