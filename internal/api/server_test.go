package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/parthib/anysite/internal/auth"
	"github.com/parthib/anysite/internal/generate"
	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/log"
	"github.com/parthib/anysite/internal/quota"
	"github.com/parthib/anysite/internal/share"
	"github.com/parthib/anysite/internal/version"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*http2clientConnReadLoop).run"),
	)
}

// testStack bundles the server under test with its collaborators.
type testStack struct {
	server   *httptest.Server
	versions *version.Store
}

// newTestStack wires a full server over the given inference endpoint.
func newTestStack(t *testing.T, inferenceURL string, opts ...func(*ServerConfig)) *testStack {
	t.Helper()

	versions := version.NewStore(version.NewMemoryKV())
	gate := quota.NewGate(nil, 50, 0, log.NewNop())
	resolver := auth.NewResolver(gate, "test-secret", false, "bypass-tok", "")
	runner := generate.NewRunner(inference.NewClient(inferenceURL), versions, 0, log.NewNop())

	cfg := ServerConfig{
		Logger:   log.NewNop(),
		Resolver: resolver,
		Runner:   runner,
		Versions: versions,
		IsDev:    true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testStack{server: ts, versions: versions}
}

// streamingUpstream fakes the inference backend.
func streamingUpstream(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			io.WriteString(w, c)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp, err := http.Get(stack.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestGenerateCode_StreamsAndCommits(t *testing.T) {
	upstream := streamingUpstream(t, "<!DOCTYPE html><html><body>", "Hi</body></html>")
	stack := newTestStack(t, upstream.URL)

	resp := postJSON(t, stack.server.URL+"/api/generate-code", `{"prompt":"a page"}`)
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", got)
	}

	raw, _ := io.ReadAll(resp.Body)
	events := string(raw)
	if !strings.Contains(events, "event: partial") {
		t.Error("stream should carry at least one partial event")
	}
	if !strings.Contains(events, "event: done") {
		t.Fatalf("stream should end with a done event, got:\n%s", events)
	}
	// json.Marshal escapes angle brackets, so check the fields rather than
	// raw markup.
	if !strings.Contains(events, `"versionId"`) {
		t.Errorf("done event should carry the version id, got:\n%s", events)
	}

	// The commit landed in the version log.
	entries, err := stack.versions.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("version log has %d entries, want 1", len(entries))
	}
	if entries[0].Code != "<!DOCTYPE html><html><body>Hi</body></html>" {
		t.Errorf("committed code = %q", entries[0].Code)
	}
}

func TestGenerateCode_MissingPrompt(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp := postJSON(t, stack.server.URL+"/api/generate-code", `{"html":"<html></html>"}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Message != "Missing required fields" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestGenerateCode_ContextTooLong(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	payload, _ := json.Marshal(map[string]string{
		"prompt": "hi",
		"html":   strings.Repeat("x", 60_000),
	})
	resp := postJSON(t, stack.server.URL+"/api/generate-code", string(payload))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	var body errorBody
	json.NewDecoder(resp.Body).Decode(&body)
	if !body.OpenSelectProvider {
		t.Error("context overflow should offer a model switch")
	}
	if !strings.Contains(body.Message, "Context is too long") {
		t.Errorf("message = %q", body.Message)
	}
}

func TestGenerateCode_UpstreamErrorFrame(t *testing.T) {
	upstream := streamingUpstream(t, `{"type":"error","message":"exceeded your monthly included credits"}`)
	stack := newTestStack(t, upstream.URL)

	resp := postJSON(t, stack.server.URL+"/api/generate-code", `{"prompt":"a page"}`)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	events := string(raw)
	if !strings.Contains(events, "event: error") {
		t.Fatalf("stream should carry an error event, got:\n%s", events)
	}
	if !strings.Contains(events, "monthly included credits") {
		t.Errorf("error event should surface the upstream message, got:\n%s", events)
	}
}

func TestImprovePrompt(t *testing.T) {
	upstream := streamingUpstream(t, "Build a ", "brutalist landing page")
	stack := newTestStack(t, upstream.URL)

	resp := postJSON(t, stack.server.URL+"/api/improve-prompt", `{"prompt":"make site"}`)
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	events := string(raw)
	if !strings.Contains(events, "event: delta") {
		t.Error("stream should carry delta events")
	}
	if !strings.Contains(events, "event: done") {
		t.Fatalf("stream should end with a done event, got:\n%s", events)
	}
	if !strings.Contains(events, "Build a brutalist landing page") {
		t.Errorf("done event should carry the improved prompt, got:\n%s", events)
	}
}

func TestCheckBypass(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp, err := http.Get(stack.server.URL + "/api/auth/check-bypass")
	if err != nil {
		t.Fatalf("GET check-bypass: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "true" {
		t.Errorf("body = %q, want true", raw)
	}
}

func TestVersionEndpoints(t *testing.T) {
	upstream := streamingUpstream(t, "<!DOCTYPE html><html><body>v</body></html>")
	stack := newTestStack(t, upstream.URL)

	// Seed one committed version through the pipeline.
	resp := postJSON(t, stack.server.URL+"/api/generate-code", `{"prompt":"a page"}`)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// List: one entry, oldest is v0.
	resp, err := http.Get(stack.server.URL + "/api/versions")
	if err != nil {
		t.Fatalf("GET versions: %v", err)
	}
	var list struct {
		Versions []versionItem `json:"versions"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()

	if len(list.Versions) != 1 {
		t.Fatalf("got %d versions, want 1", len(list.Versions))
	}
	v := list.Versions[0]
	if v.Name != "v0" {
		t.Errorf("name = %q, want v0", v.Name)
	}

	// Get by id.
	resp, err = http.Get(stack.server.URL + "/api/versions/" + v.ID)
	if err != nil {
		t.Fatalf("GET version: %v", err)
	}
	var single versionItem
	json.NewDecoder(resp.Body).Decode(&single)
	resp.Body.Close()
	if single.ID != v.ID || single.Prompt != "a page" {
		t.Errorf("single = %+v", single)
	}

	// Manual edit.
	req, _ := http.NewRequest(http.MethodPatch, stack.server.URL+"/api/versions/"+v.ID,
		strings.NewReader(`{"code":"<html>edited</html>"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH version: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH status = %d", resp.StatusCode)
	}

	edited, err := stack.versions.Select(v.ID)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if edited.Code != "<html>edited</html>" {
		t.Errorf("edited code = %q", edited.Code)
	}

	// Clear all.
	req, _ = http.NewRequest(http.MethodDelete, stack.server.URL+"/api/versions", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE versions: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	entries, _ := stack.versions.List()
	if len(entries) != 0 {
		t.Errorf("version log has %d entries after clear, want 0", len(entries))
	}
}

func TestVersionList_EmptyServesDefaultDocument(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp, err := http.Get(stack.server.URL + "/api/versions")
	if err != nil {
		t.Fatalf("GET versions: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Versions    []versionItem `json:"versions"`
		DefaultHTML string        `json:"defaultHtml"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if len(body.Versions) != 0 {
		t.Fatalf("got %d versions, want 0", len(body.Versions))
	}
	if !strings.Contains(body.DefaultHTML, "<!DOCTYPE html>") {
		t.Error("empty history should serve the default document")
	}
}

func TestVersionGet_NotFound(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp, err := http.Get(stack.server.URL + "/api/versions/12345")
	if err != nil {
		t.Fatalf("GET version: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestShareLink(t *testing.T) {
	gallery := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-token"); got != "gallery-tok" {
			t.Errorf("x-token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"url":"https://gallery.example/p/x.html"}}`))
	}))
	t.Cleanup(gallery.Close)

	stack := newTestStack(t, "http://127.0.0.1:0", func(cfg *ServerConfig) {
		cfg.Gallery = share.NewClient(gallery.URL, "gallery-tok")
	})

	resp := postJSON(t, stack.server.URL+"/api/share-link", `{"code":"<html></html>"}`)
	defer resp.Body.Close()

	var result share.Result
	json.NewDecoder(resp.Body).Decode(&result)
	if !result.Success || result.Data.URL == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestRateLimit(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0", func(cfg *ServerConfig) {
		cfg.RateBurst = 2
	})

	url := stack.server.URL + "/api/versions"
	var last *http.Response
	for range 3 {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET versions: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		last = resp
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last.StatusCode)
	}
	if last.Header.Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
}

func TestCORSPreflight(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0", func(cfg *ServerConfig) {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	})

	req, _ := http.NewRequest(http.MethodOptions, stack.server.URL+"/api/generate-code", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRequestIDHeader(t *testing.T) {
	stack := newTestStack(t, "http://127.0.0.1:0")

	resp, err := http.Get(stack.server.URL + "/api/versions")
	if err != nil {
		t.Fatalf("GET versions: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header should be set")
	}
}

func TestNewServer_RequiredCollaborators(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() without collaborators should fail")
	}
}
