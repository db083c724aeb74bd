package generate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/reconcile"
	"github.com/parthib/anysite/internal/stream"
	"github.com/parthib/anysite/internal/version"
)

// captureSink records partial pushes and signals the first one.
type captureSink struct {
	mu    sync.Mutex
	snaps []reconcile.Snapshot
	first chan struct{}
	once  sync.Once
}

func newCaptureSink() *captureSink {
	return &captureSink{first: make(chan struct{})}
}

func (s *captureSink) Partial(snap reconcile.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	s.once.Do(func() { close(s.first) })
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

// streamServer streams the given chunks with a flush between each.
func streamServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, c := range chunks {
			io.WriteString(w, c)
			flusher.Flush()
		}
	}))
}

func newRunner(endpoint string, idleTimeout time.Duration) (*Runner, *version.Store) {
	versions := version.NewStore(version.NewMemoryKV())
	return NewRunner(inference.NewClient(endpoint), versions, idleTimeout, nil), versions
}

func TestRun_CommitsVersion(t *testing.T) {
	srv := streamServer(t, "<!DOCTYPE html><html><body>", "Hi</body></html>")
	defer srv.Close()

	r, versions := newRunner(srv.URL, 0)
	sink := newCaptureSink()
	result, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, sink)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := "<!DOCTYPE html><html><body>Hi</body></html>"
	if result.HTML != want {
		t.Errorf("Run() HTML = %q, want %q", result.HTML, want)
	}
	if sink.count() == 0 {
		t.Error("expected at least one partial render push")
	}

	committed, err := versions.Select(result.VersionID)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if committed.Code != want {
		t.Errorf("committed code = %q, want %q", committed.Code, want)
	}
	if committed.Prompt != "hi" {
		t.Errorf("committed prompt = %q", committed.Prompt)
	}
}

func TestRun_EarlyStopOnSealedDocument(t *testing.T) {
	doc := "<!DOCTYPE html><html><body>done</body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, doc)
		flusher.Flush()
		// Trailing chatter arrives after the session has cancelled the read.
		time.Sleep(100 * time.Millisecond)
		io.WriteString(w, " and one more thing")
	}))
	defer srv.Close()

	r, _ := newRunner(srv.URL, 0)
	result, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, newCaptureSink())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.HTML != doc {
		t.Errorf("Run() HTML = %q, want the sealed document only", result.HTML)
	}
}

func TestRun_ContextTooLong(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called when the budget check fails")
	}))
	defer srv.Close()

	r, versions := newRunner(srv.URL, 0)
	req := inference.CodeRequest{
		Prompt: "hi",
		HTML:   strings.Repeat("x", 60_000),
	}
	_, err := r.Run(context.Background(), "tok", req, newCaptureSink())

	var tooLong *inference.ContextTooLongError
	if !errors.As(err, &tooLong) {
		t.Fatalf("Run() error = %v, want *ContextTooLongError", err)
	}

	// The budget check fails before any version is created.
	entries, _ := versions.List()
	if len(entries) != 0 {
		t.Errorf("version log has %d entries, want 0", len(entries))
	}
}

func TestRun_UpstreamErrorFrame(t *testing.T) {
	srv := streamServer(t, `{"type":"error","message":"exceeded your monthly included credits"}`)
	defer srv.Close()

	r, _ := newRunner(srv.URL, 0)
	_, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, newCaptureSink())

	var upstream *stream.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Run() error = %v, want *UpstreamError", err)
	}
	if !strings.Contains(upstream.Message, "monthly included credits") {
		t.Errorf("message = %q", upstream.Message)
	}
}

func TestRun_NoDocumentInOutput(t *testing.T) {
	srv := streamServer(t, "I cannot help with that request.")
	defer srv.Close()

	r, _ := newRunner(srv.URL, 0)
	_, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, newCaptureSink())
	if !errors.Is(err, reconcile.ErrNoDocument) {
		t.Errorf("Run() error = %v, want ErrNoDocument", err)
	}
}

func TestRun_SupersededSessionIsDropped(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		flusher := w.(http.Flusher)
		if strings.Contains(string(body), "slow") {
			io.WriteString(w, "<!DOCTYPE html><html><body>slow")
			flusher.Flush()
			<-release
			io.WriteString(w, "</body></html>")
			return
		}
		io.WriteString(w, "<!DOCTYPE html><html><body>fast</body></html>")
	}))
	defer srv.Close()

	r, versions := newRunner(srv.URL, 0)

	slowSink := newCaptureSink()
	slowDone := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "slow"}, slowSink)
		slowDone <- err
	}()

	// Wait until the slow session is mid-stream, then start a newer one.
	select {
	case <-slowSink.first:
	case <-time.After(5 * time.Second):
		t.Fatal("slow session never pushed a render")
	}

	fastResult, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "fast"}, newCaptureSink())
	if err != nil {
		t.Fatalf("fast Run() error = %v", err)
	}

	close(release)
	if err := <-slowDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("slow Run() error = %v, want ErrSuperseded", err)
	}

	// The fast session's commit is intact.
	committed, err := versions.Select(fastResult.VersionID)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.Contains(committed.Code, "fast") {
		t.Errorf("committed code = %q, want the fast session's document", committed.Code)
	}
}

func TestRun_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		io.WriteString(w, "<!DOCTYPE html><html>")
		flusher.Flush()
		time.Sleep(300 * time.Millisecond) // stall past the idle timeout
		io.WriteString(w, "</html>")
	}))
	defer srv.Close()

	r, _ := newRunner(srv.URL, 30*time.Millisecond)
	_, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, newCaptureSink())
	if err == nil {
		t.Fatal("Run() should fail when the upstream stalls")
	}
	var upstream *stream.UpstreamError
	if errors.As(err, &upstream) {
		t.Error("a stall is a transport failure, not an upstream error frame")
	}
}

func TestImprove(t *testing.T) {
	srv := streamServer(t, "Build a ", "brutalist landing page")
	defer srv.Close()

	r, _ := newRunner(srv.URL, 0)
	var streamed strings.Builder
	improved, err := r.Improve(context.Background(), "tok", "make site", func(delta string) error {
		streamed.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Improve() error = %v", err)
	}

	want := "Build a brutalist landing page"
	if improved != want {
		t.Errorf("Improve() = %q, want %q", improved, want)
	}
	if streamed.String() != want {
		t.Errorf("streamed deltas = %q, want %q", streamed.String(), want)
	}
}

func TestRun_SinkFailureAborts(t *testing.T) {
	srv := streamServer(t, "<!DOCTYPE html><html><body>", "Hi</body></html>")
	defer srv.Close()

	r, _ := newRunner(srv.URL, 0)
	_, err := r.Run(context.Background(), "tok", inference.CodeRequest{Prompt: "hi"}, failingSink{})
	if err == nil || !strings.Contains(err.Error(), "pushing render") {
		t.Errorf("Run() error = %v, want a render push failure", err)
	}
}

type failingSink struct{}

func (failingSink) Partial(reconcile.Snapshot) error {
	return errors.New("client gone")
}
