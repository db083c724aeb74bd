// Package generate orchestrates one code-generation session: credential in
// hand, it opens the upstream completion stream, decodes it, feeds the
// reconciler, pushes partial renders to the caller's sink and commits the
// finished document to the version log.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/parthib/anysite/internal/inference"
	"github.com/parthib/anysite/internal/reconcile"
	"github.com/parthib/anysite/internal/stream"
	"github.com/parthib/anysite/internal/version"
)

// DefaultIdleTimeout bounds the gap between upstream chunks. A stalled
// backend is cancelled rather than holding the session open forever.
const DefaultIdleTimeout = 60 * time.Second

// ErrSuperseded indicates a newer session started while this one was still
// streaming. The stale session's renders and commit are dropped.
var ErrSuperseded = errors.New("generation superseded by a newer session")

// RenderSink receives partial render pushes. A sink error aborts the
// session; the common cause is the client connection going away.
type RenderSink interface {
	Partial(snap reconcile.Snapshot) error
}

// Result is a committed generation.
type Result struct {
	VersionID string
	HTML      string
}

// Runner runs generation sessions. Sessions are serialized by a monotonic
// token: starting a new session invalidates the effects of any still-running
// older one.
type Runner struct {
	client      *inference.Client
	versions    *version.Store
	logger      *slog.Logger
	idleTimeout time.Duration

	session atomic.Int64
}

// NewRunner creates a runner. An idleTimeout of zero selects the default.
func NewRunner(client *inference.Client, versions *version.Store, idleTimeout time.Duration, logger *slog.Logger) *Runner {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:      client,
		versions:    versions,
		logger:      logger,
		idleTimeout: idleTimeout,
	}
}

// Run executes one generation session and returns the committed version.
//
// The session stops reading upstream as soon as the accumulated response is
// sealed with </html>. If a newer session starts meanwhile, Run drops its
// remaining effects and returns ErrSuperseded.
func (r *Runner) Run(ctx context.Context, token string, req inference.CodeRequest, sink RenderSink) (Result, error) {
	cfg := inference.ResolveCodeModel(req.ModelID)
	if err := inference.CheckTokenBudget(req.InputChars(), cfg); err != nil {
		return Result{}, err
	}

	pendingID, err := r.versions.CreatePending(req.Prompt)
	if err != nil {
		return Result{}, fmt.Errorf("creating pending version: %w", err)
	}

	session := r.session.Add(1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := r.client.Stream(ctx, token, cfg, inference.BuildCodeMessages(cfg, req))
	if err != nil {
		return Result{}, err
	}
	defer body.Close()

	watchdog := newIdleWatchdog(r.idleTimeout, cancel)
	defer watchdog.stop()

	rec := reconcile.New()
	for delta, err := range stream.NewDecoder(body).Deltas() {
		watchdog.touch()
		if err != nil {
			return Result{}, err
		}

		snap, due := rec.Consume(delta)
		if due && r.current(session) {
			if err := sink.Partial(snap); err != nil {
				return Result{}, fmt.Errorf("pushing render: %w", err)
			}
		}
		if rec.Sealed() {
			// The document is complete; whatever the model still wants to
			// say is chatter.
			cancel()
			break
		}
	}

	doc, err := rec.Finalize()
	if err != nil {
		return Result{}, err
	}

	if !r.current(session) {
		r.logger.Debug("dropping superseded generation", "session", session)
		return Result{}, ErrSuperseded
	}

	committed, err := r.versions.Finalize(pendingID, doc)
	if err != nil {
		return Result{}, fmt.Errorf("committing version: %w", err)
	}
	r.logger.Info("generation committed",
		"version_id", committed.ID,
		"model", cfg.ID,
		"bytes", len(doc))
	return Result{VersionID: committed.ID, HTML: doc}, nil
}

// Improve streams a prompt-improvement completion. Each delta is handed to
// deltas as it arrives; the full improved prompt is returned at the end.
func (r *Runner) Improve(ctx context.Context, token, prompt string, deltas func(string) error) (string, error) {
	cfg := inference.ImproveModel()
	if err := inference.CheckTokenBudget(len(prompt), cfg); err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := r.client.Stream(ctx, token, cfg, inference.BuildImproveMessages(cfg, prompt))
	if err != nil {
		return "", err
	}
	defer body.Close()

	watchdog := newIdleWatchdog(r.idleTimeout, cancel)
	defer watchdog.stop()

	var improved string
	for delta, err := range stream.NewDecoder(body).Deltas() {
		watchdog.touch()
		if err != nil {
			return "", err
		}
		improved += delta
		if err := deltas(delta); err != nil {
			return "", fmt.Errorf("pushing delta: %w", err)
		}
	}
	return improved, nil
}

func (r *Runner) current(session int64) bool {
	return r.session.Load() == session
}

// idleWatchdog cancels the session when no upstream activity is seen for
// the configured timeout.
type idleWatchdog struct {
	timer   *time.Timer
	timeout time.Duration
}

func newIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	return &idleWatchdog{
		timer:   time.AfterFunc(timeout, cancel),
		timeout: timeout,
	}
}

func (w *idleWatchdog) touch() {
	w.timer.Reset(w.timeout)
}

func (w *idleWatchdog) stop() {
	w.timer.Stop()
}
