// Package reconcile turns an in-flight stream of text deltas into renderable
// HTML candidates and, on completion, the committed document.
//
// The reconciler only ever appends: deltas are concatenated in arrival order
// and the accumulated text never shrinks. Candidates are bounded by the first
// "<!DOCTYPE html>" marker; an unterminated candidate is force-closed with a
// single "</html>" before it is handed to the preview so the sandbox never
// renders a dangling open tag.
package reconcile

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	doctypeMarker = "<!DOCTYPE html>"
	closeTag      = "</html>"
	headCloseTag  = "</head>"

	// renderInterval is the minimum spacing between partial render pushes.
	// High-frequency small deltas otherwise make the preview flicker.
	renderInterval = 200 * time.Millisecond

	// fullReloadTicks controls how often a partial render re-syncs the whole
	// document instead of swapping body content. Tunable, not a contract:
	// the binding behavior is at most one full reload per stream.
	fullReloadTicks = 10
)

// ErrNoDocument indicates the stream ended without ever producing a
// "<!DOCTYPE html>" marker. This is a failed generation, not an empty one.
var ErrNoDocument = errors.New("no HTML document in stream output")

// Mode says how a snapshot should be applied to the live preview.
type Mode string

const (
	// ModeFull replaces the preview document entirely (head and body).
	ModeFull Mode = "full"

	// ModeBody swaps only the body's inner content into the existing
	// preview document, preserving scroll position and page state.
	ModeBody Mode = "body"
)

// Snapshot is one renderable partial document.
type Snapshot struct {
	// Document is the force-closed candidate, always safe to load whole.
	Document string

	// Body is the candidate's inner body content. Only set for ModeBody.
	Body string

	Mode Mode
}

// Reconciler accumulates stream deltas for one generation session.
// It is single-use and not safe for concurrent use; the session loop is the
// only writer.
type Reconciler struct {
	text     string
	docStart int // offset of the doctype marker, -1 until seen
	scanFrom int // resume point for marker scans, avoids O(n^2) rescans
	sealFrom int
	sealed   bool

	lastRender  time.Time
	renderCount int
	headEmitted bool

	now func() time.Time // injectable clock for tests
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{docStart: -1, now: time.Now}
}

// Consume appends one delta and reports whether a partial render is due.
// Rendering is throttled to renderInterval; dropped pushes are not queued,
// the next due push simply carries the newer accumulated state.
func (r *Reconciler) Consume(delta string) (Snapshot, bool) {
	r.append(delta)

	if r.docStart < 0 {
		// No renderable candidate until the doctype shows up.
		return Snapshot{}, false
	}

	now := r.now()
	if now.Sub(r.lastRender) <= renderInterval {
		return Snapshot{}, false
	}
	r.lastRender = now

	doc := forceClose(r.text[r.docStart:])
	snap := Snapshot{Document: doc, Mode: ModeBody}

	if r.renderCount%fullReloadTicks == 0 && !r.headEmitted {
		snap.Mode = ModeFull
		if strings.Contains(doc, headCloseTag) {
			// Head content (styles, fonts) essentially never changes
			// mid-stream; once it has been delivered whole, stop full
			// re-syncs for the rest of the stream.
			r.headEmitted = true
		}
	} else if body, err := bodyInnerHTML(doc); err == nil {
		snap.Body = body
	} else {
		// Body extraction failing means the candidate is too mangled to
		// swap piecewise; reload it whole instead.
		snap.Mode = ModeFull
	}

	r.renderCount++
	return snap, true
}

// Sealed reports whether the accumulated text already contains a closing
// </html> tag. Once sealed, the session can stop reading the upstream.
func (r *Reconciler) Sealed() bool {
	return r.sealed
}

// Size returns the length of the accumulated text in bytes.
func (r *Reconciler) Size() int {
	return len(r.text)
}

// Finalize extracts the committed document: the span from the first doctype
// marker through the last closing tag, appending one closing tag first if
// the stream never produced one. Finalize is idempotent: a second call on
// the same accumulated text returns the same document.
func (r *Reconciler) Finalize() (string, error) {
	if r.docStart < 0 {
		return "", ErrNoDocument
	}

	end := strings.LastIndex(r.text[r.docStart:], closeTag)
	if end < 0 {
		r.append(closeTag)
		end = strings.LastIndex(r.text[r.docStart:], closeTag)
	}
	return r.text[r.docStart : r.docStart+end+len(closeTag)], nil
}

// append concatenates a delta and advances the cached marker offsets.
func (r *Reconciler) append(delta string) {
	if delta == "" {
		return
	}
	r.text += delta

	if r.docStart < 0 {
		if idx := strings.Index(r.text[r.scanFrom:], doctypeMarker); idx >= 0 {
			r.docStart = r.scanFrom + idx
		} else {
			r.scanFrom = rewind(len(r.text), len(doctypeMarker))
		}
	}
	if !r.sealed {
		if strings.Contains(r.text[r.sealFrom:], closeTag) {
			r.sealed = true
		} else {
			r.sealFrom = rewind(len(r.text), len(closeTag))
		}
	}
}

// rewind backs the scan offset up far enough that a marker split across the
// next delta boundary is still found.
func rewind(length, marker int) int {
	from := length - marker + 1
	if from < 0 {
		return 0
	}
	return from
}

// forceClose appends a single closing tag to an unterminated candidate.
// Appending to an already-closed candidate is a no-op, so the result always
// carries exactly one trailing </html>.
func forceClose(candidate string) string {
	if strings.HasSuffix(strings.TrimRight(candidate, " \t\r\n"), closeTag) {
		return candidate
	}
	return candidate + "\n" + closeTag
}

// bodyInnerHTML extracts the inner content of the candidate's <body>.
func bodyInnerHTML(doc string) (string, error) {
	parsed, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", err
	}
	return parsed.Find("body").Html()
}
