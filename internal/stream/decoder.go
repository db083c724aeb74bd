// Package stream decodes the inference backend's chunked byte stream into a
// sequence of text deltas.
//
// The backend's wire format has two chunk shapes: raw UTF-8 text (the common
// case) and a JSON error frame {"type":"error","message":"…"}. A structured
// frame is detected with an explicit predicate before falling through to
// plain-text handling; a chunk that fails to parse as JSON is ordinary text,
// not an error.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"
)

// defaultMessage is used when an error frame carries no message.
const defaultMessage = "An error occurred while processing your request."

// readSize is the per-read buffer size. One Read is treated as one chunk for
// frame detection, mirroring the transport's chunk framing.
const readSize = 8 * 1024

// UpstreamError is an explicit error frame received from the backend. It is
// always fatal to the current stream and its message is surfaced verbatim.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: %s", e.Message)
}

// errorFrame is the JSON shape of a structured backend chunk.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decoder consumes a byte stream and yields text deltas. Multi-byte
// characters split across chunk boundaries are handled statefully: an
// incomplete trailing rune is held back and prepended to the next chunk.
//
// A Decoder is single-use and not safe for concurrent use.
type Decoder struct {
	r       io.Reader
	pending []byte // incomplete trailing UTF-8 sequence from the previous chunk
}

// NewDecoder creates a decoder over r. The reader is typically an HTTP
// response body whose lifetime is bound to the request context.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Deltas returns an iterator over decoded text deltas, in arrival order.
//
// The iterator ends on normal stream completion. An error frame from the
// backend yields exactly one ("", *UpstreamError) pair and terminates; a
// transport failure yields the read error. Deltas never reorders chunks.
func (d *Decoder) Deltas() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		buf := make([]byte, readSize)
		for {
			n, err := d.r.Read(buf)
			if n > 0 {
				text, fatal := d.decodeChunk(buf[:n])
				if fatal != nil {
					yield("", fatal)
					return
				}
				if text != "" && !yield(text, nil) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					// Flush any held-back bytes so no input is lost; an
					// incomplete rune at true end-of-stream decodes to the
					// replacement character, which is the best we can do.
					if len(d.pending) > 0 {
						tail := string(d.pending)
						d.pending = nil
						yield(tail, nil)
					}
					return
				}
				yield("", fmt.Errorf("reading stream: %w", err))
				return
			}
		}
	}
}

// decodeChunk stitches the previous incomplete rune onto the chunk, splits
// off any new incomplete tail, and classifies the result.
func (d *Decoder) decodeChunk(chunk []byte) (string, error) {
	data := chunk
	if len(d.pending) > 0 {
		data = append(d.pending, chunk...)
		d.pending = nil
	}

	complete, rest := splitCompleteRunes(data)
	if len(rest) > 0 {
		d.pending = append([]byte(nil), rest...)
	}
	if len(complete) == 0 {
		return "", nil
	}

	if isStructuredFrame(complete) {
		var frame errorFrame
		if err := json.Unmarshal(complete, &frame); err == nil && frame.Type == "error" {
			msg := frame.Message
			if msg == "" {
				msg = defaultMessage
			}
			return "", &UpstreamError{Message: msg}
		}
		// Valid JSON that is not an error frame, or a false positive:
		// either way it is plain text content.
	}

	return string(complete), nil
}

// isStructuredFrame reports whether a chunk plausibly carries a JSON frame.
// Evaluated before any parse attempt so plain-text handling never relies on
// parse failures as control flow.
func isStructuredFrame(b []byte) bool {
	trimmed := bytes.TrimSpace(b)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// splitCompleteRunes splits b into a prefix of complete UTF-8 sequences and
// an incomplete trailing sequence (at most utf8.UTFMax-1 bytes).
func splitCompleteRunes(b []byte) (complete, rest []byte) {
	// Scan backwards for the start of the final rune; only the last few
	// bytes can belong to a cut sequence.
	end := len(b)
	for i := 1; i <= utf8.UTFMax && end-i >= 0; i++ {
		start := end - i
		c := b[start]
		if c < utf8.RuneSelf {
			// ASCII: nothing is cut.
			return b, nil
		}
		if c >= 0xC0 {
			// Leading byte of a multi-byte sequence.
			if utf8.FullRune(b[start:]) {
				return b, nil
			}
			return b[:start], b[start:]
		}
		// Continuation byte, keep scanning.
	}
	return b, nil
}
