// Package stream decodes text/event-stream completions into content deltas.
//
// Frames may be split across network reads at any byte offset; the decoder
// buffers incomplete lines until their terminating newline arrives. Lines
// that are not "data: " events are ignored, "[DONE]" is skipped and a payload
// that fails to parse as JSON is discarded without ending the stream.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
)

const (
	dataPrefix        = "data: "
	doneSentinel      = "[DONE]"
	outputTextDelta   = "response.output_text.delta"
	defaultReadBuffer = 4096
)

// Decoder turns successive byte chunks into content deltas. A Decoder holds
// per-stream state and must not be reused across streams.
type Decoder struct {
	pending []byte
}

// NewDecoder returns a decoder with an empty pending buffer.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the pending buffer and returns the deltas carried by every
// line completed so far, in arrival order. Bytes after the last newline stay
// buffered for the next call.
func (d *Decoder) Feed(p []byte) []string {
	d.pending = append(d.pending, p...)

	var deltas []string
	for {
		idx := bytes.IndexByte(d.pending, '\n')
		if idx < 0 {
			break
		}
		line := d.pending[:idx]
		d.pending = d.pending[idx+1:]

		if content, ok := ParseLine(line); ok {
			deltas = append(deltas, content)
		}
	}

	// Keep the partial line in a fresh slice so the consumed prefix can be collected.
	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		d.pending = append([]byte(nil), d.pending...)
	}
	return deltas
}

// pendingLen reports how many bytes of an unterminated line are buffered.
func (d *Decoder) pendingLen() int {
	return len(d.pending)
}

// Deltas reads r to completion and yields each content delta as soon as the
// line carrying it is complete. A trailing line without a newline is dropped
// at end of stream. A read error other than io.EOF is yielded once and ends
// the sequence.
func Deltas(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dec := NewDecoder()
		buf := make([]byte, defaultReadBuffer)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, delta := range dec.Feed(buf[:n]) {
					if !yield(delta, nil) {
						return
					}
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield("", err)
				}
				return
			}
		}
	}
}

type eventPayload struct {
	Choices []struct {
		Delta struct {
			Content json.RawMessage `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Type  string          `json:"type"`
	Delta json.RawMessage `json:"delta"`
}

// ParseLine extracts the content delta from a single event-stream line. It
// returns false for non-data lines, the [DONE] sentinel, malformed JSON and
// payloads without text content.
func ParseLine(line []byte) (string, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return "", false
	}
	data := line[len(dataPrefix):]
	if string(data) == doneSentinel {
		return "", false
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", false
	}

	if len(payload.Choices) > 0 {
		if content := rawString(payload.Choices[0].Delta.Content); content != "" {
			return content, true
		}
	}
	if payload.Type == outputTextDelta {
		if content := rawString(payload.Delta); content != "" {
			return content, true
		}
	}
	return "", false
}

func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
