package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatLine(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func collect(t *testing.T, r io.Reader) []string {
	t.Helper()
	var out []string
	for delta, err := range Deltas(r) {
		require.NoError(t, err)
		out = append(out, delta)
	}
	return out
}

// chunkedReader returns its chunks one Read at a time.
type chunkedReader struct {
	chunks []string
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestDeltasPreserveOrder(t *testing.T) {
	parts := []string{"The", " quick", " brown", " fox"}
	var sb strings.Builder
	for _, p := range parts {
		sb.WriteString(chatLine(p))
	}
	sb.WriteString("data: [DONE]\n\n")

	assert.Equal(t, parts, collect(t, strings.NewReader(sb.String())))
}

func TestDoneProducesNothing(t *testing.T) {
	assert.Empty(t, collect(t, strings.NewReader("data: [DONE]\n")))
	assert.Empty(t, NewDecoder().Feed([]byte("data: [DONE]\r\n")))
}

func TestMalformedLineIsSkipped(t *testing.T) {
	input := chatLine("a") + "data: {not valid json\n" + chatLine("b")
	assert.Equal(t, []string{"a", "b"}, collect(t, strings.NewReader(input)))
}

func TestSplitAtEveryOffsetMatchesUnsplit(t *testing.T) {
	input := chatLine("Hel") + "event: delta\nid: 7\n" + chatLine("lo, ") +
		"data: {\"type\":\"response.output_text.delta\",\"delta\":\"wörld\"}\n" + "data: [DONE]\n"
	want := collect(t, strings.NewReader(input))
	require.Equal(t, []string{"Hel", "lo, ", "wörld"}, want)

	for offset := 1; offset < len(input); offset++ {
		r := &chunkedReader{chunks: []string{input[:offset], input[offset:]}}
		assert.Equal(t, want, collect(t, r), "split at %d", offset)
	}

	assert.Equal(t, want, collect(t, iotest.OneByteReader(strings.NewReader(input))))
}

func TestFeedBuffersPartialLineAcrossReads(t *testing.T) {
	dec := NewDecoder()

	first := dec.Feed([]byte(`data: {"choices":[{"delta":{"content":"Hel`))
	assert.Empty(t, first)
	assert.Positive(t, dec.pendingLen())

	second := dec.Feed([]byte("lo\"}}]}\n\n"))
	assert.Equal(t, []string{"Hello"}, second)
	assert.Zero(t, dec.pendingLen())
}

func TestTrailingPartialLineIsDropped(t *testing.T) {
	input := chatLine("kept") + `data: {"choices":[{"delta":{"content":"lost"}}]}`
	assert.Equal(t, []string{"kept"}, collect(t, strings.NewReader(input)))
}

func TestResponsesShape(t *testing.T) {
	input := strings.Join([]string{
		`event: response.created`,
		`data: {"type":"response.created","response":{"id":"r1"}}`,
		``,
		`event: response.output_text.delta`,
		`data: {"type":"response.output_text.delta","delta":"Hi"}`,
		``,
		`data: {"type":"response.output_text.delta","delta":""}`,
		`data: {"type":"response.completed","delta":"ignored"}`,
		``,
	}, "\n")
	assert.Equal(t, []string{"Hi"}, collect(t, strings.NewReader(input)))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{name: "chat delta", line: `data: {"choices":[{"delta":{"content":"x"}}]}`, want: "x", ok: true},
		{name: "crlf", line: "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r", want: "x", ok: true},
		{name: "role only", line: `data: {"choices":[{"delta":{"role":"assistant"}}]}`},
		{name: "null content", line: `data: {"choices":[{"delta":{"content":null}}]}`},
		{name: "empty choices", line: `data: {"choices":[],"usage":{"total_tokens":3}}`},
		{name: "no space after colon", line: `data:{"choices":[{"delta":{"content":"x"}}]}`},
		{name: "comment", line: `: keep-alive`},
		{name: "blank", line: ``},
		{name: "done", line: `data: [DONE]`},
		{name: "chat wins over responses", line: `data: {"choices":[{"delta":{"content":"c"}}],"type":"response.output_text.delta","delta":"r"}`, want: "c", ok: true},
		{name: "fallback to responses", line: `data: {"choices":[{"delta":{"content":""}}],"type":"response.output_text.delta","delta":"r"}`, want: "r", ok: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseLine([]byte(tc.line))
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadErrorIsYielded(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(chatLine("a")), iotest.ErrReader(boom))

	var deltas []string
	var gotErr error
	for delta, err := range Deltas(r) {
		if err != nil {
			gotErr = err
			continue
		}
		deltas = append(deltas, delta)
	}

	assert.Equal(t, []string{"a"}, deltas)
	assert.ErrorIs(t, gotErr, boom)
}

func TestDeltasStopsWhenConsumerBreaks(t *testing.T) {
	input := chatLine("a") + chatLine("b") + chatLine("c")
	var got []string
	for delta, err := range Deltas(strings.NewReader(input)) {
		require.NoError(t, err)
		got = append(got, delta)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}
