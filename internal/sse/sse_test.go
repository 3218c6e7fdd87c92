package sse

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RichardoC/portfolio-chat/internal/models"
)

func collect(t *testing.T, r io.Reader) []models.StreamEvent {
	t.Helper()
	reader := NewReader(r)
	var events []models.StreamEvent
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func TestWriter_Frames(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	require.NoError(t, w.Token("r1"))
	require.NoError(t, w.Delta("Aigenie is..."))
	require.NoError(t, w.Done())

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t,
		`data: {"responseId":"r1","done":false}`+"\n\n"+
			`data: {"content":"Aigenie is...","done":false}`+"\n\n"+
			`data: {"content":"","done":true,"images":[]}`+"\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestWriter_Fail(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, NewWriter(rec).Fail("Sorry!"))
	assert.Equal(t, `data: {"content":"Sorry!","done":true,"images":[],"error":true}`+"\n\n", rec.Body.String())
}

func TestReader_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	require.NoError(t, w.Token("r1"))
	for _, d := range []string{"Hel", "lo", " wörld"} {
		require.NoError(t, w.Delta(d))
	}
	require.NoError(t, w.Done())

	// One byte per read splits every frame and the multi-byte ö.
	events := collect(t, iotest.OneByteReader(strings.NewReader(rec.Body.String())))
	require.Len(t, events, 5)
	assert.Equal(t, models.StreamEvent{Kind: models.EventToken, ResponseID: "r1"}, events[0])

	var text strings.Builder
	for _, ev := range events[1:4] {
		assert.Equal(t, models.EventDelta, ev.Kind)
		text.WriteString(ev.Content)
	}
	assert.Equal(t, "Hello wörld", text.String())
	assert.Equal(t, models.EventDone, events[4].Kind)
	assert.False(t, events[4].Error)
}

func TestReader_SkipsNoise(t *testing.T) {
	stream := strings.Join([]string{
		": keepalive comment",
		"event: message",
		`data: {"content":"a","done":false}`,
		`data: {"content":"b","do`, // truncated JSON
		"data: not json at all",
		`data: {"unrelated":true}`,
		"",
		`data: {"content":"c","done":false}`,
		"data: [DONE]",
		`data: {"content":"","done":true,"images":[]}`,
		"",
	}, "\n")

	events := collect(t, strings.NewReader(stream))
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "c", events[1].Content)
	assert.Equal(t, models.EventDone, events[2].Kind)
}

func TestReader_CRLFAndTrailingPartialLine(t *testing.T) {
	stream := "data: {\"content\":\"x\",\"done\":false}\r\n\r\n" +
		`data: {"content":"never finished","done":false}`
	events := collect(t, strings.NewReader(stream))
	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Content)
}

func TestReader_TokenAfterContent(t *testing.T) {
	stream := `data: {"content":"one","done":false}` + "\n" +
		`data: {"responseId":"late","done":false}` + "\n"
	events := collect(t, strings.NewReader(stream))
	require.Len(t, events, 2)
	assert.Equal(t, models.EventDelta, events[0].Kind)
	assert.Equal(t, models.EventToken, events[1].Kind)
	assert.Equal(t, "late", events[1].ResponseID)
}

func TestDecode_ErrorFrames(t *testing.T) {
	ev, ok := Decode([]byte(`data: {"content":"Sorry, try later","done":true,"images":[],"error":true}`))
	require.True(t, ok)
	assert.Equal(t, models.StreamEvent{Kind: models.EventDone, Content: "Sorry, try later", Error: true}, ev)

	ev, ok = Decode([]byte(`data: {"error":true,"message":"boom","done":true}`))
	require.True(t, ok)
	assert.Equal(t, "boom", ev.Content)
	assert.True(t, ev.Error)

	// Legacy servers report mid-stream failures as a terminal content frame.
	ev, ok = Decode([]byte(`data: {"content":"Sorry, I'm having trouble","done":true,"images":[]}`))
	require.True(t, ok)
	assert.Equal(t, models.EventDone, ev.Kind)
	assert.Equal(t, "Sorry, I'm having trouble", ev.Content)
}

func TestDecode_IgnoresEmptyDelta(t *testing.T) {
	_, ok := Decode([]byte(`data: {"content":"","done":false}`))
	assert.False(t, ok)
}

func TestReader_StickyError(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
