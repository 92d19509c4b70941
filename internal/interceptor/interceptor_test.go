package interceptor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lean-proof-bridge/internal/codec"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
)

type recordingObserver struct {
	cursors    []model.CursorInfo
	opened     []string
	changed    []string
}

func (r *recordingObserver) OnCursor(c model.CursorInfo) { r.cursors = append(r.cursors, c) }
func (r *recordingObserver) OnDidOpen(uri string, version uint32) {
	r.opened = append(r.opened, uri)
}
func (r *recordingObserver) OnDidChange(uri string, version uint32) {
	r.changed = append(r.changed, uri)
}

type recordingSender struct {
	frames []*codec.Frame
}

func (s *recordingSender) Send(f *codec.Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

func sendFrame(t *testing.T, buf *bytes.Buffer, body string) {
	t.Helper()
	require.NoError(t, codec.NewWriter(buf).WriteBody([]byte(body)))
}

func TestTransparentHoverExtractsCursorAndForwards(t *testing.T) {
	var src bytes.Buffer
	body := `{"id":1,"method":"textDocument/hover","params":{"textDocument":{"uri":"file:///a.lean"},"position":{"line":3,"character":5}}}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	require.Len(t, sender.frames, 1)
	assert.Equal(t, body, string(sender.frames[0].Body))

	require.Len(t, obs.cursors, 1)
	assert.Equal(t, "file:///a.lean", obs.cursors[0].Uri)
	assert.Equal(t, uint32(3), obs.cursors[0].Position.Line)
	assert.Equal(t, uint32(5), obs.cursors[0].Position.Character)
	assert.Equal(t, "textDocument/hover", obs.cursors[0].Trigger)
}

func TestDidChangeExtractsCursorAndInvalidates(t *testing.T) {
	var src bytes.Buffer
	body := `{"method":"textDocument/didChange","params":{"textDocument":{"uri":"file:///b.lean","version":4},"contentChanges":[{"range":{"start":{"line":7,"character":2},"end":{"line":7,"character":2}},"text":"x"}]}}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	require.Len(t, obs.changed, 1)
	assert.Equal(t, "file:///b.lean", obs.changed[0])
	require.Len(t, obs.cursors, 1)
	assert.Equal(t, uint32(7), obs.cursors[0].Position.Line)
	assert.Equal(t, uint32(2), obs.cursors[0].Position.Character)
	assert.Equal(t, "didChange", obs.cursors[0].Trigger)
}

func TestDidChangeWithoutRangeEmitsNoCursor(t *testing.T) {
	var src bytes.Buffer
	body := `{"method":"textDocument/didChange","params":{"textDocument":{"uri":"file:///c.lean","version":2},"contentChanges":[{"text":"whole file"}]}}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	assert.Empty(t, obs.cursors)
	require.Len(t, obs.changed, 1)
}

func TestDidChangeWithEmptyContentChangesDoesNotInvalidate(t *testing.T) {
	var src bytes.Buffer
	body := `{"method":"textDocument/didChange","params":{"textDocument":{"uri":"file:///e.lean","version":3},"contentChanges":[]}}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	assert.Empty(t, obs.cursors)
	assert.Empty(t, obs.changed)
}

func TestDidOpenFiresObserver(t *testing.T) {
	var src bytes.Buffer
	body := `{"method":"textDocument/didOpen","params":{"textDocument":{"uri":"file:///d.lean","version":1,"languageId":"lean4","text":""}}}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	require.Len(t, obs.opened, 1)
	assert.Equal(t, "file:///d.lean", obs.opened[0])
}

func TestUnrecognizedMessageForwardsWithoutObservation(t *testing.T) {
	var src bytes.Buffer
	body := `{"id":9,"method":"shutdown","params":null}`
	sendFrame(t, &src, body)

	sender := &recordingSender{}
	obs := &recordingObserver{}
	ic := New("editor->server", &src, sender, obs)
	require.NoError(t, ic.Run())

	require.Len(t, sender.frames, 1)
	assert.Equal(t, body, string(sender.frames[0].Body))
	assert.Empty(t, obs.cursors)
	assert.Empty(t, obs.opened)
	assert.Empty(t, obs.changed)
}

func TestDeferredSenderPanicsBeforeSet(t *testing.T) {
	d := &DeferredSender{}
	assert.Panics(t, func() {
		_ = d.Send(&codec.Frame{Body: []byte("{}")})
	})
}

func TestDeferredSenderForwardsAfterSet(t *testing.T) {
	d := &DeferredSender{}
	sender := &recordingSender{}
	d.Set(sender)

	require.NoError(t, d.Send(&codec.Frame{Body: []byte(`{"a":1}`)}))
	require.Len(t, sender.frames, 1)
}
