package navigator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rockerboo/lean-proof-bridge/internal/codec"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
)

type recordingSender struct {
	frames []*codec.Frame
}

func (s *recordingSender) Send(f *codec.Frame) error {
	s.frames = append(s.frames, f)
	return nil
}

type stubResolver struct {
	uri string
	rng json.RawMessage
	err error
}

func (s stubResolver) GetGoToLocation(uri string, position model.Position, info json.RawMessage) (string, json.RawMessage, error) {
	return s.uri, s.rng, s.err
}

func decodeShowDocument(t *testing.T, f *codec.Frame) showDocumentRequest {
	t.Helper()
	var req showDocumentRequest
	require.NoError(t, json.Unmarshal(f.Body, &req))
	return req
}

func TestNavigateRoundTrip(t *testing.T) {
	sender := &recordingSender{}
	nav := New(sender, stubResolver{})

	nav.handle(model.Command{
		Kind:     model.CommandNavigate,
		Uri:      "file:///b.lean",
		Position: model.Position{Line: 10, Character: 0},
	})

	require.Len(t, sender.frames, 1)
	req := decodeShowDocument(t, sender.frames[0])
	assert.Equal(t, "window/showDocument", req.Method)
	assert.True(t, req.Params.TakeFocus)
	assert.Equal(t, model.Position{Line: 10, Character: 0}, req.Params.Selection.Start)
	assert.Equal(t, model.Position{Line: 10, Character: 0}, req.Params.Selection.End)
}

func TestHypothesisLocationResolvedNavigatesToTarget(t *testing.T) {
	sender := &recordingSender{}
	rng := json.RawMessage(`{"start":{"line":42,"character":7},"end":{"line":42,"character":12}}`)
	nav := New(sender, stubResolver{uri: "file:///def.lean", rng: rng})

	nav.handle(model.Command{
		Kind:     model.CommandGetHypothesisLoc,
		Uri:      "file:///a.lean",
		Position: model.Position{Line: 1, Character: 1},
	})

	require.Len(t, sender.frames, 1)
	req := decodeShowDocument(t, sender.frames[0])
	assert.Equal(t, "file:///def.lean", req.Params.URI)
	assert.Equal(t, model.Position{Line: 42, Character: 7}, req.Params.Selection.Start)
}

func TestHypothesisLocationResolvedWithoutRangeUsesZeroPosition(t *testing.T) {
	sender := &recordingSender{}
	nav := New(sender, stubResolver{uri: "file:///def.lean"})

	nav.handle(model.Command{
		Kind:     model.CommandGetHypothesisLoc,
		Uri:      "file:///a.lean",
		Position: model.Position{Line: 1, Character: 1},
	})

	require.Len(t, sender.frames, 1)
	req := decodeShowDocument(t, sender.frames[0])
	assert.Equal(t, "file:///def.lean", req.Params.URI)
	assert.Equal(t, model.Position{}, req.Params.Selection.Start)
}

func TestHypothesisLocationRPCErrorFallsBackToCursor(t *testing.T) {
	sender := &recordingSender{}
	nav := New(sender, stubResolver{err: errors.New("boom")})

	cmd := model.Command{
		Kind:     model.CommandGetHypothesisLoc,
		Uri:      "file:///a.lean",
		Position: model.Position{Line: 4, Character: 2},
	}
	nav.handle(cmd)

	require.Len(t, sender.frames, 1)
	req := decodeShowDocument(t, sender.frames[0])
	assert.Equal(t, "file:///a.lean", req.Params.URI)
	assert.Equal(t, cmd.Position, req.Params.Selection.Start)
}

func TestHypothesisLocationNoResultFallsBackToCursor(t *testing.T) {
	sender := &recordingSender{}
	nav := New(sender, stubResolver{uri: ""})

	cmd := model.Command{
		Kind:     model.CommandGetHypothesisLoc,
		Uri:      "file:///a.lean",
		Position: model.Position{Line: 4, Character: 2},
	}
	nav.handle(cmd)

	require.Len(t, sender.frames, 1)
	req := decodeShowDocument(t, sender.frames[0])
	assert.Equal(t, "file:///a.lean", req.Params.URI)
}
