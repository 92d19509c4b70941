// Package navigator drains viewer commands and translates each into the
// editor-directed LSP request that carries it out, per §4.F.
package navigator

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/rockerboo/lean-proof-bridge/internal/codec"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
)

// LocationResolver is the subset of the shadow client's surface the
// navigator needs: resolving a hypothesis's goto-location via the
// Lean.Widget.getGoToLocation RPC.
type LocationResolver interface {
	GetGoToLocation(uri string, position model.Position, info json.RawMessage) (targetURI string, selectionRange json.RawMessage, err error)
}

// Sender forwards a raw frame to the editor.
type Sender interface {
	Send(frame *codec.Frame) error
}

// Navigator translates Commands into editor-bound LSP requests.
type Navigator struct {
	out      Sender
	resolver LocationResolver
	nextID   int64
}

func New(out Sender, resolver LocationResolver) *Navigator {
	return &Navigator{out: out, resolver: resolver, nextID: 0}
}

// Run drains cmds until the channel closes.
func (n *Navigator) Run(cmds <-chan model.Command) {
	for cmd := range cmds {
		n.handle(cmd)
	}
}

func (n *Navigator) handle(cmd model.Command) {
	switch cmd.Kind {
	case model.CommandNavigate:
		if err := n.sendShowDocument(cmd.Uri, cmd.Position); err != nil {
			logging.Warn("navigate command failed", "uri", cmd.Uri, "error", err.Error())
		}

	case model.CommandGetHypothesisLoc:
		n.handleGetHypothesisLocation(cmd)

	default:
		logging.Warn("unrecognized viewer command ignored", "kind", cmd.Kind)
	}
}

// handleGetHypothesisLocation resolves the RPC once; any failure or
// no-result falls back to the command's own originating position rather
// than retrying the RPC (§4.F's two-stage resolution).
func (n *Navigator) handleGetHypothesisLocation(cmd model.Command) {
	targetURI, selectionRange, err := n.resolver.GetGoToLocation(cmd.Uri, cmd.Position, cmd.Info)
	if err != nil {
		logging.Info("hypothesis location RPC failed, falling back to cursor position", "uri", cmd.Uri, "error", err.Error())
		n.fallbackToCursor(cmd)
		return
	}
	if targetURI == "" {
		n.fallbackToCursor(cmd)
		return
	}
	if err := n.sendShowDocument(targetURI, targetPosition(selectionRange)); err != nil {
		logging.Warn("showDocument for resolved hypothesis location failed", "uri", targetURI, "error", err.Error())
	}
}

// targetPosition extracts the "start" of a resolved selectionRange. A nil or
// malformed range falls back to the zero position rather than failing the
// navigation outright.
func targetPosition(selectionRange json.RawMessage) model.Position {
	if len(selectionRange) == 0 {
		return model.Position{}
	}
	var r struct {
		Start model.Position `json:"start"`
	}
	if err := json.Unmarshal(selectionRange, &r); err != nil {
		return model.Position{}
	}
	return r.Start
}

func (n *Navigator) fallbackToCursor(cmd model.Command) {
	if err := n.sendShowDocument(cmd.Uri, cmd.Position); err != nil {
		logging.Warn("navigate fallback failed", "uri", cmd.Uri, "error", err.Error())
	}
}

type showDocumentParams struct {
	URI       string    `json:"uri"`
	External  bool      `json:"external"`
	TakeFocus bool      `json:"takeFocus"`
	Selection selection `json:"selection"`
}

type selection struct {
	Start model.Position `json:"start"`
	End   model.Position `json:"end"`
}

type showDocumentRequest struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      int64              `json:"id"`
	Method  string             `json:"method"`
	Params  showDocumentParams `json:"params"`
}

func (n *Navigator) sendShowDocument(uri string, pos model.Position) error {
	id := atomic.AddInt64(&n.nextID, 1)
	req := showDocumentRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "window/showDocument",
		Params: showDocumentParams{
			URI:       uri,
			External:  false,
			TakeFocus: true,
			Selection: selection{Start: pos, End: pos},
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling showDocument request: %w", err)
	}

	return n.out.Send(&codec.Frame{ContentLength: len(body), Body: body})
}
