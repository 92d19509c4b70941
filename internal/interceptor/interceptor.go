// Package interceptor mediates editor<->build-server traffic: every frame
// is forwarded byte-for-byte, while position-carrying requests and document
// sync notifications are classified and fanned out — without ever altering
// or delaying the message in flight. This is the brain of the transparency
// contract, grounded on the reference proxy's own read-classify-forward
// loop but split into the editor-direction and server-direction instances
// the cyclic wiring (§4.C) requires.
package interceptor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rockerboo/lean-proof-bridge/internal/codec"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
)

// positionCarryingMethods is the fixed set of request methods whose params
// carry a cursor coordinate worth extracting (§4.C classification rules).
var positionCarryingMethods = map[string]bool{
	"textDocument/hover":             true,
	"textDocument/definition":        true,
	"textDocument/typeDefinition":    true,
	"textDocument/implementation":    true,
	"textDocument/references":        true,
	"textDocument/documentHighlight": true,
	"textDocument/signatureHelp":     true,
	"textDocument/completion":        true,
}

// Sender forwards a raw frame downstream. An implementation that is called
// from more than one goroutine must keep each frame whole; the binary's
// senders do so by writing every frame in one Write on a mutex-guarded
// writer.
type Sender interface {
	Send(frame *codec.Frame) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(frame *codec.Frame) error

func (f SenderFunc) Send(frame *codec.Frame) error { return f(frame) }

// DeferredSender is an initialize-once-before-use wrapper for a Sender
// whose identity is not known until both directions of the interceptor
// exist (§4.C "Deferred wiring", §9 "Cyclic wiring"). Calling Send before
// Set panics: this is a startup-order programmer invariant, not a
// runtime-recoverable condition.
type DeferredSender struct {
	inner Sender
}

// Set installs the real Sender. Must be called exactly once.
func (d *DeferredSender) Set(s Sender) {
	if d.inner != nil {
		panic("interceptor: DeferredSender.Set called twice")
	}
	d.inner = s
}

func (d *DeferredSender) Send(frame *codec.Frame) error {
	if d.inner == nil {
		panic("interceptor: DeferredSender used before Set")
	}
	return d.inner.Send(frame)
}

// Observer receives the side effects a classified message produces. The
// interceptor never blocks the forwarding path on an Observer call; callers
// are expected to make these non-blocking (buffered channel sends, best
// effort drops) per §4.C's fire-and-forget contract.
type Observer interface {
	// OnCursor fires for any position-carrying request or a didChange with
	// an extractable range.
	OnCursor(c model.CursorInfo)
	// OnDidOpen fires for textDocument/didOpen.
	OnDidOpen(uri string, version uint32)
	// OnDidChange fires for textDocument/didChange; version is the new
	// document version.
	OnDidChange(uri string, version uint32)
}

// Interceptor reads frames from one direction of the editor<->build-server
// conversation, classifies them, fans out observations, and forwards the
// original bytes unchanged to dst.
type Interceptor struct {
	name string // "editor->server" or "server->editor", for logging only
	src  *codec.Reader
	dst  Sender
	obs  Observer
}

func New(name string, src io.Reader, dst Sender, obs Observer) *Interceptor {
	return &Interceptor{name: name, src: codec.NewReader(src), dst: dst, obs: obs}
}

// Run reads and forwards frames until the source stream ends or errors.
// A clean EOF returns nil; any other error is returned so the caller can
// decide how to end the process (§7 "transparent-path errors are terminal").
func (ic *Interceptor) Run() error {
	for {
		frame, err := ic.src.ReadFrame()
		if err == io.EOF {
			logging.Info("interceptor stream closed", "direction", ic.name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", ic.name, err)
		}

		ic.classify(frame.Body)

		if err := ic.dst.Send(frame); err != nil {
			return fmt.Errorf("%s: forwarding frame: %w", ic.name, err)
		}
	}
}

type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type textDocumentID struct {
	URI string `json:"uri"`
}

type positionParams struct {
	TextDocument textDocumentID `json:"textDocument"`
	Position     model.Position `json:"position"`
}

type didOpenParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version uint32 `json:"version"`
	} `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument struct {
		URI     string `json:"uri"`
		Version uint32 `json:"version"`
	} `json:"textDocument"`
	ContentChanges []struct {
		Range *struct {
			Start model.Position `json:"start"`
		} `json:"range,omitempty"`
	} `json:"contentChanges"`
}

// classify inspects a message's method and params, firing Observer
// callbacks for the cases §4.C names. It never mutates body and never
// returns an error: a message this interceptor doesn't recognize, or
// whose params don't parse as expected, is simply forwarded untouched.
func (ic *Interceptor) classify(body []byte) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Method == "" {
		return
	}

	switch {
	case positionCarryingMethods[env.Method]:
		var p positionParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return
		}
		ic.obs.OnCursor(model.CursorInfo{
			Uri:      p.TextDocument.URI,
			Position: p.Position,
			Trigger:  env.Method,
		})

	case env.Method == "textDocument/didOpen":
		var p didOpenParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return
		}
		ic.obs.OnDidOpen(p.TextDocument.URI, p.TextDocument.Version)

	case env.Method == "textDocument/didChange":
		var p didChangeParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return
		}
		if len(p.ContentChanges) == 0 {
			// An empty contentChanges list means the server's document
			// state didn't actually change; no cursor event, no session
			// invalidation.
			return
		}
		ic.obs.OnDidChange(p.TextDocument.URI, p.TextDocument.Version)
		if p.ContentChanges[0].Range != nil {
			ic.obs.OnCursor(model.CursorInfo{
				Uri:      p.TextDocument.URI,
				Position: p.ContentChanges[0].Range.Start,
				Trigger:  "didChange",
			})
		}

	default:
		logUnhandled(env.Method)
	}
}
