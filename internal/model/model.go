// Package model holds the wire-level data types shared across the
// interceptor: cursor snapshots, per-document state, the outbound Message
// and inbound Command variants exchanged with viewers.
package model

import (
	"encoding/json"
	"sync"

	"github.com/rockerboo/lean-proof-bridge/internal/proofdag"
	"github.com/rockerboo/lean-proof-bridge/internal/uri"
)

// Position is a zero-indexed LSP position, immutable once constructed.
// Aliased from proofdag so both packages share one wire representation
// without an import cycle (proofdag.ProofDagNode also embeds a Position).
type Position = proofdag.Position

// CursorInfo snapshots one cursor observation. Trigger records which LSP
// method surfaced it, for diagnostics.
type CursorInfo struct {
	Uri      string   `json:"uri"`
	Position Position `json:"position"`
	Trigger  string   `json:"trigger"`
}

// DocumentState is the per-URI mutable record the shadow client keeps for
// each document. The interceptor keeps no copy of its own; it only passes
// didOpen/didChange versions on to its Observer.
type DocumentState struct {
	Version uint32
}

// DocumentTable is a mutex-guarded uri -> DocumentState map. The shadow
// client owns the only instance; the interceptor has none.
type DocumentTable struct {
	mu   sync.Mutex
	docs map[string]*DocumentState
}

func NewDocumentTable() *DocumentTable {
	return &DocumentTable{docs: make(map[string]*DocumentState)}
}

// Open records a document at the given version, creating its entry.
func (t *DocumentTable) Open(uri string, version uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[uri] = &DocumentState{Version: version}
}

// Change advances a document's version. If the document was never opened
// (full-document sync edge cases, or out-of-order delivery), it is created.
func (t *DocumentTable) Change(uri string, version uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.docs[uri]
	if !ok {
		t.docs[uri] = &DocumentState{Version: version}
		return
	}
	if version > d.Version {
		d.Version = version
	}
}

// Version returns the latest known version for uri, and whether it is
// tracked at all.
func (t *DocumentTable) Version(uri string) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.docs[uri]
	if !ok {
		return 0, false
	}
	return d.Version, true
}

// SessionState is one of Absent, Opening, Active, Invalidated per §4.D.
type SessionState int

const (
	SessionAbsent SessionState = iota
	SessionOpening
	SessionActive
	SessionInvalidated
)

func (s SessionState) String() string {
	switch s {
	case SessionAbsent:
		return "absent"
	case SessionOpening:
		return "opening"
	case SessionActive:
		return "active"
	case SessionInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// sessionEntry pairs a state with the session id once active, plus a
// condition variable so concurrent callers needing a session for the same
// URI block on the single in-flight connect instead of racing it.
type sessionEntry struct {
	state     SessionState
	sessionID string
	opening   chan struct{} // closed when an in-flight Opening transition completes
}

// SessionTable maps uri -> custom-RPC session id, with at most one live
// session per URI and at most one concurrent connect per URI (§4.D
// invariant). Owned exclusively by the shadow client.
type SessionTable struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
}

func NewSessionTable() *SessionTable {
	return &SessionTable{entries: make(map[string]*sessionEntry)}
}

// State returns the current state and, if Active, the session id.
func (t *SessionTable) State(uri string) (SessionState, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[uri]
	if !ok {
		return SessionAbsent, ""
	}
	return e.state, e.sessionID
}

// BeginOpen transitions Absent/Invalidated -> Opening for uri, returning
// (true, nil) if this caller won the race and must perform the connect, or
// (false, wait) if another caller is already connecting and the returned
// channel closes when that attempt finishes (re-check State afterward).
func (t *SessionTable) BeginOpen(uri string) (winner bool, wait <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[uri]
	if ok && e.state == SessionOpening {
		return false, e.opening
	}
	if ok && e.state == SessionActive {
		// already active; nothing to open
		ch := make(chan struct{})
		close(ch)
		return false, ch
	}

	e = &sessionEntry{state: SessionOpening, opening: make(chan struct{})}
	t.entries[uri] = e
	return true, e.opening
}

// CompleteOpen finishes an Opening transition: success moves to Active with
// sessionID, failure moves back to Absent.
func (t *SessionTable) CompleteOpen(uri string, sessionID string, err error) {
	t.mu.Lock()
	e, ok := t.entries[uri]
	if !ok {
		e = &sessionEntry{opening: make(chan struct{})}
		t.entries[uri] = e
	}
	if err != nil {
		e.state = SessionAbsent
		e.sessionID = ""
	} else {
		e.state = SessionActive
		e.sessionID = sessionID
	}
	ch := e.opening
	e.opening = make(chan struct{})
	t.mu.Unlock()
	close(ch)
}

// Invalidate transitions Active -> Invalidated for uri (on didChange or on
// a session-expired RPC error). A no-op if the URI has no entry.
func (t *SessionTable) Invalidate(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[uri]
	if !ok {
		return
	}
	e.state = SessionInvalidated
	e.sessionID = ""
}

// Message is the tagged union broadcast to viewers. Kind decides which
// optional fields are set: Cursor for Cursor; Uri, Position and Dag for
// ProofDag; Error for Error; none for Connected.
type Message struct {
	Kind     string            `json:"type"`
	Cursor   *CursorInfo       `json:"cursor,omitempty"`
	Uri      string            `json:"uri,omitempty"`
	Position *Position         `json:"position,omitempty"`
	Dag      *proofdag.ProofDag `json:"dag,omitempty"`
	Error    string            `json:"error,omitempty"`
}

const (
	MessageConnected = "Connected"
	MessageCursor    = "Cursor"
	MessageProofDag  = "ProofDag"
	MessageError     = "Error"
)

func NewConnectedMessage() Message { return Message{Kind: MessageConnected} }

func NewCursorMessage(c CursorInfo) Message {
	return Message{Kind: MessageCursor, Cursor: &c}
}

func NewProofDagMessage(uri string, pos Position, dag *proofdag.ProofDag) Message {
	return Message{Kind: MessageProofDag, Uri: uri, Position: &pos, Dag: dag}
}

func NewErrorMessage(err string) Message {
	return Message{Kind: MessageError, Error: err}
}

// Command is the tagged union accepted from viewers.
type Command struct {
	Kind     string          `json:"type"`
	Uri      string          `json:"uri,omitempty"`
	Position Position        `json:"position,omitempty"`
	Info     json.RawMessage `json:"info,omitempty"`
}

const (
	CommandNavigate         = "Navigate"
	CommandGetHypothesisLoc = "GetHypothesisLocation"
)

// ParseCommand decodes one line of viewer input into a Command. Malformed
// input is the caller's responsibility to log and skip (§7 propagation
// policy); this function only reports the JSON error. A viewer-supplied uri
// that's a bare local path rather than a file:// URI is normalized, since
// a terminal client is more likely to type a path than a URI by hand.
func ParseCommand(line []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(line, &c); err != nil {
		return Command{}, err
	}
	if c.Uri != "" {
		c.Uri = uri.Normalize(c.Uri)
	}
	return c, nil
}
