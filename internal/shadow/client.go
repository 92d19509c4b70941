// Package shadow implements the second logical JSON-RPC conversation with
// the build-server child: the one that issues the theorem-prover's custom
// `$/lean/rpc/*` methods to fetch a proof DAG at the cursor. It is
// multiplexed onto the single physical connection to that child, using a
// request-id range disjoint from the editor's own ids.
//
// Grounded on the reference client's rpc_call_with_retry / get_proof_dag
// algorithm and on the bridge's own lsp/tcp_client.go stream wiring
// (jsonrpc2.NewBufferedStream + VSCodeObjectCodec for Content-Length
// framing), with the bridge's lsp/session_client.go Call()/pending-map
// pattern providing the request/response correlation shape — adapted here
// to keep request-id allocation under this package's own control rather
// than a jsonrpc2.Conn's internal counter, since the id floor is a
// protocol requirement (disjoint from editor ids) that this package must
// enforce itself.
package shadow

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/rockerboo/lean-proof-bridge/internal/errs"
	"github.com/rockerboo/lean-proof-bridge/internal/logging"
	"github.com/rockerboo/lean-proof-bridge/internal/model"
	"github.com/rockerboo/lean-proof-bridge/internal/proofdag"
)

const (
	methodRPCConnect         = "$/lean/rpc/connect"
	methodRPCCall            = "$/lean/rpc/call"
	methodRPCKeepAlive       = "$/lean/rpc/keepAlive"
	methodWaitForDiagnostics = "textDocument/waitForDiagnostics"
	methodGetProofDag        = "LeanDag.getProofDag"
	methodGetGoToLocation    = "Lean.Widget.getGoToLocation"
)

// Publisher delivers shadow-client results to the viewer bus.
type Publisher interface {
	Publish(model.Message)
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcErrorPayload struct {
	Code    int32  `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *rpcErrorPayload `json:"error"`
}

// Client is the shadow RPC conversation. One Client exists per process,
// bound to the build-server's shared physical connection.
type Client struct {
	stream jsonrpc2.ObjectStream

	nextID int64 // atomic; pre-incremented, so starts one below the floor

	mu      sync.Mutex
	pending map[int64]chan rpcResponse

	docs     *model.DocumentTable
	sessions *model.SessionTable
	pub      Publisher
}

// New creates a shadow client whose outbound writes and inbound reads go
// through rw. rw is typically one end of a tee of the build-server's real
// stdio: every frame the server sends is delivered here too, and every
// frame this client sends is interleaved (atomically, per-frame) onto the
// server's real stdin alongside editor-originated traffic.
func New(rw io.ReadWriteCloser, requestIDFloor int64, pub Publisher) *Client {
	c := &Client{
		stream:   jsonrpc2.NewBufferedStream(rw, jsonrpc2.VSCodeObjectCodec{}),
		nextID:   requestIDFloor - 1,
		pending:  make(map[int64]chan rpcResponse),
		docs:     model.NewDocumentTable(),
		sessions: model.NewSessionTable(),
		pub:      pub,
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		var resp rpcResponse
		if err := c.stream.ReadObject(&resp); err != nil {
			logging.Info("shadow client stream closed", "error", err.Error())
			return
		}
		if resp.ID == 0 {
			continue // a notification or a request meant for someone else
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		if ok {
			delete(c.pending, resp.ID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

func (c *Client) call(method string, params interface{}) (rpcResponse, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan rpcResponse, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := c.stream.WriteObject(&req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return rpcResponse{}, errs.WrapIo(err, fmt.Sprintf("sending %s", method))
	}

	resp := <-ch
	if resp.Error != nil {
		return rpcResponse{}, errs.NewRpcError(&resp.Error.Code, resp.Error.Message)
	}
	return resp, nil
}

// KeepAlive constructs and sends a $/lean/rpc/keepAlive notification. No
// caller in this codebase schedules it on a timer (§9 open question,
// resolved as reconnection-not-keepalive); it exists for forward
// compatibility with a future scheduler.
func (c *Client) KeepAlive(uri, sessionID string) error {
	n := rpcNotification{
		JSONRPC: "2.0",
		Method:  methodRPCKeepAlive,
		Params:  map[string]string{"uri": uri, "sessionId": sessionID},
	}
	if err := c.stream.WriteObject(&n); err != nil {
		return errs.WrapIo(err, "sending keepAlive")
	}
	return nil
}

// DidOpen records a document revision forwarded from the interceptor. The
// real didOpen notification already reached the server over the shared
// physical connection; this only keeps the shadow client's own mirror
// coherent so it knows what version to wait for diagnostics on.
func (c *Client) DidOpen(uri string, version uint32) {
	c.docs.Open(uri, version)
}

// DidChange mirrors a document revision and evicts the URI's RPC session,
// since the server discards sessions on edit.
func (c *Client) DidChange(uri string, version uint32) {
	c.docs.Change(uri, version)
	c.sessions.Invalidate(uri)
}

func (c *Client) ensureSession(uri string) (string, error) {
	if state, id := c.sessions.State(uri); state == model.SessionActive {
		return id, nil
	}

	winner, wait := c.sessions.BeginOpen(uri)
	if !winner {
		<-wait
		if state, id := c.sessions.State(uri); state == model.SessionActive {
			return id, nil
		}
		return "", errs.NewSessionOpenFailed(uri, "concurrent session open did not succeed")
	}

	resp, err := c.call(methodRPCConnect, map[string]string{"uri": uri})
	if err != nil {
		c.sessions.CompleteOpen(uri, "", err)
		return "", errs.NewSessionOpenFailed(uri, err.Error())
	}

	var connectResult struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(resp.Result, &connectResult); err != nil {
		parseErr := errs.NewParseError(string(resp.Result), err.Error())
		c.sessions.CompleteOpen(uri, "", parseErr)
		return "", parseErr
	}

	c.sessions.CompleteOpen(uri, connectResult.SessionID, nil)
	return connectResult.SessionID, nil
}

// GetProofDag runs the fetch protocol (§4.D) and publishes its outcome —
// a ProofDag message on success (possibly with a nil Dag for "no DAG
// here"), or an Error message on failure. It never returns an error to the
// caller: this is the fire-and-forget job a fetch goroutine runs to
// completion.
func (c *Client) GetProofDag(uri string, position model.Position, mode string) {
	dag, err := c.fetchProofDag(uri, position, mode, true)
	if err != nil {
		logging.Warn("proof dag fetch failed", "uri", uri, "position", position.String(), "error", err.Error())
		c.pub.Publish(model.NewErrorMessage(err.Error()))
		return
	}
	c.pub.Publish(model.NewProofDagMessage(uri, position, dag))
}

func (c *Client) fetchProofDag(uri string, position model.Position, mode string, allowRetry bool) (*proofdag.ProofDag, error) {
	version, ok := c.docs.Version(uri)
	if !ok {
		version = 1
	}

	if _, err := c.call(methodWaitForDiagnostics, map[string]interface{}{
		"uri":     uri,
		"version": version,
	}); err != nil {
		return nil, err
	}

	sessionID, err := c.ensureSession(uri)
	if err != nil {
		return nil, err
	}

	textDocument := map[string]string{"uri": uri}
	innerParams := map[string]interface{}{
		"textDocument": textDocument,
		"position":     position,
		"mode":         mode,
	}
	outerParams := map[string]interface{}{
		"textDocument": textDocument,
		"position":     position,
		"sessionId":    sessionID,
		"method":       methodGetProofDag,
		"params":       innerParams,
	}

	resp, err := c.call(methodRPCCall, outerParams)
	if err != nil {
		var rpcErr *errs.RpcError
		if errors.As(err, &rpcErr) && rpcErr.IsSessionExpired() {
			c.sessions.Invalidate(uri)
			if allowRetry {
				return c.fetchProofDag(uri, position, mode, false)
			}
			return nil, errs.NewSessionExpired(uri)
		}
		return nil, err
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, nil
	}

	var result struct {
		ProofDag proofdag.ProofDag `json:"proofDag"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, errs.NewParseError(string(resp.Result), err.Error())
	}
	return &result.ProofDag, nil
}

// locationLink mirrors the shape the widget RPC returns, accepting either a
// LocationLink or a plain Location normalized into one (§4.D "Hypothesis
// location resolution").
type locationLink struct {
	TargetURI            string          `json:"targetUri"`
	TargetRange          json.RawMessage `json:"targetRange,omitempty"`
	TargetSelectionRange json.RawMessage `json:"targetSelectionRange,omitempty"`
	URI                  string          `json:"uri,omitempty"`
	Range                json.RawMessage `json:"range,omitempty"`
}

func (l locationLink) normalized() (uri string, selectionRange json.RawMessage, ok bool) {
	if l.TargetURI != "" {
		return l.TargetURI, l.TargetSelectionRange, true
	}
	if l.URI != "" {
		return l.URI, l.Range, true
	}
	return "", nil, false
}

// GetGoToLocation tunnels Lean.Widget.getGoToLocation through the shadow
// session and normalizes its result. A nil return with a nil error means
// "no definition found" — not an error.
func (c *Client) GetGoToLocation(uri string, position model.Position, info json.RawMessage) (target string, selectionRange json.RawMessage, err error) {
	sessionID, err := c.ensureSession(uri)
	if err != nil {
		return "", nil, err
	}

	textDocument := map[string]string{"uri": uri}
	innerParams := map[string]interface{}{
		"kind": "definition",
		"info": info,
	}
	outerParams := map[string]interface{}{
		"textDocument": textDocument,
		"position":     position,
		"sessionId":    sessionID,
		"method":       methodGetGoToLocation,
		"params":       innerParams,
	}

	resp, callErr := c.call(methodRPCCall, outerParams)
	if callErr != nil {
		var rpcErr *errs.RpcError
		if errors.As(callErr, &rpcErr) && rpcErr.IsSessionExpired() {
			c.sessions.Invalidate(uri)
			sessionID, err = c.ensureSession(uri)
			if err != nil {
				return "", nil, err
			}
			outerParams["sessionId"] = sessionID
			resp, callErr = c.call(methodRPCCall, outerParams)
		}
		if callErr != nil {
			return "", nil, callErr
		}
	}

	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return "", nil, nil
	}

	var single locationLink
	if err := json.Unmarshal(resp.Result, &single); err == nil {
		if u, r, ok := single.normalized(); ok {
			return u, r, nil
		}
	}

	var many []locationLink
	if err := json.Unmarshal(resp.Result, &many); err == nil && len(many) > 0 {
		if u, r, ok := many[0].normalized(); ok {
			return u, r, nil
		}
	}

	return "", nil, nil
}
