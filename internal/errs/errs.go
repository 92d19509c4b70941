// Package errs defines the error taxonomy shared by every component of the
// interceptor. Each variant is a distinct Go type so callers can distinguish
// them with errors.As, and every constructor records a stack trace via
// cockroachdb/errors so logs carry a useful origin even for errors that
// cross several goroutine boundaries before they're logged.
package errs

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// SessionExpiredCode is the build-server's well-known error code for a
// custom-RPC session pinned to a document revision that no longer exists.
const SessionExpiredCode = -32900

// SessionExpiredText is matched as a substring when a server omits the code
// but still reports session expiry in its error message.
const SessionExpiredText = "Outdated RPC session"

// CodecError wraps a malformed LSP frame: bad Content-Length header, missing
// terminator, or a truncated body.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string { return fmt.Sprintf("codec: %s", e.Reason) }

func NewCodec(reason string) error {
	return errors.WithStack(&CodecError{Reason: reason})
}

// RpcError is a server-returned JSON-RPC error on a request the core issued
// (normally from the shadow client).
type RpcError struct {
	Code    *int32
	Message string
}

func (e *RpcError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("rpc error %d: %s", *e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error: %s", e.Message)
}

// IsSessionExpired reports whether this RPC error is the sentinel session
// expiry condition, by code or by text match.
func (e *RpcError) IsSessionExpired() bool {
	if e.Code != nil && *e.Code == SessionExpiredCode {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), strings.ToLower(SessionExpiredText))
}

func NewRpcError(code *int32, message string) error {
	return errors.WithStack(&RpcError{Code: code, Message: message})
}

// SessionExpiredError is the specialization of RpcError surfaced after the
// single permitted retry has already been spent.
type SessionExpiredError struct {
	Uri string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired for %s", e.Uri)
}

func NewSessionExpired(uri string) error {
	return errors.WithStack(&SessionExpiredError{Uri: uri})
}

// SessionOpenFailedError reports that $/lean/rpc/connect itself failed.
type SessionOpenFailedError struct {
	Uri    string
	Reason string
}

func (e *SessionOpenFailedError) Error() string {
	return fmt.Sprintf("session open failed for %s: %s", e.Uri, e.Reason)
}

func NewSessionOpenFailed(uri, reason string) error {
	return errors.WithStack(&SessionOpenFailedError{Uri: uri, Reason: reason})
}

// ParseError is a custom-RPC result that was valid JSON but the wrong shape.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s (raw=%s)", e.Reason, truncate(e.Raw, 256))
}

func NewParseError(raw, reason string) error {
	return errors.WithStack(&ParseError{Raw: raw, Reason: reason})
}

// BackendNotFoundError reports that no build-server binary could be
// launched, carrying every candidate path that was tried.
type BackendNotFoundError struct {
	SearchedPaths []string
}

func (e *BackendNotFoundError) Error() string {
	return fmt.Sprintf("no runnable back-end binary found, searched: %v", e.SearchedPaths)
}

func NewBackendNotFound(searched []string) error {
	return errors.WithStack(&BackendNotFoundError{SearchedPaths: searched})
}

// InvalidRequestError marks a programmer error: the core tried to build a
// malformed outbound request. It is never recovered, only logged.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func NewInvalidRequest(reason string) error {
	return errors.WithStack(&InvalidRequestError{Reason: reason})
}

// WrapIo tags an I/O-origin error (stream/file/socket) without changing its
// identity for errors.Is/errors.As purposes.
func WrapIo(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "io: %s", context)
}

// WrapJson tags a JSON marshal/unmarshal failure on a typed message.
func WrapJson(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "json: %s", context)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

