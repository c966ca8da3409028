// Package rpc exposes ledger state and transaction submission via a
// JSON-RPC 2.0 HTTP endpoint plus a websocket event stream.
package rpc

import (
	"encoding/json"
	"errors"

	"github.com/tolelom/tolarena/core"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error represents a JSON-RPC error object. Data carries the domain error
// name (e.g. "NotPlayerTurn") when there is one.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeUnauthorized   = -32000
	CodeTxRejected     = -32001
	CodeNotFound       = -32004
)

func errResponse(id any, code int, msg string) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: msg},
	}
}

// errFrom maps a handler error to a response, keeping the domain name.
func errFrom(id any, code int, err error) Response {
	if code == CodeInternalError && (errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrSessionNotFound)) {
		code = CodeNotFound
	}
	resp := errResponse(id, code, err.Error())
	resp.Error.Data = core.ErrorName(err)
	return resp
}

func okResponse(id, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}
