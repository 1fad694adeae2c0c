// Package jsonrpc implements the JSON-RPC 2.0 envelope spoken on the MCP endpoint.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version accepted.
const Version = "2.0"

// Standard error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Request is a decoded call. A nil ID marks a notification.
type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

// IsNotification reports whether the caller expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response carries exactly one of Result or Error.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// Error is a protocol-level failure. It satisfies the error interface so
// decoding helpers can return it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Decode parses a request body. The returned error is always an *Error
// whose code can be sent back to the caller as is.
func Decode(body []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &Error{Code: ParseError, Message: "Invalid JSON"}
	}
	if req.JSONRPC != Version {
		return &req, &Error{Code: InvalidRequest, Message: "Invalid JSON-RPC version"}
	}
	if req.Method == "" {
		return &req, &Error{Code: InvalidRequest, Message: "Missing method"}
	}
	return &req, nil
}

// NewErrorResponse builds an error response for id, which may be nil when
// the request could not be parsed.
func NewErrorResponse(id *json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// NewSuccessResponse marshals result into a response. A result that cannot
// be marshalled turns into an InternalError response.
func NewSuccessResponse(id *json.RawMessage, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, InternalError, "failed to encode result: "+err.Error())
	}
	return Response{
		JSONRPC: Version,
		ID:      id,
		Result:  raw,
	}
}
