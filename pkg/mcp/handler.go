package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gridctl/toolgate/pkg/jsonrpc"
	"github.com/gridctl/toolgate/pkg/openapi"
)

// SessionHeader carries the MCP session id.
const SessionHeader = "Mcp-Session-Id"

// Handler serves the MCP JSON-RPC surface of a Gateway.
type Handler struct {
	gateway *Gateway
}

// NewHandler creates a new MCP HTTP handler.
func NewHandler(gateway *Gateway) *Handler {
	return &Handler{gateway: gateway}
}

// ServeHTTP handles MCP requests at /mcp.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodDelete:
		if id := r.Header.Get(SessionHeader); id != "" {
			h.gateway.Sessions().Delete(id)
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost handles JSON-RPC requests.
func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, nil, ParseError, "Failed to read request body")
		return
	}

	req, rpcErr := jsonrpc.Decode(body)
	if rpcErr != nil {
		var id *json.RawMessage
		if req != nil {
			id = req.ID
		}
		h.writeError(w, id, rpcErr.Code, rpcErr.Message)
		return
	}

	if id := r.Header.Get(SessionHeader); id != "" && !h.gateway.Sessions().Touch(id) {
		h.gateway.logger.Debug("request for unknown session", "session", id)
	}

	// Notifications get no body.
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := h.handleMethod(w, r, req)
	h.writeResponse(w, resp)
}

// handleMethod routes the request to the appropriate handler.
func (h *Handler) handleMethod(w http.ResponseWriter, r *http.Request, req *Request) Response {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(w, req)
	case "tools/list":
		return h.handleToolsList(r, req)
	case "tools/call":
		return h.handleToolsCall(r, req)
	case "ping":
		return NewSuccessResponse(req.ID, struct{}{})
	default:
		return NewErrorResponse(req.ID, MethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (h *Handler) handleInitialize(w http.ResponseWriter, req *Request) Response {
	var params InitializeParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, InvalidParams, "Invalid initialize params")
		}
	}

	result, session := h.gateway.HandleInitialize(params)
	w.Header().Set(SessionHeader, session.ID)
	return NewSuccessResponse(req.ID, result)
}

func (h *Handler) handleToolsList(r *http.Request, req *Request) Response {
	tools, err := h.gateway.ListTools(r.Context())
	if err != nil {
		return NewErrorResponse(req.ID, InternalError, err.Error())
	}
	return NewSuccessResponse(req.ID, ToolsListResult{Tools: tools})
}

func (h *Handler) handleToolsCall(r *http.Request, req *Request) Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return NewErrorResponse(req.ID, InvalidParams, "Invalid tools/call params")
	}

	result, err := h.gateway.CallTool(r.Context(), params.Name, params.Arguments)
	if err != nil {
		return NewErrorResponse(req.ID, errorCode(err), err.Error())
	}
	return NewSuccessResponse(req.ID, result)
}

// errorCode maps gateway errors to JSON-RPC codes.
func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return AccessDeniedCode
	case errors.Is(err, ErrApprovalRequired):
		return ApprovalRequiredCode
	case errors.Is(err, ErrMalformedToolName),
		errors.Is(err, ErrUnknownTool),
		errors.Is(err, openapi.ErrInvalidArguments),
		errors.Is(err, openapi.ErrMissingParameter):
		return InvalidParams
	default:
		return InternalError
	}
}

// writeResponse writes a JSON-RPC response.
func (h *Handler) writeResponse(w http.ResponseWriter, resp Response) {
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeError writes a JSON-RPC error response.
func (h *Handler) writeError(w http.ResponseWriter, id *json.RawMessage, code int, message string) {
	h.writeResponse(w, NewErrorResponse(id, code, message))
}
