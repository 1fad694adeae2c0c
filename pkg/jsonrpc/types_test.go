package jsonrpc

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantReq  bool
		notify   bool
	}{
		{name: "call", body: `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`, wantReq: true},
		{name: "notification", body: `{"jsonrpc":"2.0","method":"notifications/initialized"}`, wantReq: true, notify: true},
		{name: "string id", body: `{"jsonrpc":"2.0","id":"abc","method":"ping"}`, wantReq: true},
		{name: "invalid json", body: `{"jsonrpc":`, wantCode: ParseError},
		{name: "wrong version", body: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, wantCode: InvalidRequest, wantReq: true},
		{name: "missing version", body: `{"id":1,"method":"ping"}`, wantCode: InvalidRequest, wantReq: true},
		{name: "missing method", body: `{"jsonrpc":"2.0","id":1}`, wantCode: InvalidRequest, wantReq: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, rpcErr := Decode([]byte(tc.body))
			if tc.wantCode != 0 {
				require.NotNil(t, rpcErr)
				assert.Equal(t, tc.wantCode, rpcErr.Code)
			} else {
				require.Nil(t, rpcErr)
			}
			if !tc.wantReq {
				assert.Nil(t, req)
				return
			}
			require.NotNil(t, req)
			if tc.wantCode == 0 {
				assert.Equal(t, tc.notify, req.IsNotification())
			}
		})
	}
}

func TestDecode_KeepsIDOnInvalidRequest(t *testing.T) {
	req, rpcErr := Decode([]byte(`{"jsonrpc":"1.0","id":"r-9","method":"ping"}`))
	require.NotNil(t, rpcErr)
	require.NotNil(t, req.ID)
	assert.JSONEq(t, `"r-9"`, string(*req.ID))
}

func TestNewErrorResponse(t *testing.T) {
	id := json.RawMessage(`"req-1"`)
	resp := NewErrorResponse(&id, MethodNotFound, "Unknown method: prompts/list")

	assert.Equal(t, Version, resp.JSONRPC)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"req-1","error":{"code":-32601,"message":"Unknown method: prompts/list"}}`, string(data))
}

func TestNewErrorResponse_NilID(t *testing.T) {
	resp := NewErrorResponse(nil, ParseError, "Invalid JSON")

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"id"`)
}

func TestNewSuccessResponse(t *testing.T) {
	id := json.RawMessage(`1`)
	resp := NewSuccessResponse(&id, map[string]any{"tools": []string{}})

	assert.Nil(t, resp.Error)
	assert.JSONEq(t, `{"tools":[]}`, string(resp.Result))
}

func TestNewSuccessResponse_EmptyStruct(t *testing.T) {
	id := json.RawMessage(`2`)
	resp := NewSuccessResponse(&id, struct{}{})
	assert.Equal(t, "{}", string(resp.Result))
}

func TestNewSuccessResponse_Unencodable(t *testing.T) {
	id := json.RawMessage(`3`)
	resp := NewSuccessResponse(&id, math.Inf(1))

	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, InternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "failed to encode result")
}

func TestError_Error(t *testing.T) {
	err := &Error{Code: InvalidParams, Message: "Invalid tools/call params"}
	assert.Equal(t, "jsonrpc error -32602: Invalid tools/call params", err.Error())
}
