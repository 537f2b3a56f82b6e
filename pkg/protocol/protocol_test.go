package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(7, MethodCallTool, CallToolParams{Name: "navigate", Arguments: map[string]any{"url": "https://example.com"}})
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"navigate","arguments":{"url":"https://example.com"}}}`, string(raw))
}

func TestNewRequest_NoParams(t *testing.T) {
	req, err := NewRequest(1, MethodListTools, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, string(raw))
}

func TestResponse_Decode(t *testing.T) {
	resp, err := NewResult(3, TextResult("ok", false))
	require.NoError(t, err)

	var out CallToolResult
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "ok", out.Text())
	assert.False(t, out.IsError)
}

func TestResponse_DecodeError(t *testing.T) {
	resp := NewError(3, CodeMethodNotFound, "no such method")

	var out ListToolsResult
	err := resp.Decode(&out)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestResponse_DecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{name: "wrong version", resp: Response{JSONRPC: "1.0", ID: 1, Result: json.RawMessage(`{}`)}},
		{name: "empty", resp: Response{JSONRPC: Version, ID: 1}},
		{name: "bad payload", resp: Response{JSONRPC: Version, ID: 1, Result: json.RawMessage(`"text"`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out ListToolsResult
			assert.Error(t, tt.resp.Decode(&out))
		})
	}
}

func TestCallToolResult_Text(t *testing.T) {
	r := CallToolResult{Content: []Content{
		{Type: "text", Text: "first"},
		{Type: "image", Text: "ignored"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", r.Text())
}
