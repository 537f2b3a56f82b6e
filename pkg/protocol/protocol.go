// Package protocol defines the JSON-RPC 2.0 messages exchanged between the
// session client and a tool-execution server. Frames are JSON text messages
// carried over a WebSocket connection.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the only JSON-RPC version spoken.
const Version = "2.0"

// Method names.
const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
	MethodPing       = "ping"
)

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ContentTypeText is the only content block type produced by the server.
const ContentTypeText = "text"

// Request is a JSON-RPC request frame.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest marshals params into a request frame.
func NewRequest(id uint64, method string, params any) (*Request, error) {
	req := &Request{JSONRPC: Version, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s params: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// Response is a JSON-RPC response frame. Exactly one of Result and Error is
// set on a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult marshals result into a success frame for id.
func NewResult(id uint64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewError builds an error frame for id.
func NewError(id uint64, code int, message string) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: &Error{Code: code, Message: message}}
}

// Decode unmarshals the result payload into v. A JSON-RPC error frame is
// returned as *Error.
func (r *Response) Decode(v any) error {
	if r.Error != nil {
		return r.Error
	}
	if r.JSONRPC != Version {
		return fmt.Errorf("unexpected jsonrpc version %q", r.JSONRPC)
	}
	if len(r.Result) == 0 {
		return fmt.Errorf("response %d has neither result nor error", r.ID)
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// InitializeParams opens a session.
type InitializeParams struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
}

// InitializeResult identifies the server and the session it created.
type InitializeResult struct {
	ServerName    string `json:"serverName"`
	ServerVersion string `json:"serverVersion"`
	SessionID     string `json:"sessionId"`
}

// Tool is one advertised capability.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsResult is the payload of tools/list.
type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

// CallToolParams is the payload of tools/call.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Content is one block of tool output.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is what a tool produced. IsError marks a failure reported
// by the tool itself, as opposed to a protocol or transport failure.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult wraps text in a single content block.
func TextResult(text string, isError bool) CallToolResult {
	return CallToolResult{
		Content: []Content{{Type: ContentTypeText, Text: text}},
		IsError: isError,
	}
}

// Text joins the text blocks of the result.
func (r CallToolResult) Text() string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if c.Type == ContentTypeText || c.Type == "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
