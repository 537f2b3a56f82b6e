package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/entrhq/autopilot/pkg/protocol"
	"github.com/entrhq/autopilot/pkg/task"
	"github.com/entrhq/autopilot/pkg/toolserver"
)

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func testTools(slow time.Duration) []toolserver.Tool {
	return []toolserver.Tool{
		&toolserver.Func{
			ToolName:        "navigate",
			ToolDescription: "Open a URL",
			InputSchema:     objectSchema(map[string]any{"url": map[string]any{"type": "string"}}, "url"),
			Fn: func(_ context.Context, raw json.RawMessage) (string, error) {
				var args struct {
					URL string `json:"url"`
				}
				if err := toolserver.DecodeArguments(raw, &args); err != nil {
					return "", err
				}
				return "navigated to " + args.URL, nil
			},
		},
		&toolserver.Func{
			ToolName:    "click",
			InputSchema: objectSchema(map[string]any{"selector": map[string]any{"type": "string"}}, "selector"),
			Fn: func(context.Context, json.RawMessage) (string, error) {
				return "", errors.New("element not found")
			},
		},
		&toolserver.Func{
			ToolName:    "slow",
			InputSchema: objectSchema(map[string]any{}),
			Fn: func(context.Context, json.RawMessage) (string, error) {
				time.Sleep(slow)
				return "slow done", nil
			},
		},
	}
}

func startServer(t *testing.T, tools []toolserver.Tool) (*toolserver.Server, string) {
	t.Helper()
	srv, err := toolserver.New("test-server", "0.0.1", tools)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func open(t *testing.T, endpoint string, opts ...Option) *Client {
	t.Helper()
	c, err := Open(context.Background(), endpoint, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_HandshakeAndListTools(t *testing.T) {
	_, endpoint := startServer(t, testTools(0))

	// httptest hands out http:// URLs; the client rewrites them.
	c := open(t, endpoint)

	assert.Equal(t, StateReady, c.State())
	assert.True(t, strings.HasPrefix(c.Endpoint(), "ws://"))
	assert.Equal(t, "test-server", c.ServerInfo().ServerName)
	assert.NotEmpty(t, c.ServerInfo().SessionID)

	descs, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 3)
	assert.Equal(t, "navigate", descs[0].Name)
	assert.Equal(t, "Open a URL", descs[0].Description)
	assert.Equal(t, "object", descs[0].Schema["type"])
}

func TestOpen_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	endpoint := ts.URL
	ts.Close()

	_, err := Open(context.Background(), endpoint, WithDialTimeout(time.Second))

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, IsRetryable(err))
}

func TestOpen_BadEndpoint(t *testing.T) {
	for _, endpoint := range []string{"ftp://example.com", "ws://", "://nope"} {
		_, err := Open(context.Background(), endpoint)
		var connErr *ConnectionError
		assert.ErrorAs(t, err, &connErr, endpoint)
	}
}

func TestInvoke_Success(t *testing.T) {
	srv, endpoint := startServer(t, testTools(0))
	c := open(t, endpoint)

	res, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "https://example.com"}})

	require.NoError(t, err)
	assert.Equal(t, "navigated to https://example.com", res.Content)
	assert.False(t, res.IsError)
	assert.Empty(t, res.Kind)
	assert.Equal(t, int64(1), srv.Calls())
}

func TestInvoke_ConcurrentCallsAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	echo := &toolserver.Func{
		ToolName:    "echo",
		InputSchema: objectSchema(map[string]any{"id": map[string]any{"type": "string"}}, "id"),
		Fn: func(_ context.Context, raw json.RawMessage) (string, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				seen := maxInFlight.Load()
				if n <= seen || maxInFlight.CompareAndSwap(seen, n) {
					break
				}
			}
			var args struct {
				ID string `json:"id"`
			}
			if err := toolserver.DecodeArguments(raw, &args); err != nil {
				return "", err
			}
			time.Sleep(10 * time.Millisecond)
			return "echo " + args.ID, nil
		},
	}
	srv, endpoint := startServer(t, []toolserver.Tool{echo})
	c := open(t, endpoint)

	const callers = 8
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Invoke(context.Background(), task.ToolCall{
				ToolName:  "echo",
				Arguments: map[string]any{"id": fmt.Sprintf("caller-%d", i)},
			})
			results[i], errs[i] = res.Content, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("echo caller-%d", i), results[i])
	}
	assert.Equal(t, int32(1), maxInFlight.Load(), "calls on one session must not overlap")
	assert.Equal(t, int64(callers), srv.Calls())
	assert.Equal(t, StateReady, c.State())
}

func TestInvoke_ToolErrorIsAResult(t *testing.T) {
	_, endpoint := startServer(t, testTools(0))
	c := open(t, endpoint)

	res, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "click", Arguments: map[string]any{"selector": "#missing"}})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.False(t, res.Retryable)
	assert.Equal(t, task.KindTool, res.Kind)
	assert.Equal(t, "element not found", res.Content)
}

func TestInvoke_UnknownToolIsProtocolError(t *testing.T) {
	_, endpoint := startServer(t, testTools(0))
	c := open(t, endpoint)

	_, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "teleport"})

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, protocol.CodeInvalidParams, protoErr.Code)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, task.KindProtocol, ErrorKind(err))
}

func TestInvoke_TimeoutThenStaleResponseDiscarded(t *testing.T) {
	_, endpoint := startServer(t, testTools(150*time.Millisecond))
	c := open(t, endpoint, WithInvokeTimeout(30*time.Millisecond))

	_, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "slow"})

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, task.KindTimeout, ErrorKind(err))
	assert.Equal(t, StateReady, c.State())

	// The late reply to the timed out call must not be taken as this one's.
	c.opts.invokeTimeout = 2 * time.Second
	res, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "navigate", Arguments: map[string]any{"url": "https://example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "navigated to https://example.com", res.Content)
}

func TestInvoke_CancelledContext(t *testing.T) {
	_, endpoint := startServer(t, testTools(200*time.Millisecond))
	c := open(t, endpoint)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Invoke(ctx, task.ToolCall{ToolName: "slow"})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsRetryable(err))
}

func TestInvoke_ConnectionDropped(t *testing.T) {
	// Answers the handshake, then hangs up.
	ts := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		var req protocol.Request
		if err := websocket.JSON.Receive(ws, &req); err != nil {
			return
		}
		resp, _ := protocol.NewResult(req.ID, protocol.InitializeResult{ServerName: "flaky", SessionID: "s-1"})
		_ = websocket.JSON.Send(ws, resp)
		ws.Close()
	}))
	t.Cleanup(ts.Close)

	c := open(t, ts.URL)
	_, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "navigate"})

	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, task.KindTransport, ErrorKind(err))
	assert.Equal(t, StateDisconnected, c.State())

	_, err = c.Invoke(context.Background(), task.ToolCall{ToolName: "navigate"})
	assert.ErrorAs(t, err, &transportErr)
}

func TestListTools_MalformedSchema(t *testing.T) {
	bad := &toolserver.Func{ToolName: "bad", InputSchema: map[string]any{"type": "string"}}
	_, endpoint := startServer(t, []toolserver.Tool{bad})
	c := open(t, endpoint)

	_, err := c.ListTools(context.Background())

	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestListTools_MissingSchemaDefaults(t *testing.T) {
	bare := &toolserver.Func{ToolName: "bare"}
	_, endpoint := startServer(t, []toolserver.Tool{bare})
	c := open(t, endpoint)

	descs, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "object", descs[0].Schema["type"])
}

func TestClose_Idempotent(t *testing.T) {
	_, endpoint := startServer(t, testTools(0))
	c, err := Open(context.Background(), endpoint)
	require.NoError(t, err)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())

	_, err = c.Invoke(context.Background(), task.ToolCall{ToolName: "navigate"})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Ping(context.Background()), ErrClosed)
}

func TestCircuitBreaker_OpensAfterConsecutiveTimeouts(t *testing.T) {
	srv, endpoint := startServer(t, testTools(80*time.Millisecond))
	c := open(t, endpoint, WithInvokeTimeout(10*time.Millisecond), WithCircuitBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "slow"})
		var timeoutErr *TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	}

	_, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "slow"})

	var circuitErr *CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, task.KindCircuitOpen, ErrorKind(err))

	// Let the server drain the two abandoned calls.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(2), srv.Calls(), "rejected call must not reach the server")
}

func TestCircuitBreaker_IgnoresToolErrors(t *testing.T) {
	_, endpoint := startServer(t, testTools(0))
	c := open(t, endpoint, WithCircuitBreaker(1, time.Minute))

	for i := 0; i < 3; i++ {
		res, err := c.Invoke(context.Background(), task.ToolCall{ToolName: "click", Arguments: map[string]any{"selector": "#x"}})
		require.NoError(t, err)
		assert.True(t, res.IsError)
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := map[string]string{
		"http://localhost:8765/rpc": "ws://localhost:8765/rpc",
		"https://tools.example.com": "wss://tools.example.com",
		"ws://localhost:8765":       "ws://localhost:8765",
	}
	for in, want := range tests {
		got, err := websocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}
