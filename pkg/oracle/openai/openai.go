// Package openai implements a decision oracle on top of an OpenAI-compatible
// chat completions API using native function calling.
//
// Example usage:
//
//	o, err := openai.New(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o"))
//	if err != nil {
//	    return err
//	}
//	loop := agent.NewLoop(connect, o)
//
// Each step of the run is replayed to the model as an assistant turn naming
// the call followed by a user turn carrying the observation. When the model
// answers without a tool call the run is complete and its text is the
// summary.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/task"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("oracle")
	if err != nil {
		debugLog.Warnf("Failed to initialize oracle logger, using stderr fallback: %v", err)
	}
}

const (
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
	// DefaultMaxHistoryTokens bounds the replayed step history.
	DefaultMaxHistoryTokens = 60000

	// maxObservationChars truncates a single observation before it is
	// replayed; page dumps can be very large.
	maxObservationChars = 12000
)

// Oracle asks a chat model for the next tool call.
type Oracle struct {
	client           openai.Client
	baseURL          string
	model            string
	temperature      float64
	maxHistoryTokens int
	instructions     string
	tokenizer        *Tokenizer
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithModel sets the model to use for completions.
func WithModel(model string) Option {
	return func(o *Oracle) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL sets a custom base URL for OpenAI-compatible APIs.
func WithBaseURL(baseURL string) Option {
	return func(o *Oracle) {
		if baseURL != "" {
			o.baseURL = baseURL
		}
	}
}

// WithTemperature sets the sampling temperature. The default is 0.
func WithTemperature(t float64) Option {
	return func(o *Oracle) {
		o.temperature = t
	}
}

// WithMaxHistoryTokens bounds how much step history is replayed.
func WithMaxHistoryTokens(n int) Option {
	return func(o *Oracle) {
		if n > 0 {
			o.maxHistoryTokens = n
		}
	}
}

// WithInstructions adds operator instructions to the system prompt.
func WithInstructions(s string) Option {
	return func(o *Oracle) {
		o.instructions = s
	}
}

// New creates an oracle. If apiKey is empty OPENAI_API_KEY is used; if no
// base URL option is given OPENAI_BASE_URL is consulted.
func New(apiKey string, opts ...Option) (*Oracle, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (provide via parameter or OPENAI_API_KEY environment variable)")
	}

	o := &Oracle{
		baseURL:          DefaultBaseURL,
		model:            DefaultModel,
		maxHistoryTokens: DefaultMaxHistoryTokens,
		tokenizer:        NewTokenizer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.baseURL == DefaultBaseURL {
		if env := os.Getenv("OPENAI_BASE_URL"); env != "" {
			o.baseURL = env
		}
	}

	// The control loop owns retries.
	o.client = openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(o.baseURL),
		option.WithMaxRetries(0),
	)
	return o, nil
}

// Model returns the configured model name.
func (o *Oracle) Model() string {
	return o.model
}

// Decide implements oracle.Oracle.
func (o *Oracle) Decide(ctx context.Context, req oracle.Request) (oracle.Decision, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.model),
		Messages:    o.buildMessages(req),
		Temperature: openai.Float(o.temperature),
	}
	if len(req.Tools) > 0 {
		params.Tools = toolParams(req.Tools)
	}

	debugLog.Debugf("Requesting decision from %s with %d steps, %d tools", o.model, len(req.Steps), len(req.Tools))
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return oracle.Decision{}, classify(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return oracle.Decision{}, &oracle.Error{Op: "decide", Err: errors.New("response has no choices")}
	}

	msg := completion.Choices[0].Message
	if len(msg.ToolCalls) == 0 {
		summary := strings.TrimSpace(msg.Content)
		debugLog.Infof("Model signalled completion")
		return oracle.Decision{Complete: true, Summary: summary}, nil
	}
	if len(msg.ToolCalls) > 1 {
		debugLog.Warnf("Model returned %d tool calls; using the first", len(msg.ToolCalls))
	}

	fn := msg.ToolCalls[0].Function
	args := map[string]any{}
	if raw := strings.TrimSpace(fn.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return oracle.Decision{}, &oracle.Error{
				Op:        "parse",
				Temporary: true,
				Err:       fmt.Errorf("tool call arguments for %s are not a JSON object: %w", fn.Name, err),
			}
		}
	}

	return oracle.Decision{
		Call:      &task.ToolCall{ToolName: fn.Name, Arguments: args},
		Reasoning: strings.TrimSpace(msg.Content),
	}, nil
}

func (o *Oracle) buildMessages(req oracle.Request) []openai.ChatCompletionMessageParamUnion {
	system := oracle.NewPromptBuilder().
		WithCustomInstructions(o.instructions).
		WithRemaining(req.Remaining).
		WithHint(req.Hint).
		Build()

	steps, omitted := o.fitHistory(req.Steps)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2+2*len(steps)+1)
	messages = append(messages, openai.SystemMessage(system))
	messages = append(messages, openai.UserMessage(oracle.ObjectiveMessage(req.Objective)))
	if omitted > 0 {
		messages = append(messages, openai.UserMessage(fmt.Sprintf("(%d earlier steps omitted)", omitted)))
	}
	for _, s := range steps {
		messages = append(messages, openai.AssistantMessage("Calling "+oracle.FormatCall(s.Action)))
		messages = append(messages, openai.UserMessage(truncate(oracle.FormatObservation(s), maxObservationChars)))
	}
	return messages
}

// fitHistory keeps the newest steps that fit in the token budget.
func (o *Oracle) fitHistory(steps []task.Step) ([]task.Step, int) {
	budget := o.maxHistoryTokens
	start := len(steps)
	for start > 0 {
		s := steps[start-1]
		cost := o.tokenizer.Count(oracle.FormatCall(s.Action)) +
			o.tokenizer.Count(truncate(oracle.FormatObservation(s), maxObservationChars))
		if cost > budget && start < len(steps) {
			break
		}
		budget -= cost
		start--
	}
	if start > 0 {
		debugLog.Debugf("Omitting %d oldest steps to fit %d history tokens", start, o.maxHistoryTokens)
	}
	return steps[start:], start
}

func toolParams(descs []registry.ToolDescriptor) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(descs))
	for _, d := range descs {
		schema := d.Schema
		if len(schema) == 0 {
			schema = registry.BaseToolSchema(map[string]any{}, nil)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.Name,
				Description: openai.String(d.Description),
				Parameters:  openai.FunctionParameters(schema),
			},
		})
	}
	return out
}

// classify wraps API failures so the loop can tell transient from fatal.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &oracle.Error{
			Op:         "decide",
			StatusCode: apiErr.StatusCode,
			Temporary:  oracle.TemporaryStatus(apiErr.StatusCode),
			Err:        err,
		}
	}
	// No HTTP status: the request never completed (reset, refused, timeout).
	return &oracle.Error{Op: "decide", Temporary: true, Err: err}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "\n... [truncated]"
}
