// Package agent implements the task-execution control loop.
//
// A Loop repeatedly asks an oracle what to do, validates the chosen call
// against the server's advertised tools, dispatches it with bounded
// retries and records exactly one Step per dispatch. It stops when the
// oracle signals completion, when setup or the oracle fails, or when the
// step budget is spent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/oracle"
	"github.com/entrhq/autopilot/pkg/registry"
	"github.com/entrhq/autopilot/pkg/retry"
	"github.com/entrhq/autopilot/pkg/session"
	"github.com/entrhq/autopilot/pkg/task"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("agent")
	if err != nil {
		debugLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// Session is the part of a tool-server session the loop needs.
type Session interface {
	ListTools(ctx context.Context) ([]registry.ToolDescriptor, error)
	Invoke(ctx context.Context, call task.ToolCall) (task.Result, error)
	Close() error
}

// Connector opens a fresh session for one run. A run calls it again when
// the session reports a dropped connection.
type Connector func(ctx context.Context) (Session, error)

// liveness is implemented by sessions that can tell a dropped connection
// apart from a healthy one.
type liveness interface {
	State() session.State
}

func disconnected(s Session) bool {
	l, ok := s.(liveness)
	return ok && l.State() == session.StateDisconnected
}

// Dial returns a Connector that opens a protocol session to endpoint.
func Dial(endpoint string, opts ...session.Option) Connector {
	return func(ctx context.Context) (Session, error) {
		c, err := session.Open(ctx, endpoint, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Loop runs tasks. A Loop holds configuration only and can run many tasks,
// sequentially or concurrently; each run gets its own session and state.
type Loop struct {
	connect      Connector
	oracle       oracle.Oracle
	dispatch     retry.Policy
	decide       retry.Policy
	observer     Observer
	allow        []string
	deny         []string
	repeatWindow int
}

// Option configures a Loop.
type Option func(*Loop)

// WithRetryPolicy sets the policy for retryable dispatch failures.
func WithRetryPolicy(p retry.Policy) Option {
	return func(l *Loop) {
		l.dispatch = p
	}
}

// WithOracleRetryPolicy sets the policy for transient oracle failures.
func WithOracleRetryPolicy(p retry.Policy) Option {
	return func(l *Loop) {
		l.decide = p
	}
}

// WithObserver receives state changes, decisions, retries and steps.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithToolFilter restricts the advertised tools by glob patterns.
func WithToolFilter(allow, deny []string) Option {
	return func(l *Loop) {
		l.allow = allow
		l.deny = deny
	}
}

// WithRepeatWindow sets how many identical failing steps trigger a hint to
// the oracle. Zero disables the hint.
func WithRepeatWindow(n int) Option {
	return func(l *Loop) {
		l.repeatWindow = n
	}
}

// NewLoop creates a loop that opens sessions with connect and asks o.
func NewLoop(connect Connector, o oracle.Oracle, opts ...Option) *Loop {
	l := &Loop{
		connect:      connect,
		oracle:       o,
		dispatch:     retry.DefaultPolicy(),
		decide:       retry.DefaultPolicy(),
		observer:     NopObserver{},
		repeatWindow: DefaultRepeatWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes t to a terminal state and returns the full history. The
// error is non-nil when the run failed before or outside a Step: the
// session could not be opened, capabilities were unusable, the oracle
// failed or ctx was cancelled. A budget abort is not an error.
func (l *Loop) Run(ctx context.Context, t task.Task) (*task.State, error) {
	r := &run{
		loop:  l,
		state: task.NewState(t),
		phase: PhaseRunning,
	}
	debugLog.Infof("Run %s started: budget=%d objective=%q", t.ID, t.StepBudget, t.Objective)

	err := r.execute(ctx)
	if err != nil {
		r.fail(err)
	}
	debugLog.Infof("Run %s finished: status=%s steps=%d", t.ID, r.state.Status, len(r.state.Steps))
	return r.state, err
}

// Run opens a session to endpoint, runs objective with o and returns the
// final state.
func Run(ctx context.Context, o oracle.Oracle, objective string, stepBudget int, endpoint string, opts ...Option) (*task.State, error) {
	t, err := task.New(objective, stepBudget)
	if err != nil {
		return nil, err
	}
	return NewLoop(Dial(endpoint), o, opts...).Run(ctx, t)
}

// run is the per-task mutable part of a Loop.
type run struct {
	loop  *Loop
	state *task.State
	phase Phase
	sess  Session
	lost  bool
	reg   *registry.Registry
}

func (r *run) transition(to Phase) {
	from := r.phase
	if from == to {
		return
	}
	r.phase = to
	debugLog.Debugf("Run %s: %s -> %s", r.state.Task.ID, from, to)
	r.loop.observer.OnStateChange(from, to)
}

func (r *run) fail(err error) {
	if r.state.Status.IsTerminal() {
		return
	}
	_ = r.state.Fail(err)
	debugLog.Errorf("Run %s failed: %v", r.state.Task.ID, err)
	r.transition(PhaseFailed)
}

func (r *run) execute(ctx context.Context) error {
	sess, err := r.loop.connect(ctx)
	if err != nil {
		return err
	}
	r.sess = sess
	defer func() {
		if r.lost {
			return
		}
		if cerr := r.sess.Close(); cerr != nil {
			debugLog.Warnf("Failed to close session: %v", cerr)
		}
	}()

	reg, err := r.loadTools(ctx, sess)
	if err != nil {
		return err
	}
	r.reg = reg
	debugLog.Infof("Registered %d tools: %v", reg.Len(), reg.Names())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.transition(PhaseAwaitingDecision)
		decision, err := r.decide(ctx)
		if err != nil {
			return err
		}

		if decision.Complete {
			_ = r.state.Complete(decision.Summary)
			r.transition(PhaseCompleted)
			return nil
		}

		r.transition(PhaseDispatching)
		call := decision.Call.Clone()
		observation, attempts := r.dispatch(ctx, call)
		if err := ctx.Err(); err != nil {
			return err
		}

		step, err := r.state.AppendStep(call, observation, attempts)
		if err != nil {
			return fmt.Errorf("record step: %w", err)
		}
		r.loop.observer.OnStep(step)

		if r.state.BudgetReached() {
			_ = r.state.Abort(task.AbortReasonBudgetExceeded)
			debugLog.Warnf("Run %s aborted: step budget %d exhausted", r.state.Task.ID, r.state.Task.StepBudget)
			r.transition(PhaseAborted)
			return nil
		}
		r.transition(PhaseRunning)
	}
}

func (r *run) loadTools(ctx context.Context, sess Session) (*registry.Registry, error) {
	descs, err := sess.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	descs, err = registry.Filter(descs, r.loop.allow, r.loop.deny)
	if err != nil {
		return nil, fmt.Errorf("filter tools: %w", err)
	}
	reg, err := registry.FromCapabilities(descs)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	return reg, nil
}

// reopen replaces a disconnected session with a fresh one. The new session
// must advertise the same tools as the one the run started with. A failed
// dial is reported as a transport failure so the dispatch retry policy
// keeps trying; a changed tool set is not retried.
func (r *run) reopen(ctx context.Context) error {
	if !r.lost {
		r.lost = true
		if cerr := r.sess.Close(); cerr != nil {
			debugLog.Warnf("Failed to close dropped session: %v", cerr)
		}
	}
	debugLog.Warnf("Run %s: session lost, reconnecting", r.state.Task.ID)

	sess, err := r.loop.connect(ctx)
	if err != nil {
		return &session.TransportError{Method: "reconnect", Err: err}
	}
	reg, err := r.loadTools(ctx, sess)
	if err == nil && !sameTools(r.reg, reg) {
		err = fmt.Errorf("tool set changed from %v to %v", r.reg.Names(), reg.Names())
	}
	if err != nil {
		_ = sess.Close()
		if session.IsRetryable(err) {
			return &session.TransportError{Method: "reconnect", Err: err}
		}
		return &session.ProtocolError{Method: "reconnect", Err: err}
	}

	r.sess = sess
	r.lost = false
	debugLog.Infof("Run %s: session reopened", r.state.Task.ID)
	return nil
}

func sameTools(a, b *registry.Registry) bool {
	return reflect.DeepEqual(a.DescribeAll(), b.DescribeAll())
}

func (r *run) decide(ctx context.Context) (oracle.Decision, error) {
	view := r.state.Snapshot()
	req := oracle.Request{
		Objective: view.Objective,
		Steps:     view.Steps,
		Tools:     r.reg.DescribeAll(),
		Hint:      repeatHintFor(view.Steps, r.loop.repeatWindow),
		Remaining: r.state.Remaining(),
	}
	if req.Hint != "" {
		debugLog.Warnf("Repeated failing call detected, hinting the oracle")
	}

	policy := r.loop.decide
	userHook := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		debugLog.Warnf("Oracle attempt %d failed, retrying in %s: %v", attempt, delay, err)
		if userHook != nil {
			userHook(err, attempt, delay)
		}
	}

	decision, _, err := retry.Do(ctx, policy, oracle.IsRetryable, func(ctx context.Context) (oracle.Decision, error) {
		d, err := r.loop.oracle.Decide(ctx, req)
		if err != nil {
			return d, err
		}
		if verr := d.Validate(); verr != nil {
			return d, &oracle.Error{Op: "decide", Err: verr}
		}
		return d, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return oracle.Decision{}, ctxErr
		}
		var oerr *oracle.Error
		if !errors.As(err, &oerr) {
			err = &oracle.Error{Op: "decide", Err: err}
		}
		return oracle.Decision{}, err
	}

	r.loop.observer.OnDecision(len(view.Steps), decision)
	return decision, nil
}

// dispatch validates and invokes call. It returns the observation for the
// Step and how many wire calls were made.
func (r *run) dispatch(ctx context.Context, call task.ToolCall) (task.Result, int) {
	if err := r.reg.Validate(call); err != nil {
		debugLog.Warnf("Rejected call to %s: %v", call.ToolName, err)
		return task.ErrorResult(task.KindValidation, err, false), 0
	}

	policy := r.loop.dispatch
	userHook := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		debugLog.Warnf("%s attempt %d failed, retrying in %s: %v", call.ToolName, attempt, delay, err)
		r.loop.observer.OnRetry(call, attempt, delay, err)
		if userHook != nil {
			userHook(err, attempt, delay)
		}
	}

	result, outcome, err := retry.Do(ctx, policy, session.IsRetryable, func(ctx context.Context) (task.Result, error) {
		if r.lost || disconnected(r.sess) {
			if err := r.reopen(ctx); err != nil {
				return task.Result{}, err
			}
		}
		return r.sess.Invoke(ctx, call)
	})
	if err == nil {
		return result, outcome.Attempts
	}
	if ctx.Err() != nil {
		return task.Result{}, outcome.Attempts
	}

	if outcome.Exhausted {
		err = fmt.Errorf("gave up after %d attempts: %w", outcome.Attempts, err)
	}
	debugLog.Errorf("Dispatch of %s failed: %v", call.ToolName, err)
	return task.ErrorResult(session.ErrorKind(err), err, false), outcome.Attempts
}

// ErrorKindOf classifies a Run error for reporting.
func ErrorKindOf(err error) string {
	var connErr *session.ConnectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "connection"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		var oerr *oracle.Error
		if errors.As(err, &oerr) {
			return "oracle"
		}
		return "setup"
	}
}
