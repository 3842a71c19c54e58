package cgi

import (
	"context"
	"io"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/brettbedarf/mimic/internal/metrics"
	"github.com/brettbedarf/mimic/internal/util"
)

// State is a step of one execution
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateParsing
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateParsing:
		return "parsing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Executor runs a [Handler] once per request inside its own [Capture] and
// turns the captured output, or any fault, into a [Response].
type Executor struct {
	handler     Handler
	stackTraces bool
	logger      util.Logger
}

// ExecutorOption configures an [Executor]
type ExecutorOption func(*Executor)

// WithStackTraces controls whether fault responses include the stack trace.
// Typically enabled only in development.
func WithStackTraces(show bool) ExecutorOption {
	return func(e *Executor) { e.stackTraces = show }
}

func NewExecutor(h Handler, opts ...ExecutorOption) *Executor {
	e := &Executor{
		handler: h,
		logger:  util.GetLogger("Executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the handler for req with body as its input. It always
// returns a response; handler faults become a 500 response and are never
// propagated.
func (e *Executor) Execute(ctx context.Context, req *Request, body io.Reader) *Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger := e.logger.With().Str("request_id", req.ID).Logger()
	start := time.Now()

	state := StateIdle
	capture := Begin(body)
	defer capture.End()
	state = StateCapturing
	logger.Trace().Stringer("state", state).Msg("Capture acquired")

	fault := e.run(ctx, req, capture)
	raw := capture.End()

	if fault != nil {
		state = StateErrored
		logger.Error().
			Stringer("state", state).
			Str("kind", fault.Kind).
			Str("message", fault.Message).
			Int("discarded", len(raw)).
			Msg("Hosted handler failed")
		metrics.RecordExecution("fault", len(raw), time.Since(start))
		return FaultResponse(fault, e.stackTraces)
	}

	state = StateParsing
	logger.Trace().Stringer("state", state).Int("bytes", len(raw)).Msg("Capture released")
	resp := Split(raw)

	state = StateDone
	logger.Debug().
		Stringer("state", state).
		Str("status", resp.Status).
		Int("headers", len(resp.Header)).
		Int("body", len(resp.Body)).
		Dur("elapsed", time.Since(start)).
		Msg("Execution finished")
	metrics.RecordExecution("ok", len(raw), time.Since(start))
	return resp
}

// run invokes the handler with the captured streams and converts both
// returned errors and panics into a fault.
func (e *Executor) run(ctx context.Context, req *Request, capture *Capture) (fault *HandlerFault) {
	defer func() {
		if v := recover(); v != nil {
			fault = panicFault(v, debug.Stack())
		}
	}()

	req.Stdin = capture.Stdin()
	req.Stdout = capture.Stdout()
	if err := e.handler.ServeCGI(ctx, req); err != nil {
		return errorFault(err)
	}
	return nil
}
