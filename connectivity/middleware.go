package connectivity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hazyhaar/rewind/kit"
)

// HandlerMiddleware wraps a Handler without changing its signature.
type HandlerMiddleware func(next Handler) Handler

type actionKey struct{}

func withAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey{}, action)
}

// ActionFromContext returns the action Call is dispatching, or "".
func ActionFromContext(ctx context.Context) string {
	v, _ := ctx.Value(actionKey{}).(string)
	return v
}

// outcome is the part of an action answer Logging looks at.
type outcome struct {
	Success *bool  `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// Logging logs every call with its action, request ID and transport.
// Answers carrying "success": false are logged as rejections with their
// code; transport errors as failures.
func Logging(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			start := time.Now()
			resp, err := next(ctx, payload)

			attrs := []any{
				"action", ActionFromContext(ctx),
				"transport", kit.GetTransport(ctx),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if id := kit.GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if err != nil {
				logger.WarnContext(ctx, "connectivity: call failed", append(attrs, "error", err)...)
				return resp, err
			}

			var o outcome
			if json.Unmarshal(resp, &o) == nil && o.Success != nil && !*o.Success {
				logger.InfoContext(ctx, "connectivity: action rejected",
					append(attrs, "code", o.Code, "error", o.Error)...)
			} else {
				logger.DebugContext(ctx, "connectivity: action ok", append(attrs, "response_bytes", len(resp))...)
			}
			return resp, nil
		}
	}
}

// Timeout bounds each call by d. A call that runs out of time fails with
// *ErrTimeout; Call applies it for routes whose config sets timeout_ms.
func Timeout(d time.Duration) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) ([]byte, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			resp, err := next(tctx, payload)
			if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
				return nil, &ErrTimeout{Action: ActionFromContext(ctx), After: d, Err: err}
			}
			return resp, err
		}
	}
}

// ErrTimeout is returned when a route's timeout expires before its handler
// answers.
type ErrTimeout struct {
	Action string
	After  time.Duration
	Err    error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("connectivity: %s timed out after %s", e.Action, e.After)
}

func (e *ErrTimeout) Unwrap() error { return e.Err }

// Recovery turns a handler panic into *ErrPanic.
func Recovery(logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, payload []byte) (resp []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					action := ActionFromContext(ctx)
					logger.ErrorContext(ctx, "connectivity: handler panic recovered",
						"action", action,
						"request_id", kit.GetRequestID(ctx),
						"panic", r,
						"stack", string(debug.Stack()))
					err = &ErrPanic{Action: action, Value: r}
				}
			}()
			return next(ctx, payload)
		}
	}
}

// ErrPanic wraps a recovered panic value.
type ErrPanic struct {
	Action string
	Value  any
}

func (e *ErrPanic) Error() string {
	return fmt.Sprintf("connectivity: %s handler panicked: %v", e.Action, e.Value)
}

func chain(mws []HandlerMiddleware) HandlerMiddleware {
	return func(next Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
