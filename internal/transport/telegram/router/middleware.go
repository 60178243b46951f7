package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "memebot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowRequest promotes successful request logs from DEBUG to INFO.
const slowRequest = 750 * time.Millisecond

// wrap applies mw so that the first one listed runs outermost.
func wrap(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func reqLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// withDeadline bounds a handler; d <= 0 leaves the context untouched.
func withDeadline(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

func recoverPanics(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				var cmd string
				if req != nil {
					cmd = req.Command
				}
				reqLogger(log, req).Error("handler panicked",
					logx.String("cmd", cmd),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("handler %q panicked: %v", cmd, r)
			}()
			return next(ctx, req)
		}
	}
}

func logRequest(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			l := reqLogger(log, req).With(
				logx.String("update", string(req.Update.Kind)),
				logx.String("cmd", req.Command),
				logx.Duration("dur", took),
			)
			if err != nil {
				l.Warn("request failed", logx.Err(err))
				return err
			}
			if took >= slowRequest {
				l.Info("request ok")
			} else {
				l.Debug("request ok")
			}
			return nil
		}
	}
}
