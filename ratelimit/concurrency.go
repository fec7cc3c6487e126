package ratelimit

import (
	"net/http"
	"time"

	"message-board/ratelimit/application"
	"message-board/ratelimit/infra"

	"go.uber.org/zap"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Log            *zap.Logger
}

// ConcurrencyMiddleware limita quantas requisições ficam em voo ao mesmo tempo.
// Max <= 0 desliga o limite.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewChanPool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				opts.Log.Debug("request rejected, no concurrency slot",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				)
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
