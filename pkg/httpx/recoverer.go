package httpx

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

// Recoverer turns a handler panic into a 500 and reports it to Sentry. Every
// request gets its own hub clone so scope data never leaks across requests.
// With no Sentry client bound the capture is a no-op.
func Recoverer() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(r)
			ctx := sentry.SetHubOnContext(r.Context(), hub)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				slogx.FromContext(ctx).Error("panic recovered",
					"panic", fmt.Sprint(rec),
					"stack", string(debug.Stack()),
				)
				hub.RecoverWithContext(ctx, rec)
				WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ReportError sends err to the Sentry hub bound to ctx, if any.
func ReportError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if hub := sentry.GetHubFromContext(ctx); hub != nil {
		hub.CaptureException(err)
	}
}
