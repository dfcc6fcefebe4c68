package admission

import (
	"net/http"
	"time"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/application"
	"security-gateway/middleware/admission/infra"

	"github.com/rs/zerolog"
)

// ConcurrencyOptions protege o upstream de excesso de requisições simultâneas,
// independente da identidade do cliente.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// RetryAfter vai no header e no body da recusa (padrão 1s).
	RetryAfter time.Duration
	Log        zerolog.Logger
}

// ConcurrencyMiddleware segura no máximo Max requisições em voo; quem não consegue
// vaga dentro de AcquireTimeout recebe RejectStatus (503) com o mesmo formato de
// erro JSON da admissão. Max <= 0 devolve o next sem embrulhar.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = time.Second
	}

	svc := application.ConcurrencyService{
		Pool:           infra.NewSemaphorePool(opts.Max),
		AcquireTimeout: opts.AcquireTimeout,
	}
	busy := errorResponse{
		Error:      "server_busy",
		Message:    "Server is busy. Please try again later.",
		RetryAfter: int64((opts.RetryAfter + time.Second - 1) / time.Second),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, err := svc.Acquire(r.Context())
			if err != nil {
				metrics.Overloaded.Inc()
				opts.Log.Debug().Err(err).Str("path", r.URL.Path).Msg("no concurrency slot")
				w.Header().Set("Retry-After", formatSeconds(opts.RetryAfter))
				writeError(w, opts.Log, opts.RejectStatus, busy)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
