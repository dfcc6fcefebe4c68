package admission

import (
	"bytes"
	"io"
	"net/http"
	"net/netip"
	"time"

	"security-gateway/middleware/admission/application"
	"security-gateway/middleware/admission/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// DefaultMaxScanBytes é quanto do body o detector enxerga.
const DefaultMaxScanBytes = 64 << 10

type Options struct {
	Pipeline *application.Pipeline
	ClientIP IPFunc
	UserID   UserIDFunc
	Route    RouteFunc
	// TrustedNets pulam a admissão inteira (health checkers, chamadas internas).
	// Casam só contra o endereço da conexão, nunca contra headers de proxy.
	TrustedNets  []netip.Prefix
	MaxScanBytes int64
	Log          zerolog.Logger
}

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.ClientIP == nil {
		opts.ClientIP = ClientIPFunc(DefaultCDNHeader, true)
	}
	if opts.Route == nil {
		opts.Route = ChiRoute
	}
	if opts.MaxScanBytes == 0 {
		opts.MaxScanBytes = DefaultMaxScanBytes
	}

	return func(next http.Handler) http.Handler {
		if opts.Pipeline == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted(opts.TrustedNets, RemoteIP(r)) {
				next.ServeHTTP(w, r)
				return
			}
			ip := opts.ClientIP(r)

			req := domain.Request{
				Method:    r.Method,
				Route:     opts.Route(r),
				Path:      r.URL.Path,
				Query:     r.URL.RawQuery,
				Body:      peekBody(r, opts.MaxScanBytes),
				UserAgent: r.UserAgent(),
				IP:        ip,
			}
			if opts.UserID != nil {
				req.UserID = opts.UserID(r)
			}

			dec := opts.Pipeline.Decide(r.Context(), req)
			switch dec.Outcome {
			case domain.Reject:
				// sem detalhe: não confirma ao cliente o que foi detectado
				writeError(w, opts.Log, http.StatusForbidden, errorResponse{
					Error:   "forbidden",
					Message: "Access denied.",
				})
				return
			case domain.Deny:
				addRateLimitHeaders(w.Header(), dec.Window)
				w.Header().Set("Retry-After", formatSeconds(dec.Window.RetryAfter))
				writeError(w, opts.Log, http.StatusTooManyRequests, errorResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: int64((dec.Window.RetryAfter + time.Second - 1) / time.Second),
				})
				return
			}

			addRateLimitHeaders(w.Header(), dec.Window)
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(h http.Header, res domain.WindowResult) {
	if res.Limit <= 0 {
		return
	}
	h.Set("X-RateLimit-Limit", formatInt(res.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(res.Remaining))
	if !res.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", formatEpoch(res.ResetAt))
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, body errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Int("status", status).Msg("write error response")
	}
}

// peekBody lê até limit bytes para o scan e devolve ao handler o body completo.
func peekBody(r *http.Request, limit int64) string {
	if r.Body == nil || r.Body == http.NoBody || limit <= 0 {
		return ""
	}
	buf, _ := io.ReadAll(io.LimitReader(r.Body, limit))
	r.Body = &replayBody{
		Reader: io.MultiReader(bytes.NewReader(buf), r.Body),
		closer: r.Body,
	}
	return string(buf)
}

type replayBody struct {
	io.Reader
	closer io.Closer
}

func (b *replayBody) Close() error { return b.closer.Close() }
