package application

import (
	"context"
	"sync/atomic"
	"time"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultStoreTimeout é o teto por chamada ao store compartilhado.
const DefaultStoreTimeout = 200 * time.Millisecond

func withStoreTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// failureLog registra falhas do store em nível error, com throttle: durante uma queda
// do Redis toda requisição falharia, e o log não pode virar o próximo incidente.
type failureLog struct {
	log        zerolog.Logger
	lim        *rate.Limiter
	suppressed atomic.Int64
}

func newFailureLog(log zerolog.Logger) *failureLog {
	return &failureLog{
		log: log,
		lim: rate.NewLimiter(rate.Every(time.Second), 10),
	}
}

func (f *failureLog) storeError(op string, id domain.Identity, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	if !f.lim.Allow() {
		f.suppressed.Add(1)
		return
	}
	ev := f.log.Error().Err(err).Str("op", op).Str("identity", string(id))
	if n := f.suppressed.Swap(0); n > 0 {
		ev = ev.Int64("suppressed", n)
	}
	ev.Msg("store unavailable, failing open")
}
