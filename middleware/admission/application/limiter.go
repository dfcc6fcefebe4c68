package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"security-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

// Algorithm seleciona como a janela é contada.
type Algorithm string

const (
	// SlidingWindow: log ordenado de timestamps, conta o que está na janela que termina agora.
	SlidingWindow Algorithm = "sliding"
	// FixedWindow: contador com TTL = janela, zera nas bordas.
	FixedWindow Algorithm = "fixed"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case SlidingWindow, FixedWindow:
		return a, nil
	case "":
		return SlidingWindow, nil
	default:
		return "", fmt.Errorf("unknown rate algorithm %q (want sliding or fixed)", s)
	}
}

// WindowLimiter conta requisições por (identidade, endpoint) no store compartilhado.
//
// Toda chamada grava no store, admitida ou não: requisições negadas continuam
// contando, então retry em rajada não reabre a janela.
type WindowLimiter struct {
	store   domain.CounterStore
	keys    domain.Keys
	algo    Algorithm
	timeout time.Duration
	now     func() time.Time
	fail    *failureLog
}

type LimiterOption func(*WindowLimiter)

func WithAlgorithm(a Algorithm) LimiterOption {
	return func(l *WindowLimiter) { l.algo = a }
}

func WithLimiterTimeout(d time.Duration) LimiterOption {
	return func(l *WindowLimiter) { l.timeout = d }
}

func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *WindowLimiter) { l.now = now }
}

func NewWindowLimiter(store domain.CounterStore, keys domain.Keys, log zerolog.Logger, opts ...LimiterOption) *WindowLimiter {
	l := &WindowLimiter{
		store:   store,
		keys:    keys,
		algo:    SlidingWindow,
		timeout: DefaultStoreTimeout,
		now:     time.Now,
		fail:    newFailureLog(log.With().Str("component", "window_limiter").Logger()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *WindowLimiter) Algorithm() Algorithm { return l.algo }

// Check registra a requisição e decide. Em falha do store, admite (fail-open)
// e marca o resultado como Degraded.
func (l *WindowLimiter) Check(ctx context.Context, id domain.Identity, endpoint string, p domain.Policy) domain.WindowResult {
	now := l.now()
	if l.store == nil {
		return degraded(now, p)
	}

	ctx, cancel := withStoreTimeout(ctx, l.timeout)
	defer cancel()

	key := l.keys.Rate(id, endpoint)

	var (
		count   int64
		resetAt time.Time
		err     error
	)
	switch l.algo {
	case FixedWindow:
		var ttl time.Duration
		count, ttl, err = l.store.IncrWindow(ctx, key, p.Window, false)
		resetAt = now.Add(ttl)
	default:
		// negadas também ficam no log: o reset é quando sai a entrada que devolve uma vaga
		var freeAt time.Time
		count, freeAt, err = l.store.AddToWindow(ctx, key, now, p.Window, int64(p.MaxRequests))
		resetAt = freeAt.Add(p.Window)
	}
	if err != nil {
		l.fail.storeError("rate_check", id, err)
		return degraded(now, p)
	}

	res := domain.WindowResult{
		Admitted:  count <= int64(p.MaxRequests),
		Limit:     p.MaxRequests,
		Count:     count,
		Remaining: max(0, p.MaxRequests-int(count)),
		ResetAt:   resetAt,
	}
	if !res.Admitted {
		res.RetryAfter = p.Window
	}
	return res
}

func degraded(now time.Time, p domain.Policy) domain.WindowResult {
	return domain.WindowResult{
		Admitted:  true,
		Limit:     p.MaxRequests,
		Remaining: p.MaxRequests,
		ResetAt:   now.Add(p.Window),
		Degraded:  true,
	}
}
