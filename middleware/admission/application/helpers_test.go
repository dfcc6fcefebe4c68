package application

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"security-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errDown = errors.New("dial tcp 127.0.0.1:6379: i/o timeout")

// downStore simula o Redis fora do ar: toda operação falha.
type downStore struct{}

func (downStore) IncrWindow(context.Context, string, time.Duration, bool) (int64, time.Duration, error) {
	return 0, 0, errDown
}

func (downStore) AddToWindow(context.Context, string, time.Time, time.Duration, int64) (int64, time.Time, error) {
	return 0, time.Time{}, errDown
}

func (downStore) SetFlag(context.Context, string, time.Duration) error { return errDown }

func (downStore) HasFlag(context.Context, string) (bool, error) { return false, errDown }

func (downStore) PushCapped(context.Context, string, []byte, int64) error { return errDown }

func (downStore) Ping(context.Context) error { return errDown }

var _ domain.Store = downStore{}

// slowStore simula o Redis pendurado: toda operação espera o ctx encerrar.
type slowStore struct{}

func (slowStore) IncrWindow(ctx context.Context, _ string, _ time.Duration, _ bool) (int64, time.Duration, error) {
	<-ctx.Done()
	return 0, 0, ctx.Err()
}

func (slowStore) AddToWindow(ctx context.Context, _ string, _ time.Time, _ time.Duration, _ int64) (int64, time.Time, error) {
	<-ctx.Done()
	return 0, time.Time{}, ctx.Err()
}

// syncBuffer permite ler o log enquanto workers ainda podem escrever.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (zerolog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return zerolog.New(buf), buf
}
