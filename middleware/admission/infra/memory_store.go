package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"security-gateway/middleware/admission/domain"
)

// MemoryStore é uma implementação em memória de domain.Store.
// Útil para testes e desenvolvimento.
//
// Não é compartilhada entre instâncias: com mais de uma réplica cada uma conta sozinha.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counterEntry
	windows  map[string]*windowEntry
	flags    map[string]time.Time
	lists    map[string][][]byte

	now          func() time.Time
	cleanupEvery time.Duration
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

type windowEntry struct {
	stamps    []time.Time
	expiresAt time.Time
}

var _ domain.Store = (*MemoryStore)(nil)

type MemoryStoreOption func(*MemoryStore)

// WithClock troca o relógio (testes avançam o tempo sem dormir).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithCleanupEvery(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) { s.cleanupEvery = d }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		counters:     make(map[string]*counterEntry),
		windows:      make(map[string]*windowEntry),
		flags:        make(map[string]time.Time),
		lists:        make(map[string][][]byte),
		now:          time.Now,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) IncrWindow(_ context.Context, key string, ttl time.Duration, refresh bool) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.counters[key]
	if !ok || expired(ent.expiresAt, now) {
		ent = &counterEntry{}
		s.counters[key] = ent
	}
	ent.value++
	if ent.value == 1 || refresh {
		ent.expiresAt = now.Add(ttl)
	}
	return ent.value, ent.expiresAt.Sub(now), nil
}

func (s *MemoryStore) AddToWindow(_ context.Context, key string, at time.Time, window time.Duration, limit int64) (int64, time.Time, error) {
	now := s.now()
	if at.IsZero() {
		at = now
	}
	cutoff := at.Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.windows[key]
	if !ok || expired(ent.expiresAt, now) {
		ent = &windowEntry{}
		s.windows[key] = ent
	}

	// stamps fica ordenado; descarta tudo com idade >= window
	drop := sort.Search(len(ent.stamps), func(i int) bool { return ent.stamps[i].After(cutoff) })
	ent.stamps = ent.stamps[drop:]

	i := sort.Search(len(ent.stamps), func(i int) bool { return ent.stamps[i].After(at) })
	ent.stamps = append(ent.stamps, time.Time{})
	copy(ent.stamps[i+1:], ent.stamps[i:])
	ent.stamps[i] = at

	ent.expiresAt = now.Add(window)
	count := int64(len(ent.stamps))
	idx := min(max(count-limit, 0), count-1)
	return count, ent.stamps[idx], nil
}

func (s *MemoryStore) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flags[key] = now.Add(ttl)
	return nil
}

func (s *MemoryStore) HasFlag(_ context.Context, key string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.flags[key]
	if !ok {
		return false, nil
	}
	if expired(exp, now) {
		delete(s.flags, key)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) PushCapped(_ context.Context, key string, value []byte, max int64) error {
	v := append([]byte(nil), value...)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([][]byte{v}, s.lists[key]...)
	if max > 0 && int64(len(list)) > max {
		list = list[:max]
	}
	s.lists[key] = list
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// List retorna uma cópia da lista (mais recente primeiro).
func (s *MemoryStore) List(key string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, len(s.lists[key]))
	copy(out, s.lists[key])
	return out
}

// Counter retorna o valor atual de um contador ainda não expirado.
func (s *MemoryStore) Counter(key string) int64 {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.counters[key]; ok && !expired(ent.expiresAt, now) {
		return ent.value
	}
	return 0
}

func (s *MemoryStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.counters {
		if expired(ent.expiresAt, now) {
			delete(s.counters, k)
		}
	}
	for k, ent := range s.windows {
		if expired(ent.expiresAt, now) {
			delete(s.windows, k)
		}
	}
	for k, exp := range s.flags {
		if expired(exp, now) {
			delete(s.flags, k)
		}
	}
}

// StartJanitor inicia uma goroutine que remove entradas expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

func expired(at, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}
