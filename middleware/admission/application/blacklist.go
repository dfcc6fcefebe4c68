package application

import (
	"context"
	"time"

	"security-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

const DefaultBanDuration = 24 * time.Hour

// BlacklistGuard é a checagem autoritativa de banimento, consultada antes de tudo.
// Também é o alvo das escritas de escalonamento.
type BlacklistGuard struct {
	store       domain.FlagStore
	keys        domain.Keys
	banDuration time.Duration
	timeout     time.Duration
	fail        *failureLog
}

type GuardOption func(*BlacklistGuard)

func WithBanDuration(d time.Duration) GuardOption {
	return func(g *BlacklistGuard) {
		if d > 0 {
			g.banDuration = d
		}
	}
}

func WithGuardTimeout(d time.Duration) GuardOption {
	return func(g *BlacklistGuard) { g.timeout = d }
}

func NewBlacklistGuard(store domain.FlagStore, keys domain.Keys, log zerolog.Logger, opts ...GuardOption) *BlacklistGuard {
	g := &BlacklistGuard{
		store:       store,
		keys:        keys,
		banDuration: DefaultBanDuration,
		timeout:     DefaultStoreTimeout,
		fail:        newFailureLog(log.With().Str("component", "blacklist_guard").Logger()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *BlacklistGuard) BanDuration() time.Duration {
	if g == nil {
		return 0
	}
	return g.banDuration
}

// IsBanned faz uma única leitura. Erro do store => não banido.
func (g *BlacklistGuard) IsBanned(ctx context.Context, id domain.Identity) bool {
	if g == nil || g.store == nil {
		return false
	}
	ctx, cancel := withStoreTimeout(ctx, g.timeout)
	defer cancel()

	banned, err := g.store.HasFlag(ctx, g.keys.Blacklist(id))
	if err != nil {
		g.fail.storeError("blacklist_check", id, err)
		return false
	}
	return banned
}

// Ban grava o marcador com TTL = duração do banimento. Não existe unban explícito:
// a entrada some quando o TTL expira.
func (g *BlacklistGuard) Ban(ctx context.Context, id domain.Identity) error {
	if g == nil || g.store == nil {
		return nil
	}
	ctx, cancel := withStoreTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.store.SetFlag(ctx, g.keys.Blacklist(id), g.banDuration); err != nil {
		g.fail.storeError("blacklist_ban", id, err)
		return err
	}
	return nil
}
