package application

import (
	"context"
	"time"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/domain"

	"github.com/rs/zerolog"
)

// EscalationConfig define os limiares de banimento.
type EscalationConfig struct {
	ViolationThreshold int64
	// ViolationPeriod é renovado a cada violação: só decai depois de um período inteiro quieto.
	ViolationPeriod time.Duration
	AttackThreshold int64
	// AttackPeriod vale a partir do primeiro ataque (não é renovado).
	AttackPeriod time.Duration
	StoreTimeout time.Duration
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		ViolationThreshold: 10,
		ViolationPeriod:    time.Hour,
		AttackThreshold:    3,
		AttackPeriod:       time.Hour,
		StoreTimeout:       DefaultStoreTimeout,
	}
}

// Escalator contabiliza violações e ataques por identidade e escala para a blacklist.
type Escalator struct {
	store domain.CounterStore
	keys  domain.Keys
	guard *BlacklistGuard
	audit *AuditLogger
	cfg   EscalationConfig
	log   zerolog.Logger
	fail  *failureLog
}

func NewEscalator(store domain.CounterStore, keys domain.Keys, guard *BlacklistGuard, audit *AuditLogger, cfg EscalationConfig, log zerolog.Logger) *Escalator {
	def := DefaultEscalationConfig()
	if cfg.ViolationThreshold <= 0 {
		cfg.ViolationThreshold = def.ViolationThreshold
	}
	if cfg.ViolationPeriod <= 0 {
		cfg.ViolationPeriod = def.ViolationPeriod
	}
	if cfg.AttackThreshold <= 0 {
		cfg.AttackThreshold = def.AttackThreshold
	}
	if cfg.AttackPeriod <= 0 {
		cfg.AttackPeriod = def.AttackPeriod
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	log = log.With().Str("component", "escalator").Logger()
	return &Escalator{
		store: store,
		keys:  keys,
		guard: guard,
		audit: audit,
		cfg:   cfg,
		log:   log,
		fail:  newFailureLog(log),
	}
}

// RecordViolation conta uma requisição negada por rate limit. Retorna true quando
// a contagem atinge o limiar e a identidade foi para a blacklist.
func (e *Escalator) RecordViolation(ctx context.Context, id domain.Identity) bool {
	count, ok := e.incr(ctx, "violation_record", id, e.keys.Violations(id), e.cfg.ViolationPeriod, true)
	if !ok || count < e.cfg.ViolationThreshold {
		return false
	}
	return e.escalate(ctx, id, "rate_limit_violations", count)
}

// RecordAttack conta uma requisição com assinatura de ataque (uma vez por requisição,
// não por padrão casado). TTL aplicado só na criação.
func (e *Escalator) RecordAttack(ctx context.Context, id domain.Identity) bool {
	count, ok := e.incr(ctx, "attack_record", id, e.keys.Attacks(id), e.cfg.AttackPeriod, false)
	if !ok || count < e.cfg.AttackThreshold {
		return false
	}
	return e.escalate(ctx, id, "attack_patterns", count)
}

func (e *Escalator) incr(ctx context.Context, op string, id domain.Identity, key string, period time.Duration, refresh bool) (int64, bool) {
	if e.store == nil {
		return 0, false
	}
	ctx, cancel := withStoreTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	count, _, err := e.store.IncrWindow(ctx, key, period, refresh)
	if err != nil {
		e.fail.storeError(op, id, err)
		return 0, false
	}
	return count, true
}

// escalate só conta como escalada se o ban foi gravado de fato.
func (e *Escalator) escalate(ctx context.Context, id domain.Identity, reason string, count int64) bool {
	if e.guard == nil {
		return false
	}
	if err := e.guard.Ban(ctx, id); err != nil {
		return false
	}
	metrics.Escalations.WithLabelValues(reason).Inc()
	e.log.Warn().
		Str("identity", string(id)).
		Str("reason", reason).
		Int64("count", count).
		Dur("ban", e.guard.BanDuration()).
		Msg("identity blacklisted")
	e.audit.Record(domain.StreamCritical, domain.LogEntry{
		Event:    "blacklisted",
		Identity: id,
		Count:    count,
		Detail:   reason,
	})
	return true
}
