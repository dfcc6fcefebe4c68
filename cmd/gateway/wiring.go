package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"security-gateway/internal/config"
	"security-gateway/middleware/admission"
	"security-gateway/middleware/admission/application"
	"security-gateway/middleware/admission/domain"
	"security-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// openStore abre o store compartilhado. Redis fora do ar no start não impede
// a subida: a admissão falha aberta até ele voltar.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Store, func() error, error) {
	switch cfg.StoreBackend {
	case "memory":
		log.Warn().Msg("memory store: counters are local to this instance")
		s := infra.NewMemoryStore()
		s.StartJanitor(ctx)
		return s, func() error { return nil }, nil
	default:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)

		store := infra.NewRedisStore(rdb, infra.WithLogCounters(cfg.AuditCountersTTL))
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("addr", opt.Addr).Msg("redis ping failed, starting in fail-open mode")
		}
		return store, rdb.Close, nil
	}
}

// buildPipeline monta o pipeline de admissão a partir da configuração.
// O AuditLogger retornado precisa de Start/Close.
func buildPipeline(cfg *config.Config, store domain.Store, log zerolog.Logger) (*application.Pipeline, *application.AuditLogger, error) {
	table, err := cfg.PolicyTable()
	if err != nil {
		return nil, nil, err
	}
	sigs, err := cfg.SignatureSet()
	if err != nil {
		return nil, nil, err
	}
	detector, err := application.NewDetector(sigs)
	if err != nil {
		return nil, nil, err
	}
	algo, err := application.ParseAlgorithm(cfg.RateAlgorithm)
	if err != nil {
		return nil, nil, err
	}

	keys := domain.NewKeys(cfg.RedisKeyPrefix)
	guard := application.NewBlacklistGuard(store, keys, log,
		application.WithBanDuration(cfg.BanDuration),
		application.WithGuardTimeout(cfg.StoreTimeout),
	)
	audit := application.NewAuditLogger(store, keys, application.AuditConfig{
		Workers:    cfg.AuditWorkers,
		QueueDepth: cfg.AuditQueueDepth,
		Caps:       cfg.AuditCaps(),
	}, log)
	escalator := application.NewEscalator(store, keys, guard, audit, application.EscalationConfig{
		ViolationThreshold: int64(cfg.ViolationThreshold),
		ViolationPeriod:    cfg.ViolationPeriod,
		AttackThreshold:    int64(cfg.AttackThreshold),
		AttackPeriod:       cfg.AttackPeriod,
		StoreTimeout:       cfg.StoreTimeout,
	}, log)
	limiter := application.NewWindowLimiter(store, keys, log,
		application.WithAlgorithm(algo),
		application.WithLimiterTimeout(cfg.StoreTimeout),
	)

	return &application.Pipeline{
		Policies:       table,
		Guard:          guard,
		Detector:       detector,
		Limiter:        limiter,
		Escalator:      escalator,
		Audit:          audit,
		Log:            log.With().Str("component", "admission").Logger(),
		BlockOnAttack:  cfg.BlockOnAttack,
		SensitivePaths: cfg.SensitivePaths,
	}, audit, nil
}

// buildHandler registra cada rota da tabela no chi para que o middleware veja o
// template ("/admin/users/{id}"). O resto cai no NotFound, que vai para o bucket default.
func buildHandler(cfg *config.Config, p *application.Pipeline, upstream http.Handler, log zerolog.Logger) (http.Handler, error) {
	nets, err := admission.ParseTrustedNets(cfg.TrustedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_CIDRS: %w", err)
	}

	var userFns []admission.UserIDFunc
	if cfg.UserIDHeader != "" {
		userFns = append(userFns, admission.HeaderUserID(cfg.UserIDHeader))
	}
	if cfg.JWTSecret != "" {
		userFns = append(userFns, admission.BearerUserID([]byte(cfg.JWTSecret)))
	}
	var userID admission.UserIDFunc
	if len(userFns) > 0 {
		userID = admission.FirstUserID(userFns...)
	}

	mw := admission.Middleware(admission.Options{
		Pipeline:     p,
		ClientIP:     admission.ClientIPFunc(cfg.CDNIPHeader, cfg.TrustProxyHeaders),
		UserID:       userID,
		Route:        admission.ChiRoute,
		TrustedNets:  nets,
		MaxScanBytes: cfg.MaxScanBytes,
		Log:          log,
	})

	r := chi.NewRouter()
	r.Use(admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		Max:            cfg.ConcurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.ConcurrencyTimeout,
		Log:            log,
	}))
	for _, key := range p.Policies.Keys() {
		method, route, ok := strings.Cut(key, " ")
		if !ok {
			continue // default
		}
		if !routableMethods[method] {
			return nil, fmt.Errorf("policy %q: unsupported method %q", key, method)
		}
		r.With(mw).Method(method, route, upstream)
	}
	fallback := mw(upstream)
	r.NotFound(fallback.ServeHTTP)
	r.MethodNotAllowed(fallback.ServeHTTP)
	return r, nil
}

var routableMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true,
}

// opsHandler expõe /metrics e /healthz (ping no store).
func opsHandler(store domain.Store, timeout time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status, body := http.StatusOK, map[string]string{"status": "ok", "store": "ok"}
		if err := store.Ping(ctx); err != nil {
			// fail-open: o gateway segue servindo, mas sem proteção
			status, body = http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}
