package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"security-gateway/internal/logger"
	"security-gateway/middleware/admission"
	"security-gateway/middleware/admission/application"
	"security-gateway/middleware/admission/domain"
	"security-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
)

// Exemplo: a camada de admissão embutida direto no roteador do serviço (sem proxy).
// Store em memória: serve para uma instância só.
func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), "text", os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryStore()
	store.StartJanitor(ctx)

	table, err := domain.NewPolicyTable(domain.DefaultPolicies())
	if err != nil {
		log.Fatal().Err(err).Msg("policy table")
	}
	keys := domain.NewKeys(domain.DefaultKeyPrefix)
	guard := application.NewBlacklistGuard(store, keys, log)
	audit := application.NewAuditLogger(store, keys, application.DefaultAuditConfig(), log)
	audit.Start()
	defer audit.Close()

	pipeline := &application.Pipeline{
		Policies:       table,
		Guard:          guard,
		Detector:       application.NewDefaultDetector(),
		Limiter:        application.NewWindowLimiter(store, keys, log),
		Escalator:      application.NewEscalator(store, keys, guard, audit, application.DefaultEscalationConfig(), log),
		Audit:          audit,
		Log:            log,
		SensitivePaths: []string{"/admin"},
	}
	admit := admission.Middleware(admission.Options{
		Pipeline: pipeline,
		UserID:   admission.HeaderUserID("X-User-ID"),
		Log:      log,
	})

	ok := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}

	r := chi.NewRouter()
	r.Use(admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{Max: 50}))
	r.Get("/healthz", ok) // fora da admissão

	// middleware dentro do Group: roda depois do roteamento e enxerga o template
	r.Group(func(r chi.Router) {
		r.Use(admit)
		r.Post("/auth/login", ok)
		r.Post("/auth/register", ok)
		r.Get("/search", ok)
		r.Get("/categories", ok)
		r.Post("/projects", ok)
		// rotas planas: com r.Route o middleware veria só "/admin/*"
		r.Patch("/admin/users/{id}", ok)
		r.Delete("/admin/users/{id}", ok)
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("example server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
