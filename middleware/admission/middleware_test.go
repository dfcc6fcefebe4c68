package admission

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"security-gateway/middleware/admission/application"
	"security-gateway/middleware/admission/domain"
	"security-gateway/middleware/admission/infra"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, store domain.Store) *application.Pipeline {
	t.Helper()
	table, err := domain.NewPolicyTable(domain.DefaultPolicies())
	require.NoError(t, err)

	keys := domain.NewKeys("")
	log := zerolog.Nop()
	guard := application.NewBlacklistGuard(store, keys, log)
	audit := application.NewAuditLogger(store, keys, application.AuditConfig{Workers: 1}, log)
	audit.Start()
	t.Cleanup(audit.Close)

	return &application.Pipeline{
		Policies:  table,
		Guard:     guard,
		Detector:  application.NewDefaultDetector(),
		Limiter:   application.NewWindowLimiter(store, keys, log),
		Escalator: application.NewEscalator(store, keys, guard, audit, application.EscalationConfig{}, log),
		Audit:     audit,
		Log:       log,
	}
}

// newTestRouter registra as rotas com o middleware aplicado depois do roteamento,
// para que o template do chi chegue ao lookup da política.
func newTestRouter(opts Options, calls *int) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(Middleware(opts))
		r.Post("/auth/login", ok)
		r.Get("/search", ok)
		r.Delete("/admin/users/{id}", ok)
		r.Get("/health", ok)
	})
	return r
}

func doRequest(h http.Handler, method, target, body, ip string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, "http://example"+target, rd)
	r.RemoteAddr = ip + ":4321"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_LoginScenario(t *testing.T) {
	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewMemoryStore())}, &calls)

	for i := 1; i <= 5; i++ {
		w := doRequest(h, http.MethodPost, "/auth/login", `{"email":"ana@example.com"}`, "203.0.113.9")
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(5-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := doRequest(h, http.MethodPost, "/auth/login", `{"email":"ana@example.com"}`, "203.0.113.9")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "300", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	reset, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, reset, time.Now().Unix())

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.Equal(t, int64(300), body.RetryAfter)

	assert.Equal(t, 5, calls)
}

func TestMiddleware_RouteTemplateSelectsPolicy(t *testing.T) {
	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewMemoryStore())}, &calls)

	w := doRequest(h, http.MethodDelete, "/admin/users/7", "", "10.1.1.1")
	assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))

	// path diferente, mesmo template => mesmo bucket
	w = doRequest(h, http.MethodDelete, "/admin/users/8", "", "10.1.1.1")
	assert.Equal(t, "3", w.Header().Get("X-RateLimit-Remaining"))

	w = doRequest(h, http.MethodGet, "/health", "", "10.1.1.1")
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
}

func TestMiddleware_BlacklistedGetsGeneric403(t *testing.T) {
	store := infra.NewMemoryStore()
	p := newTestPipeline(t, store)
	id := domain.ResolveIdentity("203.0.113.9", "Mozilla/5.0", "")
	require.NoError(t, p.Guard.Ban(context.Background(), id))

	calls := 0
	h := newTestRouter(Options{Pipeline: p}, &calls)
	w := doRequest(h, http.MethodGet, "/search?q=garden", "", "203.0.113.9")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, strings.ToLower(w.Body.String()), "blacklist")
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Zero(t, calls)
}

func TestMiddleware_AttackIsNotBlockedByDefault(t *testing.T) {
	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewMemoryStore())}, &calls)

	for i := 0; i < 3; i++ {
		w := doRequest(h, http.MethodPost, "/auth/login", `{"email":"' OR '1'='1' -- "}`, "198.51.100.20")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(h, http.MethodGet, "/search?q=ok", "", "198.51.100.20")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 3, calls)
}

func TestMiddleware_BodyIsRestoredForHandler(t *testing.T) {
	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewMemoryStore()), MaxScanBytes: 8}, &calls)

	payload := `{"title":"a long enough body to exceed the scan window"}`
	w := doRequest(h, http.MethodPost, "/auth/login", payload, "10.2.2.2")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, payload, w.Body.String())
}

func TestMiddleware_TrustedNetsBypass(t *testing.T) {
	nets, err := ParseTrustedNets([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewMemoryStore()), TrustedNets: nets}, &calls)

	for i := 0; i < 10; i++ {
		w := doRequest(h, http.MethodPost, "/auth/login", "", "10.9.9.9")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, 10, calls)
}

func TestMiddleware_TrustedNetsIgnoreForwardedHeaders(t *testing.T) {
	nets, err := ParseTrustedNets([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	store := infra.NewMemoryStore()
	p := newTestPipeline(t, store)
	require.NoError(t, p.Guard.Ban(context.Background(), domain.UserIdentity("42")))

	calls := 0
	h := newTestRouter(Options{Pipeline: p, TrustedNets: nets, UserID: HeaderUserID("X-User-ID")}, &calls)

	for _, spoof := range []string{"", "X-Forwarded-For", "CF-Connecting-IP", "X-Real-IP"} {
		r := httptest.NewRequest(http.MethodGet, "http://example/search", nil)
		r.RemoteAddr = "198.51.100.7:4321"
		r.Header.Set("X-User-ID", "42")
		if spoof != "" {
			r.Header.Set(spoof, "10.1.2.3")
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code, "header %q", spoof)
	}
	assert.Zero(t, calls)
}

func TestMiddleware_NilPipelinePassesThrough(t *testing.T) {
	calls := 0
	h := newTestRouter(Options{}, &calls)
	w := doRequest(h, http.MethodGet, "/search", "", "10.0.0.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestMiddleware_RedisBackedAndFailOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	calls := 0
	h := newTestRouter(Options{Pipeline: newTestPipeline(t, infra.NewRedisStore(rdb))}, &calls)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/auth/login", "", "192.0.2.1").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, http.MethodPost, "/auth/login", "", "192.0.2.1").Code)

	// Redis fora: tudo passa
	mr.SetError("LOADING Redis is loading the dataset in memory")
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, http.MethodPost, "/auth/login", "", "192.0.2.1").Code)
	}
	assert.Equal(t, 10, calls)
}
