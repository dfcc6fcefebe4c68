package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultEndpoint é a chave da política usada para rotas não registradas.
// Todas as rotas não registradas compartilham o mesmo balde por cliente.
const DefaultEndpoint = "default"

var ErrInvalidPolicy = errors.New("invalid policy")

// Policy é o limite de um endpoint: no máximo MaxRequests dentro de Window.
type Policy struct {
	Window      time.Duration
	MaxRequests int
}

func NewPolicy(windowSeconds, maxRequests int) Policy {
	return Policy{Window: time.Duration(windowSeconds) * time.Second, MaxRequests: maxRequests}
}

func (p Policy) WindowSeconds() int64 { return int64(p.Window / time.Second) }

func (p Policy) Validate() error {
	if p.Window < time.Second {
		return fmt.Errorf("%w: window must be >= 1s, got %s", ErrInvalidPolicy, p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be > 0, got %d", ErrInvalidPolicy, p.MaxRequests)
	}
	return nil
}

// EndpointKey normaliza (method, route) para a chave da tabela: "POST /auth/login".
func EndpointKey(method, route string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + strings.TrimSpace(route)
}

// DefaultPolicies é a tabela embarcada; pode ser substituída via arquivo de políticas.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"POST /auth/login":            NewPolicy(300, 5),
		"POST /auth/register":         NewPolicy(3600, 3),
		"POST /auth/forgot-password":  NewPolicy(3600, 2),
		"POST /auth/reset-password":   NewPolicy(3600, 3),
		"POST /projects":              NewPolicy(60, 10),
		"POST /payments":              NewPolicy(60, 5),
		"POST /messages":              NewPolicy(60, 30),
		"GET /search":                 NewPolicy(60, 50),
		"GET /categories":             NewPolicy(60, 100),
		"PATCH /admin/users/{id}":     NewPolicy(300, 10),
		"DELETE /admin/users/{id}":    NewPolicy(300, 5),
		"PATCH /admin/projects/{id}":  NewPolicy(300, 10),
		"DELETE /admin/projects/{id}": NewPolicy(300, 5),
		"POST /uploads":               NewPolicy(60, 20),
		DefaultEndpoint:               NewPolicy(60, 100),
	}
}

// PolicyTable é imutável depois de construída: carregada no start, nunca alterada em runtime.
type PolicyTable struct {
	entries map[string]Policy
	def     Policy
}

// NewPolicyTable valida e congela a tabela. Sem entrada "default", usa 100/60.
func NewPolicyTable(entries map[string]Policy) (PolicyTable, error) {
	t := PolicyTable{
		entries: make(map[string]Policy, len(entries)),
		def:     NewPolicy(60, 100),
	}
	for k, p := range entries {
		if err := p.Validate(); err != nil {
			return PolicyTable{}, fmt.Errorf("policy %q: %w", k, err)
		}
		if k == DefaultEndpoint {
			t.def = p
			continue
		}
		method, route, ok := strings.Cut(strings.TrimSpace(k), " ")
		if !ok || route == "" {
			return PolicyTable{}, fmt.Errorf("%w: key %q must be \"METHOD /route\"", ErrInvalidPolicy, k)
		}
		t.entries[EndpointKey(method, route)] = p
	}
	return t, nil
}

// Lookup faz match exato em (method, route). Rotas desconhecidas resolvem para default;
// PolicyNotFound nunca é um erro.
func (t PolicyTable) Lookup(method, route string) (string, Policy) {
	key := EndpointKey(method, route)
	if p, ok := t.entries[key]; ok {
		return key, p
	}
	return DefaultEndpoint, t.def
}

func (t PolicyTable) Default() Policy { return t.def }

// Keys retorna as chaves registradas em ordem, com "default" por último.
func (t PolicyTable) Keys() []string {
	out := make([]string, 0, len(t.entries)+1)
	for k := range t.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return append(out, DefaultEndpoint)
}

// Get retorna a política de uma chave já normalizada (inclui "default").
func (t PolicyTable) Get(key string) (Policy, bool) {
	if key == DefaultEndpoint {
		return t.def, true
	}
	p, ok := t.entries[key]
	return p, ok
}
