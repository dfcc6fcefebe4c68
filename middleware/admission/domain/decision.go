package domain

import "time"

// Outcome é o resultado etiquetado da admissão.
type Outcome int

const (
	// Admit: segue para o handler downstream.
	Admit Outcome = iota
	// Deny: rate limit excedido (429).
	Deny
	// Reject: cliente na blacklist, ou ataque com bloqueio imediato habilitado (403).
	Reject
)

func (o Outcome) String() string {
	switch o {
	case Admit:
		return "admit"
	case Deny:
		return "deny"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// WindowResult é o que o limiter calculou para a janela corrente.
type WindowResult struct {
	Admitted  bool
	Limit     int
	Count     int64
	Remaining int
	// ResetAt é quando a janela libera quota (epoch no header X-RateLimit-Reset).
	ResetAt time.Time
	// RetryAfter é sempre o tamanho da janela na negação.
	RetryAfter time.Duration
	// Degraded indica fail-open: o store falhou e a requisição foi admitida sem contagem.
	Degraded bool
}

// Decision é a decisão final por requisição.
type Decision struct {
	Outcome     Outcome
	Identity    Identity
	EndpointKey string
	Policy      Policy
	Window      WindowResult
	Attacks     CategorySet
	// Escalated indica que esta requisição levou a identidade à blacklist.
	Escalated bool
	// Reason é interno (logs/auditoria); nunca é exposto ao cliente.
	Reason string
}

// Request é o descritor de requisição que a camada HTTP entrega ao pipeline.
type Request struct {
	Method    string
	Route     string
	Path      string
	Query     string
	Body      string
	UserAgent string
	IP        string
	UserID    string
}
