package application

import (
	"context"
	"strings"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/domain"

	"github.com/mssola/useragent"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "security-gateway/admission"

// Pipeline concentra a regra de admissão por requisição.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Estados: BLACKLIST_CHECK -> ATTACK_SCAN -> RATE_CHECK -> {ADMIT | DENY | REJECT}.
// Campos nil desligam o estágio correspondente.
type Pipeline struct {
	Policies  domain.PolicyTable
	Guard     *BlacklistGuard
	Detector  *Detector
	Limiter   *WindowLimiter
	Escalator *Escalator
	Audit     *AuditLogger
	Log       zerolog.Logger

	// BlockOnAttack rejeita já a requisição que casou uma assinatura.
	// Desligado: o ataque é contabilizado e o banimento vale só para as próximas.
	BlockOnAttack bool
	// SensitivePaths são prefixos cujo acesso vai para o stream de auditoria "access".
	SensitivePaths []string
	// Tracer nil usa o provider global do otel (noop se ninguém configurou).
	Tracer trace.Tracer
}

// stage devolve true quando a decisão é terminal.
type stage func(ctx context.Context, req *domain.Request, d *domain.Decision) bool

func (p *Pipeline) Decide(ctx context.Context, req domain.Request) domain.Decision {
	tracer := p.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "admission.decide")
	defer span.End()

	d := domain.Decision{
		Identity: domain.ResolveIdentity(req.IP, req.UserAgent, req.UserID),
		Outcome:  domain.Admit,
	}
	d.EndpointKey, d.Policy = p.Policies.Lookup(req.Method, req.Route)

	for _, st := range []stage{p.checkBlacklist, p.scanAttacks, p.checkRate} {
		if st(ctx, &req, &d) {
			break
		}
	}

	span.SetAttributes(
		attribute.String("admission.outcome", d.Outcome.String()),
		attribute.String("admission.endpoint", d.EndpointKey),
		attribute.Bool("admission.authenticated", d.Identity.Authenticated()),
		attribute.Bool("admission.escalated", d.Escalated),
		attribute.StringSlice("admission.attacks", d.Attacks.Strings()),
	)
	metrics.Decisions.WithLabelValues(d.Outcome.String(), d.EndpointKey).Inc()
	if p.sensitive(req.Path) {
		p.Audit.Record(domain.StreamAccess, domain.LogEntry{
			Event:    d.Outcome.String(),
			Identity: d.Identity,
			IP:       req.IP,
			Method:   req.Method,
			Path:     req.Path,
			Endpoint: d.EndpointKey,
			Client:   clientLabel(req.UserAgent),
			Detail:   d.Reason,
		})
	}
	return d
}

// checkBlacklist não toca em nenhum contador: banido não renova o próprio ban.
func (p *Pipeline) checkBlacklist(ctx context.Context, req *domain.Request, d *domain.Decision) bool {
	if !p.Guard.IsBanned(ctx, d.Identity) {
		return false
	}
	d.Outcome = domain.Reject
	d.Reason = "blacklisted"
	p.Log.Info().
		Str("identity", string(d.Identity)).
		Str("ip", req.IP).
		Str("endpoint", d.EndpointKey).
		Msg("blacklisted client rejected")
	return true
}

func (p *Pipeline) scanAttacks(ctx context.Context, req *domain.Request, d *domain.Decision) bool {
	cats := p.Detector.Scan(req.Path, req.Body, req.Query, req.UserAgent)
	if cats.Empty() {
		return false
	}
	d.Attacks = cats
	for _, c := range cats {
		metrics.AttacksDetected.WithLabelValues(string(c)).Inc()
	}

	p.Log.Warn().
		Str("identity", string(d.Identity)).
		Str("ip", req.IP).
		Str("method", req.Method).
		Str("path", req.Path).
		Strs("categories", cats.Strings()).
		Msg("attack pattern detected")
	p.Audit.Record(domain.StreamAttacks, domain.LogEntry{
		Event:      "attack_detected",
		Identity:   d.Identity,
		IP:         req.IP,
		Method:     req.Method,
		Path:       req.Path,
		Endpoint:   d.EndpointKey,
		Client:     clientLabel(req.UserAgent),
		Categories: cats.Strings(),
	})

	if p.Escalator != nil && p.Escalator.RecordAttack(ctx, d.Identity) {
		d.Escalated = true
	}
	if p.BlockOnAttack {
		d.Outcome = domain.Reject
		d.Reason = "attack_detected"
		return true
	}
	return false
}

func (p *Pipeline) checkRate(ctx context.Context, req *domain.Request, d *domain.Decision) bool {
	if p.Limiter == nil {
		d.Outcome = domain.Admit
		return true
	}
	d.Window = p.Limiter.Check(ctx, d.Identity, d.EndpointKey, d.Policy)
	if d.Window.Admitted {
		d.Outcome = domain.Admit
		if d.Window.Degraded {
			d.Reason = "store_unavailable"
		}
		return true
	}

	d.Outcome = domain.Deny
	d.Reason = "rate_limited"
	p.Log.Info().
		Str("identity", string(d.Identity)).
		Str("endpoint", d.EndpointKey).
		Int64("count", d.Window.Count).
		Int("limit", d.Window.Limit).
		Msg("rate limit exceeded")
	p.Audit.Record(domain.StreamViolations, domain.LogEntry{
		Event:    "rate_limited",
		Identity: d.Identity,
		IP:       req.IP,
		Method:   req.Method,
		Path:     req.Path,
		Endpoint: d.EndpointKey,
		Count:    d.Window.Count,
	})
	if p.Escalator != nil && p.Escalator.RecordViolation(ctx, d.Identity) {
		d.Escalated = true
	}
	return true
}

// clientLabel resume o User-Agent para a auditoria ("Chrome 120.0 / Windows 10", "bot Googlebot").
func clientLabel(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	if parsed.Bot() {
		return strings.TrimSpace("bot " + name)
	}
	label := strings.TrimSpace(name + " " + version)
	if platform := parsed.OS(); platform != "" {
		label += " / " + platform
	}
	return label
}

func (p *Pipeline) sensitive(path string) bool {
	for _, prefix := range p.SensitivePaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
