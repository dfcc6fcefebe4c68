package application

import (
	"context"
	"sync"
	"time"

	"security-gateway/internal/metrics"
	"security-gateway/middleware/admission/domain"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// AuditConfig controla a fila e o tamanho máximo de cada lista.
type AuditConfig struct {
	Workers      int
	QueueDepth   int
	WriteTimeout time.Duration
	Caps         map[domain.Stream]int64
}

func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Workers:      2,
		QueueDepth:   1024,
		WriteTimeout: time.Second,
		Caps: map[domain.Stream]int64{
			domain.StreamAccess:     10000,
			domain.StreamViolations: 10000,
			domain.StreamAttacks:    5000,
			domain.StreamCritical:   5000,
		},
	}
}

// AuditLogger é fire-and-forget: Record nunca bloqueia nem falha a requisição.
// Entradas vão para uma fila limitada e workers fazem o LPUSH + LTRIM no sink.
// Fila cheia => entrada descartada (e contada em métrica).
type AuditLogger struct {
	sink    domain.LogSink
	keys    domain.Keys
	cfg     AuditConfig
	log     zerolog.Logger
	now     func() time.Time
	entries chan domain.LogEntry

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAuditLogger(sink domain.LogSink, keys domain.Keys, cfg AuditConfig, log zerolog.Logger) *AuditLogger {
	def := DefaultAuditConfig()
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	caps := make(map[domain.Stream]int64, len(def.Caps))
	for s, n := range def.Caps {
		caps[s] = n
	}
	for s, n := range cfg.Caps {
		if n > 0 {
			caps[s] = n
		}
	}
	cfg.Caps = caps

	return &AuditLogger{
		sink:    sink,
		keys:    keys,
		cfg:     cfg,
		log:     log.With().Str("component", "audit").Logger(),
		now:     time.Now,
		entries: make(chan domain.LogEntry, cfg.QueueDepth),
	}
}

// Start sobe os workers. Eles drenam a fila até Close.
func (a *AuditLogger) Start() {
	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

// Record enfileira sem bloquear. Aceita receiver nil (auditoria desligada).
func (a *AuditLogger) Record(stream domain.Stream, e domain.LogEntry) {
	if a == nil {
		return
	}
	e.Stream = stream
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		metrics.AuditDropped.WithLabelValues(string(stream), "closed").Inc()
		return
	}
	select {
	case a.entries <- e:
		metrics.AuditQueueDepth.Set(float64(len(a.entries)))
	default:
		metrics.AuditDropped.WithLabelValues(string(stream), "queue_full").Inc()
	}
}

// Close para de aceitar entradas e espera a fila esvaziar.
func (a *AuditLogger) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.entries)
	a.mu.Unlock()

	a.wg.Wait()
}

func (a *AuditLogger) worker() {
	defer a.wg.Done()
	for e := range a.entries {
		metrics.AuditQueueDepth.Set(float64(len(a.entries)))
		a.write(e)
	}
}

func (a *AuditLogger) write(e domain.LogEntry) {
	if a.sink == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		metrics.AuditDropped.WithLabelValues(string(e.Stream), "encode").Inc()
		a.log.Error().Err(err).Str("stream", string(e.Stream)).Msg("encode audit entry")
		return
	}

	// desacoplado do ctx da requisição: o cliente pode já ter ido embora
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()

	if err := a.sink.PushCapped(ctx, a.keys.Log(e.Stream), payload, a.cfg.Caps[e.Stream]); err != nil {
		metrics.AuditDropped.WithLabelValues(string(e.Stream), "write").Inc()
		a.log.Error().Err(err).Str("stream", string(e.Stream)).Msg("write audit entry")
		return
	}
	metrics.AuditWritten.WithLabelValues(string(e.Stream)).Inc()
}
