package domain

import "time"

// Stream é um dos fluxos de auditoria independentes.
type Stream string

const (
	StreamAccess     Stream = "access"
	StreamViolations Stream = "violations"
	StreamAttacks    Stream = "attacks"
	StreamCritical   Stream = "critical"
)

func Streams() []Stream {
	return []Stream{StreamAccess, StreamViolations, StreamAttacks, StreamCritical}
}

// LogEntry é um registro append-only de auditoria.
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Stream     Stream    `json:"stream"`
	Event      string    `json:"event"`
	Identity   Identity  `json:"identity,omitempty"`
	IP         string    `json:"ip,omitempty"`
	Method     string    `json:"method,omitempty"`
	Path       string    `json:"path,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Client     string    `json:"client,omitempty"`
	Categories []string  `json:"categories,omitempty"`
	Count      int64     `json:"count,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}
