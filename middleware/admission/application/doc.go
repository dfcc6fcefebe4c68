// Package application contém os casos de uso da camada de admissão:
// WindowLimiter, Escalator, BlacklistGuard, Detector, AuditLogger e o Pipeline
// que compõe tudo em uma decisão por requisição.
//
// Ele depende apenas do pacote domain (e de logging/métricas) e não conhece net/http.
// Ex.: Pipeline.Decide(ctx, req) retorna uma Decision (admit/deny/reject).
//
// Falhas do store nunca sobem: cada serviço converte o erro em fail-open no ponto de uso.
package application
