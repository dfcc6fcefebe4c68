// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStore: store compartilhado em Redis; contagem em janela via scripts Lua atômicos
//   - MemoryStore: mesmo contrato em memória, para desenvolvimento e testes (uma instância só)
//   - NewSemaphorePool: semáforo para limite de concorrência (x/sync/semaphore)
package infra
