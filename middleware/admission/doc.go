// Package admission fornece o adapter HTTP (net/http) da camada de admissão:
// identidade do cliente, blacklist, detecção de ataques e rate limit por endpoint,
// além do limite de concorrência.
package admission
