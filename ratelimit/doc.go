// Package ratelimit fornece adapters HTTP (net/http) para o rate limit e o limite
// de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (check-and-record, status, reset, acquire/timeout) sem net/http
//   - infra: implementações concretas (Redis, memória, semáforos)
//   - ratelimit (este pacote): headers de resposta + middleware de concorrência
//
// Fluxo no mural:
//
//   1) O handler chama a camada application (via orquestrador) para obter o Info
//   2) SetHeaders traduz o Info para X-RateLimit-* e Retry-After
//   3) Se bloqueado, o handler responde 429; ConcurrencyMiddleware responde 503
//
// Variáveis de ambiente do binário (cmd/board) controlam o comportamento,
// como RATE_WINDOW, RATE_MAX_REQUESTS, CONCURRENCY_MAX e CONCURRENCY_TIMEOUT.
package ratelimit
