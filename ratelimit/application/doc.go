// Package application contém os casos de uso (regras de aplicação) para rate limit
// e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Service.CheckAndRecord(ctx, key) retorna um domain.Info (allow/deny,
// contagem, restante e horário de reset).
package application
