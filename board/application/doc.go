// Package application orquestra o mural: valida a entrada, confere o dono,
// consulta o rate limit e só então mexe na cadeia de mensagens.
//
// Não conhece HTTP, Redis nem Mongo: recebe RateLimiter, MessageChain e
// domain.RecordStore prontos.
package application
