// Package board expõe o mural de mensagens por HTTP (chi).
//
// Este pacote é só o adaptador: decodifica a requisição, chama o
// application.Service, traduz domain.Error em status HTTP e escreve os
// headers X-RateLimit-* em toda resposta que carrega estado de cota.
//
//	POST   /users
//	GET    /users/{userID}
//	GET    /users/{userID}/messages
//	POST   /users/{userID}/messages
//	GET    /users/{userID}/rate-limit
//	DELETE /users/{userID}/rate-limit
//	DELETE /messages/{messageID}
//	GET    /healthz
package board
