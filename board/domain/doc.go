// Package domain define os tipos e contratos do mural de mensagens: usuários,
// mensagens encadeadas por previous/next, o conjunto fechado de erros e as
// interfaces das stores externas.
//
// Não depende de Mongo, Badger, NATS nem de net/http.
package domain
