package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// KeyedPool é um SlotPool com uma única vaga por chave: serializa quem usa a
// mesma chave e deixa chaves diferentes em paralelo.
type KeyedPool interface {
	Acquire(ctx context.Context, key Key) (release func(), ok bool)
}
