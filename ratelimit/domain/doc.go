// Package domain define contratos e tipos de domínio para o rate limit por janela
// fixa e para a limitação de concorrência.
//
// Este pacote não depende de net/http, Redis nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar regras de negócio
// de detalhes de infraestrutura.
package domain
