// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: contador por janela com check-and-increment em um único script Lua
//   - MemoryCounterStore: mesmo contrato em memória, com limpeza periódica
//   - RedisStatsStore / MemoryStatsStore: estatísticas das decisões
//   - ChanPool / KeyedPool: semáforos para limite de concorrência
package infra
