// Package infra contém implementações concretas dos contratos de board/domain.
//
// Exemplos:
//   - MemoryRecordStore: mapas em memória, para testes e example-server
//   - MongoRecordStore: coleções users/messages com índice (owner, createdAt)
//   - BadgerRecordStore: store embarcada com chaves ordenadas por dono e tempo
//   - NATSPublisher / NopPublisher: eventos do mural
package infra
