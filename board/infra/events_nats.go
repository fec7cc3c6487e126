package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"message-board/board/domain"

	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "board"

// NATSPublisher publica eventos do mural em "{prefix}.{type}", por exemplo
// board.message.posted. Core NATS, sem JetStream: quem não estiver ouvindo perde.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Subject(t domain.EventType) string {
	return p.prefix + "." + string(t)
}

func (p *NATSPublisher) Publish(ctx context.Context, ev domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := nats.NewMsg(p.Subject(ev.Type))
	msg.Data = data
	msg.Header.Set("Event-Type", string(ev.Type))
	msg.Header.Set("Owner", ev.Owner)

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// ConnectNATS conecta com reconexão infinita; a publicação é best-effort.
func ConnectNATS(url, name string, timeout time.Duration) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(timeout),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NopPublisher descarta os eventos. Usado quando NATS_URL não está definido.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) error { return nil }
