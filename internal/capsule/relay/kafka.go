package relay

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"timevault/internal/capsule/events"
)

// KafkaPublisher produces outbox entries to one topic, keyed by capsule
// address so every capsule's events land on one partition in order.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

func NewKafkaPublisher(client *kgo.Client, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, entries []events.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := p.client.ProduceSync(ctx, records(p.topic, entries)...).FirstErr(); err != nil {
		return fmt.Errorf("produce %d events to %s: %w", len(entries), p.topic, err)
	}
	return nil
}

func records(topic string, entries []events.OutboxEntry) []*kgo.Record {
	out := make([]*kgo.Record, len(entries))
	for i, e := range entries {
		out[i] = &kgo.Record{
			Topic: topic,
			Key:   []byte(e.Key),
			Value: e.Body,
			Headers: []kgo.RecordHeader{
				{Key: "event_id", Value: []byte(e.ID.String())},
				{Key: "event_type", Value: []byte(e.Type)},
			},
		}
	}
	return out
}
