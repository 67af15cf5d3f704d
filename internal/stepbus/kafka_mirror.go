package stepbus

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"vantage/internal/config"
)

// KafkaMirror durably republishes Step events to a Kafka topic, keyed by
// session id, so a multi-process deployment can replay or audit a
// session's progress stream after the in-memory queue (§4.1, single-node
// by design) has been torn down. Grounded on the teacher's
// internal/tools/kafka/producer.go Writer construction idiom.
//
// Mirroring is best-effort: a publish failure or timeout never affects
// delivery to the SSE consumer, matching spec §4.1's "progress loss is
// acceptable, never back-pressure agents" policy.
type KafkaMirror struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaMirror builds a mirror from cfg. Returns nil, nil when
// cfg.Enabled is false or no brokers are configured — callers treat a nil
// mirror as "disabled" (Bus.SetMirror accepts nil).
func NewKafkaMirror(cfg config.KafkaConfig) (*KafkaMirror, error) {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil, nil
	}
	brokerList := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	if len(brokerList) == 0 {
		return nil, nil
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "vantage.step-events"
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokerList...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	return &KafkaMirror{writer: w, timeout: 2 * time.Second}, nil
}

// Publish best-effort-mirrors one session's event. Never blocks the
// caller beyond the mirror's own short timeout.
func (m *KafkaMirror) Publish(sessionID string, ev Event) {
	if m == nil || m.writer == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	_ = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sessionID),
		Value: payload,
		Time:  ev.Timestamp,
	})
}

// Close flushes and closes the underlying Kafka writer.
func (m *KafkaMirror) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}
