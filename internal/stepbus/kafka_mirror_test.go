package stepbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vantage/internal/config"
)

func TestNewKafkaMirrorDisabledReturnsNil(t *testing.T) {
	m, err := NewKafkaMirror(config.KafkaConfig{Enabled: false, Brokers: []string{"localhost:9092"}})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestNewKafkaMirrorNoBrokersReturnsNil(t *testing.T) {
	m, err := NewKafkaMirror(config.KafkaConfig{Enabled: true})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestNilMirrorPublishIsNoop(t *testing.T) {
	var m *KafkaMirror
	m.Publish("s1", Event{Type: EventStep}) // must not panic
	require.NoError(t, m.Close())
}

func TestBusEmitWithNilMirrorDoesNotPanic(t *testing.T) {
	b := New(4)
	b.SetMirror(nil)
	b.EnsureQueue("s1")
	b.Emit("s1", Event{Type: EventStep, Action: "first"})
}
