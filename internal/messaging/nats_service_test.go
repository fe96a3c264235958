package messaging

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
)

func TestNewNATSServiceDefaults(t *testing.T) {
	ns := NewNATSService("", 0, 0)

	assert.Equal(t, nats.DefaultURL, ns.url)
	assert.Equal(t, -1, ns.maxReconnects, "zero means retry indefinitely")
	assert.Equal(t, 2*time.Second, ns.reconnectWait)
}

func TestNewNATSServiceUsesConfiguredReconnects(t *testing.T) {
	ns := NewNATSService("nats://broker:4222", 10, 5*time.Second)

	assert.Equal(t, "nats://broker:4222", ns.url)
	assert.Equal(t, 10, ns.maxReconnects)
	assert.Equal(t, 5*time.Second, ns.reconnectWait)
}

func TestPublishWithoutConnection(t *testing.T) {
	ns := NewNATSService("nats://broker:4222", 1, time.Second)

	assert.Error(t, ns.PublishCommand(&CommandEvent{SessionID: "s"}))
	assert.Error(t, ns.PublishStateChange(&StateChangeEvent{SessionID: "s"}))
	assert.False(t, ns.IsConnected())
}

func TestGetStatsWithoutConnection(t *testing.T) {
	ns := NewNATSService("", 0, 0)

	assert.Equal(t, nats.Statistics{}, ns.GetStats())
}
