package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/xiaolang-labs/xiaolang-hub/internal/logging"
)

// NATSService publishes assistant activity for downstream consumers
// (activity log writers, dashboards). The dispatcher itself never depends
// on a subscriber being present.
type NATSService struct {
	conn          *nats.Conn
	url           string
	maxReconnects int
	reconnectWait time.Duration
}

// CommandEvent represents a routed voice command
type CommandEvent struct {
	SessionID   string `json:"session_id"`
	CommandText string `json:"command_text"`
	Matched     string `json:"matched"`
	ActionType  string `json:"action_type"`
	View        string `json:"view,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

// StateChangeEvent represents an assistant state transition
type StateChangeEvent struct {
	SessionID string `json:"session_id"`
	PrevState string `json:"prev_state"`
	NextState string `json:"next_state"`
	Reason    string `json:"reason"` // wake, sleep, timeout, disengaged
	Timestamp int64  `json:"timestamp"`
}

// NATS subjects for different event types
const (
	SubjectCommands     = "xiaolang.assistant.commands"
	SubjectStateChanges = "xiaolang.assistant.state"
	SubjectSystemEvents = "xiaolang.system.events"
)

// NewNATSService creates a new NATS service instance. A zero
// maxReconnects means retry indefinitely; a zero reconnectWait falls
// back to 2 seconds.
func NewNATSService(url string, maxReconnects int, reconnectWait time.Duration) *NATSService {
	if url == "" {
		url = nats.DefaultURL
	}
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	return &NATSService{
		url:           url,
		maxReconnects: maxReconnects,
		reconnectWait: reconnectWait,
	}
}

// Connect establishes connection to the NATS server
func (ns *NATSService) Connect() error {
	opts := []nats.Option{
		nats.Name("xiaolang-hub"),
		nats.ReconnectWait(ns.reconnectWait),
		nats.MaxReconnects(ns.maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.LogWarn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔄 NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Sugar.Infow("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(ns.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	ns.conn = conn
	logging.Sugar.Infow("✅ Connected to NATS server", "url", conn.ConnectedUrl())
	return nil
}

// PublishCommand publishes a routed command event
func (ns *NATSService) PublishCommand(event *CommandEvent) error {
	if ns.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal command event: %w", err)
	}

	if err := ns.conn.Publish(SubjectCommands, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectCommands, err)
	}

	logging.LogNATSEvent(SubjectCommands, "publish",
		zap.String("session_id", event.SessionID),
		zap.String("action_type", event.ActionType))
	return nil
}

// PublishStateChange publishes an assistant state transition
func (ns *NATSService) PublishStateChange(event *StateChangeEvent) error {
	if ns.conn == nil {
		return fmt.Errorf("NATS connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal state change event: %w", err)
	}

	if err := ns.conn.Publish(SubjectStateChanges, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectStateChanges, err)
	}

	logging.LogNATSEvent(SubjectStateChanges, "publish",
		zap.String("session_id", event.SessionID),
		zap.String("reason", event.Reason))
	return nil
}

// SubscribeToCommands subscribes to routed command events
func (ns *NATSService) SubscribeToCommands(handler func(*CommandEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	return ns.conn.Subscribe(SubjectCommands, func(msg *nats.Msg) {
		var event CommandEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logging.LogError(err, "Error unmarshaling command event")
			return
		}

		handler(&event)
	})
}

// SubscribeToStateChanges subscribes to assistant state transitions
func (ns *NATSService) SubscribeToStateChanges(handler func(*StateChangeEvent)) (*nats.Subscription, error) {
	if ns.conn == nil {
		return nil, fmt.Errorf("NATS connection not established")
	}

	return ns.conn.Subscribe(SubjectStateChanges, func(msg *nats.Msg) {
		var event StateChangeEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			logging.LogError(err, "Error unmarshaling state change event")
			return
		}

		handler(&event)
	})
}

// Close closes the NATS connection
func (ns *NATSService) Close() {
	if ns.conn != nil {
		ns.conn.Close()
	}
}

// IsConnected returns true if connected to NATS
func (ns *NATSService) IsConnected() bool {
	return ns.conn != nil && ns.conn.IsConnected()
}

// GetStats returns connection statistics
func (ns *NATSService) GetStats() nats.Statistics {
	if ns.conn != nil {
		return ns.conn.Stats()
	}
	return nats.Statistics{}
}
