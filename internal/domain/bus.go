package domain

import (
	"context"
)

// EventBus carries tenant-scoped events between fraudwatch components and the
// case-management application. Community deployments use in-process channels,
// Pro deployments use NATS.
type EventBus interface {
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe delivers every message published on topic for tenantID to
	// handler until the returned Subscription is cancelled.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes one delivered message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope every event travels in. Payload is JSON.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig selects and tunes the bus backend.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `json:"type" mapstructure:"type"`

	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl" mapstructure:"natsUrl"`
	NATSToken         string `json:"-" mapstructure:"natsToken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"natsReconnectWait"` // seconds
}

// Topics exchanged with the surrounding case-management application.
const (
	TopicTransactionRecorded = "fraudwatch.transaction.recorded"
	TopicAssessmentCompleted = "fraudwatch.assessment.completed"
	TopicHighRisk            = "fraudwatch.assessment.high_risk"
	TopicBlacklistChanged    = "fraudwatch.blacklist.changed"
	TopicRulesChanged        = "fraudwatch.rules.changed"
)

// BlacklistEvent is the payload published on TopicBlacklistChanged.
type BlacklistEvent struct {
	Action string          `json:"action"` // "added" or "removed"
	Entry  *BlacklistEntry `json:"entry"`
	Actor  string          `json:"actor,omitempty"`
}
