// Package queue moves forecast jobs to workers and prediction events to
// downstream consumers. NATS JetStream, Redis Streams and Kafka back it in
// deployments; the memory queue serves single-process runs and tests.
package queue

import "context"

// Type names a queue backend in configuration
type Type string

const (
	TypeNATS   Type = "nats" // default
	TypeRedis  Type = "redis"
	TypeKafka  Type = "kafka"
	TypeMemory Type = "memory"
)

// Publisher sends payloads to a subject (a topic or stream, per backend)
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error

	// PublishBatch sends messages together and returns how many were
	// accepted. It errors only when none were.
	PublishBatch(ctx context.Context, messages []BatchMessage) (int, error)

	Close() error
}

// BatchMessage is one entry of a PublishBatch call
type BatchMessage struct {
	Subject string
	Data    []byte
}

// Subscriber runs one handler per subject
type Subscriber interface {
	Subscribe(subject string, handler MessageHandler) error
	Unsubscribe(subject string) error
	Close() error
}

// MessageHandler processes one payload. ctx ends with the subscription. A
// nil return acknowledges the message; an error asks the backend to
// deliver it again.
type MessageHandler func(ctx context.Context, data []byte) error

// Queue is what the services need from a backend
type Queue interface {
	Publisher
	Subscriber
}
