package inbox

import (
	"time"
)

// Message is one relayed purchase event waiting to be projected.
type Message struct {
	ID          int64
	MessageID   string
	QueueName   string
	Payload     []byte
	ContentType string
	RetryCount  int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time
	DeliveryTag uint64
}
