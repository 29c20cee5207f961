// Package common holds the broker record types shared by the messaging
// layer and its handlers.
package common

import (
	"context"
	"time"
)

// Message is a consumed broker record.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Header returns the value of header key, or "" when absent.
func (m *Message) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// ProducerMessage is a record to publish.
type ProducerMessage struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// MessageHandler processes one consumed message.
type MessageHandler func(ctx context.Context, msg *Message) error
