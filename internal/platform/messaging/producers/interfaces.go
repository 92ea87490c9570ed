package producers

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// UnmatchedPublisher handles publishing webhook callbacks that matched no
// known transaction. Callers hold a nil interface when publishing is
// disabled; implementations additionally tolerate nil receivers so a typed
// nil slipping through still degrades to a no-op.
type UnmatchedPublisher interface {
	PublishUnmatched(ctx context.Context, reference string, callbackPayload []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
