package audit

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/admin"
)

// KafkaWriter abstracts the output stream
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Trail records administrative overrides to Kafka. Best effort: the writer
// runs async and failures are only logged, an audit outage must never block
// an override.
type Trail struct {
	writer KafkaWriter
	logger *zap.Logger
}

var _ admin.Recorder = (*Trail)(nil)

func NewTrail(writer KafkaWriter, logger *zap.Logger) *Trail {
	return &Trail{writer: writer, logger: logger}
}

func (t *Trail) Record(event admin.OverrideEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("JSON Marshal Error", zap.Error(err))
		return
	}

	err = t.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(event.Symbol), // Key ensures partition ordering per symbol
		Value: payload,
	})
	if err != nil {
		t.logger.Error("Kafka Write Error", zap.Error(err))
		return
	}

	t.logger.Debug("override recorded",
		zap.String("symbol", event.Symbol),
		zap.String("action", event.Action))
}

func (t *Trail) Close() error {
	return t.writer.Close()
}

// NopRecorder discards events. Used when no audit sink is wired.
type NopRecorder struct{}

func (NopRecorder) Record(admin.OverrideEvent) {}
