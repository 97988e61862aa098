package testutils

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/admin"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/audit"
	"github.com/dnckss/cryptox-sub000/cmd/simd/internal/sim"
)

// MockClock is a manually advanced clock
type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// MockRand returns fixed values for deterministic drift
type MockRand struct {
	ValInt   int
	ValFloat float64
}

func (m *MockRand) Intn(n int) int   { return m.ValInt }
func (m *MockRand) Float64() float64 { return m.ValFloat }

// FixedRandSource ignores id and bucket and always yields the same values
func FixedRandSource(valInt int, valFloat float64) sim.RandSource {
	return func(coinID string, bucket int64) sim.Rand {
		return &MockRand{ValInt: valInt, ValFloat: valFloat}
	}
}

// MockViewer records everything the hub sends it
type MockViewer struct {
	IDVal    string
	Mu       sync.Mutex
	Payloads []string
	Closed   bool
}

func NewMockViewer(id string) *MockViewer {
	return &MockViewer{IDVal: id}
}

func (m *MockViewer) ID() string { return m.IDVal }

func (m *MockViewer) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Payloads = append(m.Payloads, string(b))
}

func (m *MockViewer) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockViewer) PayloadCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Payloads)
}

func (m *MockViewer) Payload(i int) string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.Payloads[i]
}

// MockRecorder captures audit events
type MockRecorder struct {
	Mu     sync.Mutex
	Events []admin.OverrideEvent
}

func (m *MockRecorder) Record(event admin.OverrideEvent) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Events = append(m.Events, event)
}

// MockKafkaWriter captures audit payloads
type MockKafkaWriter struct {
	Messages   []kafka.Message
	Mu         sync.Mutex
	ShouldFail bool
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }

type MockKafkaConn struct {
	CreatedTopics []string
}

func (m *MockKafkaConn) Controller() (kafka.Broker, error) {
	return kafka.Broker{Host: "localhost", Port: 9092}, nil
}
func (m *MockKafkaConn) Close() error { return nil }
func (m *MockKafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	for _, t := range topics {
		m.CreatedTopics = append(m.CreatedTopics, t.Topic)
	}
	return nil
}
func (m *MockKafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	// Simulate "Ready" state immediately
	return []kafka.Partition{{ID: 0}}, nil
}

type MockKafkaDialer struct {
	ConnSpy *MockKafkaConn
}

func (m *MockKafkaDialer) DialContext(ctx context.Context, network, address string) (audit.KafkaConn, error) {
	if m.ConnSpy == nil {
		m.ConnSpy = &MockKafkaConn{}
	}
	return m.ConnSpy, nil
}
