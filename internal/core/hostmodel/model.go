// Package hostmodel is the reactive key/value model a host shares with a
// widget. Every Set publishes "change:<key>" on the model's bus topic.
package hostmodel

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/events/bus"
	"github.com/zeusync/simview/internal/core/observability/log"
)

// Well-known keys.
const (
	KeyEnvMap     = "env_map"
	KeyPlayerData = "player_data"
	KeyResult     = "result"
)

// ChangeEvent is the event type published when key changes.
func ChangeEvent(key string) string {
	return "change:" + key
}

// Change is the payload of a change event.
type Change struct {
	Key   string
	Value json.RawMessage
}

// Model stores JSON values by key. It is safe for concurrent use; handlers
// run on the goroutine that called Set.
type Model struct {
	topic  string
	bus    bus.EventBus
	logger log.Log

	mu     sync.RWMutex
	values map[string]json.RawMessage
}

// New creates a model on its own topic of b. A nil bus gets a private one.
func New(b bus.EventBus, logger log.Log) *Model {
	if b == nil {
		b = bus.New()
	}
	topic := "model:" + uuid.NewString()
	_ = b.CreateTopic(topic)
	return &Model{
		topic:  topic,
		bus:    b,
		logger: log.Ensure(logger).With(log.String("component", "hostmodel"), log.String("topic", topic)),
		values: make(map[string]json.RawMessage),
	}
}

// Topic is the bus topic change events are published on.
func (m *Model) Topic() string { return m.topic }

// Get returns the stored value, or nil.
func (m *Model) Get(key string) json.RawMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key]
}

// Set encodes value, stores it and notifies subscribers. json.RawMessage and
// []byte values are stored as-is after validation.
func (m *Model) Set(key string, value any) error {
	raw, err := encode(value)
	if err != nil {
		return errors.Wrapf(err, "set %q", key)
	}

	m.mu.Lock()
	m.values[key] = raw
	m.mu.Unlock()

	m.logger.Debug("Model value changed", log.String("key", key), log.Int("bytes", len(raw)))
	return m.bus.PublishToTopic(m.topic, bus.NewEvent(ChangeEvent(key), m.topic, Change{Key: key, Value: raw}))
}

func encode(value any) (json.RawMessage, error) {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return encoded, nil
	}
	if !json.Valid(raw) {
		return nil, ErrInvalidValue
	}
	return bytes.Clone(raw), nil
}

// On subscribes fn to an event such as ChangeEvent(KeyResult).
func (m *Model) On(event string, fn func(Change)) (bus.Subscription, error) {
	return m.bus.SubscribeTopic(m.topic, event, func(e bus.Event) error {
		change, ok := e.Data().(Change)
		if !ok {
			return ErrInvalidValue
		}
		fn(change)
		return nil
	})
}

// Len returns the number of stored keys.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
