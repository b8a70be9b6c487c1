// Package server exposes a host model to out-of-process hosts. A host pushes
// key/value updates over a websocket or a QUIC stream; each update becomes a
// model Set, which the widget observes as a change event.
package server

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/simview/internal/core/hostmodel"
	"github.com/zeusync/simview/internal/core/observability/log"
)

// Update sets one model key. Value must be JSON.
type Update struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Ack answers every update on the same connection.
type Ack struct {
	OK    bool   `json:"ok"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Bridge applies updates to a model. It also tracks its live websocket
// connections, which http.Server.Shutdown does not see once hijacked.
type Bridge struct {
	model  *hostmodel.Model
	logger log.Log

	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	draining bool
}

func NewBridge(model *hostmodel.Model, logger log.Log) *Bridge {
	return &Bridge{
		model:  model,
		logger: log.Ensure(logger).With(log.String("component", "bridge")),
	}
}

// Apply validates u and stores it in the model.
func (b *Bridge) Apply(u Update) error {
	key := strings.TrimSpace(u.Key)
	if key == "" {
		return errors.Wrap(ErrInvalidUpdate, "empty key")
	}
	value := bytes.TrimSpace(u.Value)
	if len(value) == 0 {
		return errors.Wrapf(ErrInvalidUpdate, "key %q has no value", key)
	}
	if err := b.model.Set(key, json.RawMessage(value)); err != nil {
		return errors.Wrap(ErrInvalidUpdate, err.Error())
	}
	return nil
}

// ack applies u and builds the reply.
func (b *Bridge) ack(u Update, transport string) Ack {
	if err := b.Apply(u); err != nil {
		b.logger.Warn("Rejected update",
			log.String("transport", transport),
			log.String("key", u.Key),
			log.Error(err))
		return Ack{OK: false, Key: u.Key, Error: err.Error()}
	}
	return Ack{OK: true, Key: u.Key}
}

// track registers a live websocket. It refuses once the bridge is draining.
func (b *Bridge) track(conn *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.draining {
		return false
	}
	if b.conns == nil {
		b.conns = make(map[*websocket.Conn]struct{})
	}
	b.conns[conn] = struct{}{}
	return true
}

func (b *Bridge) untrack(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}

// closeConns sends a going-away close frame to every live websocket and
// closes it, which unblocks the handler reads. Connections upgraded later
// are closed immediately. It returns how many were closed.
func (b *Bridge) closeConns() int {
	b.mu.Lock()
	b.draining = true
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	clear(b.conns)
	b.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer shutting down")
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
	}
	return len(conns)
}
