package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/simview/internal/core/observability/log"
)

const maxLineSize = 1 << 20

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  60 * time.Second,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// serveQUIC accepts connections until ctx is done or the listener closes.
// Every stream of a connection carries newline-delimited Update documents.
func (b *Bridge) serveQUIC(ctx context.Context, ln *quic.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "accept QUIC connection")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.handleQUICConn(ctx, conn)
		}()
	}
}

func (b *Bridge) handleQUICConn(ctx context.Context, conn *quic.Conn) {
	peer := conn.RemoteAddr().String()
	b.logger.Info("QUIC host connected", log.String("peer", peer))
	defer func() {
		_ = conn.CloseWithError(0, "bridge closed")
		b.logger.Info("QUIC host disconnected", log.String("peer", peer))
	}()

	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go b.handleQUICStream(stream, peer)
	}
}

func (b *Bridge) handleQUICStream(stream *quic.Stream, peer string) {
	defer func() { _ = stream.Close() }()
	if err := b.serveLines(stream, stream); err != nil {
		b.logger.Debug("QUIC stream ended", log.String("peer", peer), log.Error(err))
	}
}

// serveLines answers each JSON line read from r with an Ack line on w.
func (b *Bridge) serveLines(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(w)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ack := Ack{Error: ErrInvalidUpdate.Error()}
		var u Update
		if err := json.Unmarshal(line, &u); err == nil {
			ack = b.ack(u, "quic")
		}
		if err := enc.Encode(ack); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Pusher sends updates to a QUIC bridge over one stream.
type Pusher struct {
	conn   *quic.Conn
	stream *quic.Stream
	reader *bufio.Reader
	enc    *json.Encoder
}

// DialQUIC connects to a bridge. A nil tlsConf trusts any certificate.
func DialQUIC(ctx context.Context, addr string, tlsConf *tls.Config) (*Pusher, error) {
	if tlsConf == nil {
		tlsConf = InsecureClientTLS()
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "failed to open stream")
		return nil, errors.Wrap(err, "open stream")
	}
	return &Pusher{
		conn:   conn,
		stream: stream,
		reader: bufio.NewReader(stream),
		enc:    json.NewEncoder(stream),
	}, nil
}

// Push sends u and waits for its Ack.
func (p *Pusher) Push(u Update) (Ack, error) {
	if err := p.enc.Encode(u); err != nil {
		return Ack{}, errors.Wrap(err, "send update")
	}
	line, err := p.reader.ReadBytes('\n')
	if err != nil {
		return Ack{}, errors.Wrap(err, "read ack")
	}
	var ack Ack
	if err = json.Unmarshal(line, &ack); err != nil {
		return Ack{}, errors.Wrap(err, "decode ack")
	}
	return ack, nil
}

func (p *Pusher) Close() error {
	_ = p.stream.Close()
	return p.conn.CloseWithError(0, "bye")
}
