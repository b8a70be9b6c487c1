package server

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/simview/internal/core/observability/log"
)

// Config holds server configuration. An empty address disables that
// listener; at least one must be set.
type Config struct {
	WebSocketAddr string
	WebSocketPath string
	QUICAddr      string
	// TLS is used by the QUIC listener. Nil generates a self-signed config.
	TLS             *tls.Config
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() Config {
	return Config{
		WebSocketAddr:   "127.0.0.1:8765",
		WebSocketPath:   "/ws",
		ShutdownTimeout: 5 * time.Second,
	}
}

// Server runs the bridge listeners.
type Server struct {
	config Config
	bridge *Bridge
	logger log.Log

	mu     sync.Mutex
	wsLn   net.Listener
	quicLn *quic.Listener
	closed bool
}

func NewServer(config Config, bridge *Bridge, logger log.Log) (*Server, error) {
	if config.WebSocketAddr == "" && config.QUICAddr == "" {
		return nil, ErrNothingToListen
	}
	if bridge == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "nil bridge")
	}
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/ws"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}
	return &Server{
		config: config,
		bridge: bridge,
		logger: log.Ensure(logger).With(log.String("component", "server")),
	}, nil
}

// Listen binds the configured addresses without serving yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}

	if s.config.WebSocketAddr != "" && s.wsLn == nil {
		ln, err := net.Listen("tcp", s.config.WebSocketAddr)
		if err != nil {
			return errors.Wrapf(ErrListenerFailed, "websocket %s: %v", s.config.WebSocketAddr, err)
		}
		s.wsLn = ln
		s.logger.Info("WebSocket bridge listening", log.String("addr", ln.Addr().String()))
	}

	if s.config.QUICAddr != "" && s.quicLn == nil {
		tlsConf := s.config.TLS
		if tlsConf == nil {
			var err error
			if tlsConf, err = SelfSignedTLS(); err != nil {
				return err
			}
		}
		ln, err := quic.ListenAddr(s.config.QUICAddr, tlsConf, quicConfig())
		if err != nil {
			return errors.Wrapf(ErrListenerFailed, "quic %s: %v", s.config.QUICAddr, err)
		}
		s.quicLn = ln
		s.logger.Info("QUIC bridge listening", log.String("addr", ln.Addr().String()))
	}
	return nil
}

// WebSocketAddr is the bound websocket address, or nil before Listen.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wsLn == nil {
		return nil
	}
	return s.wsLn.Addr()
}

// QUICAddr is the bound QUIC address, or nil before Listen.
func (s *Server) QUICAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quicLn == nil {
		return nil
	}
	return s.quicLn.Addr()
}

// Run listens if needed and serves until ctx is cancelled, then shuts the
// listeners down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	wsLn, quicLn := s.wsLn, s.quicLn
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	if wsLn != nil {
		mux := http.NewServeMux()
		mux.HandleFunc(s.config.WebSocketPath, s.bridge.HandleWebSocket)
		httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		g.Go(func() error {
			if err := httpServer.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "websocket bridge")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
			defer cancel()
			err := httpServer.Shutdown(shutdownCtx)
			if n := s.bridge.closeConns(); n > 0 {
				s.logger.Info("Closed websocket hosts", log.Int("count", n))
			}
			return err
		})
	}

	if quicLn != nil {
		g.Go(func() error {
			return s.bridge.serveQUIC(gctx, quicLn)
		})
		g.Go(func() error {
			<-gctx.Done()
			return quicLn.Close()
		})
	}

	err := g.Wait()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.logger.Info("Bridge stopped")
	return err
}
