package ethereum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/websocket"

	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Compile-time check that LogSubscriber implements outbound.EventSubscription
var _ outbound.EventSubscription = (*LogSubscriber)(nil)

// errBufferSize bounds how many unread transport faults are kept.
const errBufferSize = 16

// LogSubscriber delivers contract logs from an eth_subscribe("logs") stream.
// It reconnects with exponential backoff whenever the socket drops and keeps
// doing so until Unsubscribe is called or its context ends. Every drop is
// reported on Err() and never closes Logs().
type LogSubscriber struct {
	config SubscriberConfig

	mu     sync.RWMutex
	conn   *websocket.Conn
	closed bool

	logs chan types.Log
	errs chan error
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	connected   atomic.Bool
	connectedCh chan struct{}
	connectOnce sync.Once
	reconnects  atomic.Int64
	logger      *slog.Logger
}

// NewLogSubscriber creates a subscriber. Nothing is dialed until Start.
func NewLogSubscriber(config SubscriberConfig) (*LogSubscriber, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.applyDefaults()
	return &LogSubscriber{
		config:      config,
		logs:        make(chan types.Log, config.ChannelBufferSize),
		errs:        make(chan error, errBufferSize),
		done:        make(chan struct{}),
		connectedCh: make(chan struct{}),
		logger:      config.Logger.With("component", "log-subscriber"),
	}, nil
}

// Start launches the connection manager. It returns immediately.
func (s *LogSubscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("subscriber is closed")
	}
	if s.ctx != nil {
		return errors.New("subscriber already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.connectionManager()
	return nil
}

// WaitConnected blocks until the first subscription is confirmed or ctx ends.
func (s *LogSubscriber) WaitConnected(ctx context.Context) error {
	select {
	case <-s.connectedCh:
		return nil
	case <-s.done:
		return errors.New("subscriber is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logs implements outbound.EventSubscription.
func (s *LogSubscriber) Logs() <-chan types.Log {
	return s.logs
}

// Err implements outbound.EventSubscription.
func (s *LogSubscriber) Err() <-chan error {
	return s.errs
}

// Connected reports whether a subscription is currently open.
func (s *LogSubscriber) Connected() bool {
	return s.connected.Load()
}

// Reconnects returns how many times the subscription was re-established.
func (s *LogSubscriber) Reconnects() int64 {
	return s.reconnects.Load()
}

// connectionManager owns the logs channel: it is the only sender and closes it on exit.
func (s *LogSubscriber) connectionManager() {
	defer close(s.logs)

	backoff := s.config.InitialBackoff
	first := true

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.connectAndSubscribe(); err != nil {
			if s.stopping() {
				return
			}
			s.reportErr(err)
			s.logger.Warn("failed to subscribe", "error", err, "backoff", backoff)

			select {
			case <-s.done:
				return
			case <-s.ctx.Done():
				return
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
			if backoff > s.config.MaxBackoff {
				backoff = s.config.MaxBackoff
			}
			continue
		}

		backoff = s.config.InitialBackoff
		s.connected.Store(true)
		if first {
			s.connectOnce.Do(func() { close(s.connectedCh) })
			s.logger.Info("log subscription established", "address", s.config.Address.Hex())
		} else {
			s.reconnects.Add(1)
			s.logger.Info("log subscription re-established", "address", s.config.Address.Hex())
		}
		first = false

		err := s.readLoop()
		s.connected.Store(false)
		if err == nil || s.stopping() {
			return
		}
		s.reportErr(err)
		s.logger.Warn("log subscription dropped, reconnecting", "error", err)
	}
}

// connectAndSubscribe dials the node and sends eth_subscribe for the contract logs.
// The handshake runs on a local connection without holding s.mu so Unsubscribe
// never waits on a slow node; cancelling s.ctx closes it mid-handshake.
func (s *LogSubscriber) connectAndSubscribe() error {
	conn, _, err := websocket.DefaultDialer.DialContext(s.ctx, s.config.WebSocketURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.config.WebSocketURL, err)
	}
	stopWatch := context.AfterFunc(s.ctx, func() { conn.Close() })

	if err := s.handshake(conn); err != nil {
		stopWatch()
		conn.Close()
		return err
	}
	if !stopWatch() {
		// The watcher already closed conn.
		return fmt.Errorf("subscription aborted: %w", s.ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return errors.New("subscriber is closed")
	}
	s.conn = conn
	return nil
}

func (s *LogSubscriber) handshake(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "eth_subscribe",
		Params: []any{"logs", logFilter{
			Address: s.config.Address,
			Topics:  s.config.Topics,
		}},
	}
	if err := conn.WriteJSON(req); err != nil {
		return fmt.Errorf("failed to send subscription request: %w", err)
	}

	var resp jsonRPCResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("failed to read subscription response: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("subscription failed: %w", resp.Error)
	}
	return nil
}

// stopping reports whether Unsubscribe was called or the context ended.
func (s *LogSubscriber) stopping() bool {
	select {
	case <-s.done:
		return true
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// readLoop forwards logs until the connection fails (non-nil error) or the
// subscriber is stopped (nil).
func (s *LogSubscriber) readLoop() error {
	pingTicker := time.NewTicker(s.config.PingInterval)
	defer pingTicker.Stop()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errors.New("connection is nil")
	}

	readErr := make(chan error, 1)
	received := make(chan types.Log, 10)
	connDone := make(chan struct{})
	defer close(connDone)

	go func() {
		for {
			if err := conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
				readErr <- fmt.Errorf("failed to set read deadline: %w", err)
				return
			}

			var msg jsonRPCResponse
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			if msg.Method != "eth_subscription" || msg.Params == nil {
				continue
			}

			var params subscriptionParams
			if err := json.Unmarshal(msg.Params, &params); err != nil {
				s.logger.Warn("failed to parse log notification", "error", err)
				continue
			}
			if params.Result.Removed {
				s.logger.Debug("ignoring removed log",
					"block", params.Result.BlockNumber,
					"tx", truncateHash(params.Result.TxHash.Hex()))
				continue
			}

			select {
			case received <- params.Result:
			case <-connDone:
				return
			}
		}
	}()

	for {
		select {
		case <-s.done:
			s.closeConnection()
			return nil
		case <-s.ctx.Done():
			s.closeConnection()
			return nil
		case err := <-readErr:
			s.closeConnection()
			// Logs read before the failure are still delivered.
			for {
				select {
				case l := <-received:
					if !s.forward(l) {
						return nil
					}
					continue
				default:
				}
				break
			}
			return fmt.Errorf("read failed: %w", err)
		case l := <-received:
			if !s.forward(l) {
				s.closeConnection()
				return nil
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.PongTimeout)); err != nil {
				s.closeConnection()
				return fmt.Errorf("ping failed: %w", err)
			}
		}
	}
}

// forward blocks until l is accepted or the subscriber stops.
func (s *LogSubscriber) forward(l types.Log) bool {
	select {
	case s.logs <- l:
		s.logger.Debug("log forwarded",
			"block", l.BlockNumber,
			"tx", truncateHash(l.TxHash.Hex()))
		return true
	case <-s.done:
		return false
	case <-s.ctx.Done():
		return false
	}
}

// reportErr queues a transport fault without ever blocking the reader.
func (s *LogSubscriber) reportErr(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Debug("error channel full, dropping fault", "error", err)
	}
}

// closeConnection safely closes the current WebSocket connection.
func (s *LogSubscriber) closeConnection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Unsubscribe implements outbound.EventSubscription. It is idempotent.
func (s *LogSubscriber) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	if s.cancel != nil {
		s.cancel()
	}
	started := s.ctx != nil
	if s.conn != nil {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.PongTimeout))
		_ = s.conn.WriteJSON(jsonRPCRequest{
			JSONRPC: "2.0",
			ID:      2,
			Method:  "eth_unsubscribe",
			Params:  []any{},
		})
		s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	// The connection manager closes logs on exit; without it we close it here.
	if !started {
		close(s.logs)
	}
}
