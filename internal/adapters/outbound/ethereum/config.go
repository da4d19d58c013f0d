package ethereum

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default configuration values.
const (
	defaultInitialBackoff      = 1 * time.Second
	defaultMaxBackoff          = 30 * time.Second
	defaultBackoffFactor       = 2.0
	defaultPingInterval        = 30 * time.Second
	defaultPongTimeout         = 10 * time.Second
	defaultReadTimeout         = 90 * time.Second
	defaultChannelBufferSize   = 100
	defaultReceiptPollInterval = 500 * time.Millisecond
	defaultSubscribeTimeout    = 30 * time.Second
)

// Config holds the configuration for the ledger gateway.
type Config struct {
	// HTTPURL is the JSON-RPC endpoint used for accounts, calls and transactions.
	// Example: http://127.0.0.1:8545
	HTTPURL string

	// WebSocketURL is the endpoint used for eth_subscribe.
	// Derived from HTTPURL (http→ws) if not set.
	WebSocketURL string

	// ContractAddress is the FlightSuretyApp contract address.
	ContractAddress common.Address

	// ReceiptPollInterval is how often eth_getTransactionReceipt is polled
	// after a transaction is broadcast. Defaults to 500ms.
	ReceiptPollInterval time.Duration

	// SubscribeTimeout bounds how long Subscribe waits for the first
	// eth_subscribe confirmation. Defaults to 30s.
	SubscribeTimeout time.Duration

	// Subscription holds the reconnect and keepalive settings of the log subscriber.
	Subscription SubscriberConfig

	// Logger is the structured logger for the gateway.
	Logger *slog.Logger
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.HTTPURL == "" {
		return errors.New("HTTPURL is required")
	}
	if c.ContractAddress == (common.Address{}) {
		return errors.New("ContractAddress is required")
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.WebSocketURL == "" {
		c.WebSocketURL = WebSocketURLFromHTTP(c.HTTPURL)
	}
	if c.ReceiptPollInterval == 0 {
		c.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if c.SubscribeTimeout == 0 {
		c.SubscribeTimeout = defaultSubscribeTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Subscription.Logger == nil {
		c.Subscription.Logger = c.Logger
	}
}

// WebSocketURLFromHTTP maps http(s):// to ws(s)://, the way the relay has
// always derived its subscription endpoint.
func WebSocketURLFromHTTP(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

// SubscriberConfig holds the configuration for the WebSocket log subscriber.
type SubscriberConfig struct {
	// WebSocketURL is the node WebSocket endpoint. Set by the gateway.
	WebSocketURL string

	// Address is the contract whose logs are delivered. Set by the gateway.
	Address common.Address

	// Topics is the eth_subscribe topic filter. Set by the gateway.
	Topics [][]common.Hash

	// InitialBackoff is the initial delay before reconnecting after a disconnect.
	// Defaults to 1 second if not set.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between reconnection attempts.
	// Defaults to 30 seconds if not set.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each failed attempt.
	// Defaults to 2.0 if not set.
	BackoffFactor float64

	// PingInterval is how often to send ping messages to keep the connection alive.
	// Defaults to 30 seconds if not set.
	PingInterval time.Duration

	// PongTimeout bounds the ping write.
	// Defaults to 10 seconds if not set.
	PongTimeout time.Duration

	// ReadTimeout is the maximum time to wait for a message before the
	// connection is considered dead. Request events can be rare, so pongs
	// also extend the deadline. Defaults to 90 seconds if not set.
	ReadTimeout time.Duration

	// ChannelBufferSize is the size of the log channel buffer.
	// Defaults to 100 if not set.
	ChannelBufferSize int

	// Logger is the structured logger for the subscriber.
	Logger *slog.Logger
}

// SubscriberConfigDefaults returns the default reconnect and keepalive settings.
func SubscriberConfigDefaults() SubscriberConfig {
	return SubscriberConfig{
		InitialBackoff:    defaultInitialBackoff,
		MaxBackoff:        defaultMaxBackoff,
		BackoffFactor:     defaultBackoffFactor,
		PingInterval:      defaultPingInterval,
		PongTimeout:       defaultPongTimeout,
		ReadTimeout:       defaultReadTimeout,
		ChannelBufferSize: defaultChannelBufferSize,
	}
}

// Validate checks that all required configuration fields are set.
func (c *SubscriberConfig) Validate() error {
	if c.WebSocketURL == "" {
		return errors.New("WebSocketURL is required")
	}
	if c.Address == (common.Address{}) {
		return errors.New("Address is required")
	}
	return nil
}

// applyDefaults sets default values for unset configuration fields.
func (c *SubscriberConfig) applyDefaults() {
	if c.InitialBackoff == 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.BackoffFactor == 0 {
		c.BackoffFactor = defaultBackoffFactor
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = defaultPongTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.ChannelBufferSize == 0 {
		c.ChannelBufferSize = defaultChannelBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
