// Package oracle_relay registers the node's accounts as flight status oracles
// and answers every OracleRequest the application contract emits.
//
// Startup registers each identity once, then subscribes to OracleRequest.
// Each request is fanned out to every registered oracle and each of its
// three indexes; every attempt is an independent fire-and-forget transaction
// carrying a random status code. The contract aggregates the responses.
package oracle_relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain/abis"
	"github.com/archon-research/oracle-relay/internal/ports/inbound"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

const (
	// tracerName is the instrumentation name for this service.
	tracerName = "github.com/archon-research/oracle-relay/internal/services/oracle_relay"

	defaultSubmitTimeout   = 2 * time.Minute
	defaultRegisterTimeout = 2 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

var (
	_ inbound.HealthChecker = (*RelayService)(nil)
	_ inbound.RelayStatus   = (*RelayService)(nil)
)

// Config holds configuration for the relay service.
type Config struct {
	// SubmitTimeout bounds one response attempt, broadcast and receipt wait included.
	SubmitTimeout time.Duration

	// RegisterTimeout bounds one oracle registration.
	RegisterTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for in-flight attempts.
	ShutdownTimeout time.Duration

	// SubmitRateLimit caps response sends per second. 0 disables it.
	SubmitRateLimit float64

	// SubmitBurst is the rate limiter bucket size.
	SubmitBurst int

	// StatusSource draws response status codes. Defaults to uniform random.
	StatusSource StatusSource

	Logger *slog.Logger
}

// ConfigDefaults returns the default relay configuration.
func ConfigDefaults() Config {
	return Config{
		SubmitTimeout:   defaultSubmitTimeout,
		RegisterTimeout: defaultRegisterTimeout,
		ShutdownTimeout: defaultShutdownTimeout,
		Logger:          slog.Default(),
	}
}

// RelayService owns the oracle registry and the request subscription.
type RelayService struct {
	config  Config
	gateway outbound.LedgerGateway
	metrics outbound.MetricsRecorder
	sinks   []outbound.OutcomeSink

	decoder   *blockchain.RequestDecoder
	registrar *Registrar
	submitter *Submitter

	mu         sync.Mutex
	registry   atomic.Pointer[Registry]
	dispatcher *Dispatcher
	sub        outbound.EventSubscription
	cancel     context.CancelFunc
	cancelSend context.CancelFunc
	loopDone   chan struct{}
	stopped    bool

	ready   atomic.Bool
	running atomic.Bool
	logger  *slog.Logger
}

// NewRelayService creates the relay. metrics may be nil; sinks receive every
// submission outcome.
func NewRelayService(config Config, gateway outbound.LedgerGateway, metrics outbound.MetricsRecorder, sinks ...outbound.OutcomeSink) (*RelayService, error) {
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}

	defaults := ConfigDefaults()
	if config.SubmitTimeout == 0 {
		config.SubmitTimeout = defaults.SubmitTimeout
	}
	if config.RegisterTimeout == 0 {
		config.RegisterTimeout = defaults.RegisterTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if config.StatusSource == nil {
		config.StatusSource = &RandomStatusSource{}
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	contractABI, err := abis.GetFlightSuretyAppABI()
	if err != nil {
		return nil, fmt.Errorf("loading FlightSuretyApp ABI: %w", err)
	}
	decoder, err := blockchain.NewRequestDecoder(contractABI)
	if err != nil {
		return nil, fmt.Errorf("creating request decoder: %w", err)
	}

	registrar, err := NewRegistrar(gateway, metrics, config.RegisterTimeout, config.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating registrar: %w", err)
	}

	submitter, err := NewSubmitter(SubmitterConfig{
		Timeout:   config.SubmitTimeout,
		RateLimit: config.SubmitRateLimit,
		Burst:     config.SubmitBurst,
		Logger:    config.Logger,
	}, gateway, metrics, sinks...)
	if err != nil {
		return nil, fmt.Errorf("creating submitter: %w", err)
	}

	return &RelayService{
		config:    config,
		gateway:   gateway,
		metrics:   metrics,
		sinks:     sinks,
		decoder:   decoder,
		registrar: registrar,
		submitter: submitter,
		logger:    config.Logger.With("component", "oracle-relay"),
	}, nil
}

// Start registers the node's identities, subscribes to OracleRequest and
// starts the dispatch loop. It fails only if the identities cannot be listed
// or the subscription cannot be opened. Registration stakes ether, so it runs
// once per process: a Start retried after a failed subscription reuses the
// registry built by the first attempt.
func (s *RelayService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("relay already started")
	}

	registry, err := s.register(ctx)
	if err != nil {
		return err
	}

	dispatcher, err := NewDispatcher(registry, s.decoder, s.submitter, s.config.StatusSource, s.metrics, s.config.Logger)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	sub, err := s.gateway.Subscribe(ctx, blockchain.EventOracleRequest)
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", blockchain.EventOracleRequest, err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	sendCtx, cancelSend := context.WithCancel(context.WithoutCancel(ctx))

	s.dispatcher = dispatcher
	s.sub = sub
	s.cancel = cancel
	s.cancelSend = cancelSend
	s.loopDone = make(chan struct{})

	s.running.Store(true)
	go func() {
		defer close(s.loopDone)
		defer s.running.Store(false)
		dispatcher.Run(loopCtx, sendCtx, sub)
	}()

	s.ready.Store(true)
	s.logger.Info("oracle relay started", "oracles", registry.Len())
	return nil
}

// register builds the registry on first use and returns the stored one after.
func (s *RelayService) register(ctx context.Context) (*Registry, error) {
	if registry := s.registry.Load(); registry != nil {
		s.logger.Info("reusing oracle registrations", "registered", registry.Len())
		return registry, nil
	}

	identities, err := s.gateway.ListIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	s.logger.Info("registering oracles", "identities", len(identities))

	registry, results := s.registrar.RegisterAll(ctx, identities)
	s.registry.Store(registry)

	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	s.logger.Info("oracle registration finished",
		"registered", registry.Len(),
		"failed", failed)
	if registry.Len() == 0 {
		s.logger.Warn("no oracles registered, requests will not be answered")
	}

	return registry, nil
}

// Stop unsubscribes, ends the dispatch loop and waits up to ShutdownTimeout
// for in-flight attempts. Attempts still running after that are cancelled;
// transactions already broadcast stay broadcast.
func (s *RelayService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil || s.stopped {
		return nil
	}
	s.stopped = true
	s.ready.Store(false)

	s.sub.Unsubscribe()
	s.cancel()
	<-s.loopDone

	waitCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.dispatcher.Wait(waitCtx); err != nil {
		s.logger.Warn("in-flight submissions did not finish before shutdown timeout",
			"timeout", s.config.ShutdownTimeout)
	}
	s.cancelSend()

	s.logger.Info("oracle relay stopped")
	return nil
}

// IsReady reports whether registration finished and the subscription is open.
func (s *RelayService) IsReady() bool {
	return s.ready.Load() && s.running.Load()
}

// IsHealthy reports whether the dispatch loop is running.
func (s *RelayService) IsHealthy() bool {
	return s.running.Load()
}

// Registry returns the oracle registry, or nil before Start.
func (s *RelayService) Registry() *Registry {
	return s.registry.Load()
}

// RegisteredOracles implements inbound.RelayStatus.
func (s *RelayService) RegisteredOracles() int {
	return s.Registry().Len()
}
