package oracle_relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/archon-research/oracle-relay/internal/domain/entity"
	"github.com/archon-research/oracle-relay/internal/pkg/blockchain"
	"github.com/archon-research/oracle-relay/internal/ports/outbound"
)

// Registry holds the oracles registered by this process.
// It is built once by RegisterAll and never mutated afterwards, so it is
// safe to read from any goroutine without locking.
type Registry struct {
	byIdentity map[common.Address]entity.OracleRegistration
	ordered    []entity.OracleRegistration
}

func newRegistry(regs []entity.OracleRegistration) *Registry {
	r := &Registry{byIdentity: make(map[common.Address]entity.OracleRegistration, len(regs))}
	for _, reg := range regs {
		if _, ok := r.byIdentity[reg.Identity]; ok {
			continue
		}
		r.byIdentity[reg.Identity] = reg
		r.ordered = append(r.ordered, reg)
	}
	slices.SortFunc(r.ordered, func(a, b entity.OracleRegistration) int {
		return bytes.Compare(a.Identity.Bytes(), b.Identity.Bytes())
	})
	return r
}

// Len returns the number of registered oracles.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ordered)
}

// Get returns the registration of identity.
func (r *Registry) Get(identity common.Address) (entity.OracleRegistration, bool) {
	if r == nil {
		return entity.OracleRegistration{}, false
	}
	reg, ok := r.byIdentity[identity]
	return reg, ok
}

// Snapshot returns the registrations ordered by address.
func (r *Registry) Snapshot() []entity.OracleRegistration {
	if r == nil {
		return nil
	}
	return slices.Clone(r.ordered)
}

// Registrar registers node identities as oracles with the application contract.
type Registrar struct {
	gateway outbound.LedgerGateway
	metrics outbound.MetricsRecorder
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistrar creates a Registrar. metrics may be nil.
func NewRegistrar(gateway outbound.LedgerGateway, metrics outbound.MetricsRecorder, timeout time.Duration, logger *slog.Logger) (*Registrar, error) {
	if gateway == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	if timeout <= 0 {
		timeout = defaultRegisterTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		gateway: gateway,
		metrics: metrics,
		timeout: timeout,
		now:     time.Now,
		logger:  logger.With("component", "oracle-registrar"),
	}, nil
}

// RegisterAll registers every identity in order, one at a time.
//
// Failures are logged, reported in the results and otherwise skipped; they
// are never retried. An identity listed twice is attempted twice; only its
// first successful registration is kept. Zero registrations is not an error.
func (r *Registrar) RegisterAll(ctx context.Context, identities []common.Address) (*Registry, []entity.RegistrationResult) {
	results := make([]entity.RegistrationResult, 0, len(identities))
	regs := make([]entity.OracleRegistration, 0, len(identities))

	for _, identity := range identities {
		result := r.Register(ctx, identity)
		results = append(results, result)
		if result.OK() {
			regs = append(regs, *result.Registration)
		}
	}

	return newRegistry(regs), results
}

// Register sends registerOracle with the fixed stake and reads back the
// index triple the contract assigned.
func (r *Registrar) Register(ctx context.Context, identity common.Address) entity.RegistrationResult {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "oracle.register",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("oracle.identity", identity.Hex())),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result := r.register(ctx, identity)
	if r.metrics != nil {
		r.metrics.RecordRegistration(ctx, result.Kind)
	}

	if !result.OK() {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, "oracle registration failed")
		r.logger.Warn("oracle registration failed",
			"oracle", identity.Hex(),
			"error", result.Err)
		return result
	}

	reg := result.Registration
	span.SetAttributes(attribute.IntSlice("oracle.indexes", []int{int(reg.Indexes[0]), int(reg.Indexes[1]), int(reg.Indexes[2])}))
	r.logger.Info("oracle registered",
		"oracle", identity.Hex(),
		"indexes", reg.Indexes,
		"tx", reg.TxHash.Hex())
	return result
}

func (r *Registrar) register(ctx context.Context, identity common.Address) entity.RegistrationResult {
	failed := func(err error) entity.RegistrationResult {
		return entity.RegistrationResult{Identity: identity, Kind: entity.FailureRegistration, Err: err}
	}

	receipt, err := r.gateway.Send(ctx, identity, blockchain.OracleStake(), blockchain.MethodRegisterOracle)
	if err != nil {
		return failed(fmt.Errorf("registerOracle: %w", err))
	}

	out, err := r.gateway.Call(ctx, identity, blockchain.MethodGetMyIndexes)
	if err != nil {
		return failed(fmt.Errorf("getMyIndexes: %w", err))
	}
	indexes, err := blockchain.UnpackIndexTriple(out)
	if err != nil {
		return failed(fmt.Errorf("getMyIndexes: %w", err))
	}

	var txHash common.Hash
	if receipt != nil {
		txHash = receipt.TxHash
	}
	reg, err := entity.NewOracleRegistration(identity, indexes, txHash, r.now())
	if err != nil {
		return failed(err)
	}
	return entity.RegistrationResult{Identity: identity, Registration: reg}
}
