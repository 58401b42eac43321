package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"memeetf/internal/domain"
	"memeetf/internal/solana"
)

// Defaults.
const (
	DefaultPollInterval = 700 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
)

// ErrAccountNotFound is returned by VerifyAccount for a missing account.
var ErrAccountNotFound = errors.New("account not found")

// Verifier resolves transaction signatures to a terminal Status.
type Verifier struct {
	rpc      solana.RPCClient
	sub      solana.SignatureSubscriber
	interval time.Duration
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// Option configures Verifier.
type Option func(*Verifier)

// WithSubscriber enables websocket notifications; polling remains the fallback.
func WithSubscriber(sub solana.SignatureSubscriber) Option {
	return func(v *Verifier) {
		v.sub = sub
	}
}

// WithPollInterval sets the getSignatureStatuses polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(v *Verifier) {
		v.interval = d
	}
}

// WithTimeout bounds Wait when the caller's context has no earlier deadline.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		v.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(v *Verifier) {
		v.log = log
	}
}

// NewVerifier creates a Verifier backed by rpc.
func NewVerifier(rpc solana.RPCClient, opts ...Option) *Verifier {
	v := &Verifier{
		rpc:      rpc,
		interval: DefaultPollInterval,
		timeout:  DefaultTimeout,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.log = v.log.With("component", "confirm")
	return v
}

// Status performs a single status lookup.
func (v *Verifier) Status(ctx context.Context, signature string) (Status, error) {
	statuses, err := v.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return Status{State: StatePending}, fmt.Errorf("get signature status: %w", err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return Status{State: StatePending}, nil
	}
	return fromRPC(statuses[0]), nil
}

func fromRPC(s *solana.SignatureStatus) Status {
	if s.Err != nil {
		return Status{State: StateFailed, Reason: failureReason(s.Err), Slot: s.Slot}
	}
	switch s.ConfirmationStatus {
	case solana.CommitmentFinalized:
		return Status{State: StateFinalized, Slot: s.Slot}
	case solana.CommitmentConfirmed:
		return Status{State: StateConfirmed, Slot: s.Slot}
	}
	return Status{State: StatePending, Slot: s.Slot}
}

// Wait blocks until signature is confirmed, fails, or the timeout expires.
// Failure and timeout return an error wrapping domain.ErrChain.
func (v *Verifier) Wait(ctx context.Context, signature string) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	var (
		status Status
		err    error
	)
	if v.sub != nil {
		status, err = v.waitSubscription(ctx, signature)
		if err != nil && ctx.Err() == nil {
			v.log.Warnw("websocket confirmation failed, polling", "signature", signature, "error", err)
			status, err = v.poll(ctx, signature)
		}
	} else {
		status, err = v.poll(ctx, signature)
	}

	if err != nil {
		return status, fmt.Errorf("%w: %s not confirmed: %v", domain.ErrChain, signature, err)
	}
	if status.State == StateFailed {
		return status, fmt.Errorf("%w: %s failed: %s", domain.ErrChain, signature, status.Reason)
	}
	return status, nil
}

// poll queries getSignatureStatuses every interval. Lookup errors are retried.
func (v *Verifier) poll(ctx context.Context, signature string) (Status, error) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		status, err := v.Status(ctx, signature)
		if err == nil && status.Done() {
			return status, nil
		}
		if err != nil {
			v.log.Debugw("status lookup failed", "signature", signature, "error", err)
		}

		select {
		case <-ctx.Done():
			return Status{State: StatePending}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (v *Verifier) waitSubscription(ctx context.Context, signature string) (Status, error) {
	ch, err := v.sub.SubscribeSignature(ctx, signature)
	if err != nil {
		return Status{State: StatePending}, fmt.Errorf("subscribe: %w", err)
	}

	// The signature may have landed before the subscription was registered.
	if status, err := v.Status(ctx, signature); err == nil && status.Done() {
		return status, nil
	}

	select {
	case <-ctx.Done():
		return Status{State: StatePending}, ctx.Err()
	case n, ok := <-ch:
		if !ok {
			return Status{State: StatePending}, errors.New("subscription closed")
		}
		if n.Err != nil {
			return Status{State: StateFailed, Reason: failureReason(n.Err), Slot: n.Slot}, nil
		}
		return Status{State: StateConfirmed, Slot: n.Slot}, nil
	}
}

// VerifyAccount checks that address exists and, when owner is set, is owned by it.
func (v *Verifier) VerifyAccount(ctx context.Context, address, owner string) (*solana.AccountInfo, error) {
	info, err := v.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: get account %s: %v", domain.ErrChain, address, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrChain, address, ErrAccountNotFound)
	}
	if owner != "" && info.Owner != owner {
		return nil, fmt.Errorf("%w: account %s owned by %s, expected %s", domain.ErrChain, address, info.Owner, owner)
	}
	return info, nil
}
