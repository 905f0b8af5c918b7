package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

// TokenStore exposes the persisted token namespace to the allocator. Both
// reads must be answered by the storage layer, never in-process state: the
// allocator is stateless so multiple instances agree without shared memory.
type TokenStore interface {
	MaxTokenNumber(ctx context.Context) (int, error)
	TokenExists(ctx context.Context, token string) (bool, error)
}

// TokenAllocator proposes unique sequential enrollment tokens (R00001,
// R00002, ...). Allocation is scan-max plus probe-forward: deleted rows leave
// gaps that are never reused, and out-of-order creation cannot hand out a
// number behind the true maximum. The caller inserts the proposed token and
// retries the whole allocation on ErrTokenConflict; the storage layer's
// uniqueness constraint is the arbiter under concurrency.
type TokenAllocator struct {
	store  TokenStore
	cfg    config.AllocatorConfig
	logger *zap.Logger
}

// NewTokenAllocator constructs an allocator with the given retry policy.
func NewTokenAllocator(store TokenStore, cfg config.AllocatorConfig, logger *zap.Logger) *TokenAllocator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.ProbeLimit <= 0 {
		cfg.ProbeLimit = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenAllocator{store: store, cfg: cfg, logger: logger}
}

// FormatToken renders a token number in the canonical R-prefixed,
// zero-padded form.
func FormatToken(n int) string {
	return fmt.Sprintf("R%05d", n)
}

// Allocate proposes the next free token.
func (a *TokenAllocator) Allocate(ctx context.Context) (string, error) {
	tokens, err := a.AllocateBatch(ctx, 1)
	if err != nil {
		return "", err
	}
	return tokens[0], nil
}

// AllocateBatch proposes n distinct free tokens for one submission. The
// tokens are contiguous candidates above the current maximum, skipping any
// number that is already taken.
func (a *TokenAllocator) AllocateBatch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "token batch size must be positive")
	}

	max, err := a.store.MaxTokenNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan token namespace: %w", err)
	}

	tokens := make([]string, 0, n)
	candidate := max
	for probes := 0; len(tokens) < n; probes++ {
		if probes >= a.cfg.ProbeLimit {
			a.logger.Warn("token probe limit reached",
				zap.Int("probe_limit", a.cfg.ProbeLimit),
				zap.Int("allocated", len(tokens)))
			return nil, appErrors.ErrAllocatorExhausted
		}
		candidate++
		token := FormatToken(candidate)
		exists, err := a.store.TokenExists(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("probe token %s: %w", token, err)
		}
		if exists {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// MaxAttempts is the bound on insert retries after token conflicts.
func (a *TokenAllocator) MaxAttempts() int {
	return a.cfg.MaxAttempts
}

// Backoff waits before the numbered retry attempt. The delay grows linearly
// with the attempt count and respects context cancellation.
func (a *TokenAllocator) Backoff(ctx context.Context, attempt int) error {
	delay := a.cfg.BackoffBase * time.Duration(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
