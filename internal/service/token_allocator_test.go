package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/pre-enrollment-api/pkg/config"
	appErrors "github.com/noah-isme/pre-enrollment-api/pkg/errors"
)

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]bool
	max    int
}

func newFakeTokenStore(existing ...string) *fakeTokenStore {
	s := &fakeTokenStore{tokens: map[string]bool{}}
	for _, t := range existing {
		s.tokens[t] = true
	}
	return s
}

func (s *fakeTokenStore) MaxTokenNumber(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max, nil
}

func (s *fakeTokenStore) TokenExists(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[token], nil
}

// insert mimics the storage layer's unique constraint: the first writer of a
// token wins, later writers get a conflict.
func (s *fakeTokenStore) insert(tokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		if s.tokens[t] {
			return appErrors.ErrTokenConflict
		}
	}
	for _, t := range tokens {
		s.tokens[t] = true
		if n, err := parseTokenNumber(t); err == nil && n > s.max {
			s.max = n
		}
	}
	return nil
}

func parseTokenNumber(token string) (int, error) {
	if len(token) != 6 || token[0] != 'R' {
		return 0, errors.New("malformed")
	}
	n := 0
	for _, c := range token[1:] {
		if c < '0' || c > '9' {
			return 0, errors.New("malformed")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

func testAllocatorConfig() config.AllocatorConfig {
	return config.AllocatorConfig{MaxAttempts: 3, ProbeLimit: 20, BackoffBase: 0}
}

func TestFormatToken(t *testing.T) {
	assert.Equal(t, "R00001", FormatToken(1))
	assert.Equal(t, "R00042", FormatToken(42))
	assert.Equal(t, "R12345", FormatToken(12345))
}

func TestTokenAllocatorAllocateFirst(t *testing.T) {
	store := newFakeTokenStore()
	alloc := NewTokenAllocator(store, testAllocatorConfig(), zap.NewNop())

	token, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "R00001", token)
}

func TestTokenAllocatorContinuesAboveMax(t *testing.T) {
	store := newFakeTokenStore("R00001", "R00002", "R00007")
	store.max = 7
	alloc := NewTokenAllocator(store, testAllocatorConfig(), zap.NewNop())

	token, err := alloc.Allocate(context.Background())
	require.NoError(t, err)
	// Gaps below the max are never reused.
	assert.Equal(t, "R00008", token)
}

func TestTokenAllocatorSkipsTakenCandidates(t *testing.T) {
	// Max scan sees 3 but 4 and 5 are already taken by an out-of-band write.
	store := newFakeTokenStore("R00004", "R00005")
	store.max = 3
	alloc := NewTokenAllocator(store, testAllocatorConfig(), zap.NewNop())

	tokens, err := alloc.AllocateBatch(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"R00006", "R00007"}, tokens)
}

func TestTokenAllocatorBatchIsDistinct(t *testing.T) {
	store := newFakeTokenStore()
	alloc := NewTokenAllocator(store, testAllocatorConfig(), zap.NewNop())

	tokens, err := alloc.AllocateBatch(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, tokens, 4)
	seen := map[string]bool{}
	for _, token := range tokens {
		assert.Regexp(t, `^R\d{5}$`, token)
		assert.False(t, seen[token], "token %s repeated in batch", token)
		seen[token] = true
	}
}

func TestTokenAllocatorExhaustsProbeLimit(t *testing.T) {
	store := newFakeTokenStore()
	for i := 1; i <= 30; i++ {
		store.tokens[FormatToken(i)] = true
	}
	// Max deliberately stale at 0 so every probe lands on a taken token.
	cfg := config.AllocatorConfig{MaxAttempts: 3, ProbeLimit: 10}
	alloc := NewTokenAllocator(store, cfg, zap.NewNop())

	_, err := alloc.AllocateBatch(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAllocatorExhausted)
}

func TestTokenAllocatorRejectsNonPositiveBatch(t *testing.T) {
	alloc := NewTokenAllocator(newFakeTokenStore(), testAllocatorConfig(), zap.NewNop())
	_, err := alloc.AllocateBatch(context.Background(), 0)
	require.Error(t, err)
}

func TestTokenAllocatorBackoffHonoursContext(t *testing.T) {
	cfg := config.AllocatorConfig{MaxAttempts: 3, ProbeLimit: 10, BackoffBase: time.Hour}
	alloc := NewTokenAllocator(newFakeTokenStore(), cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := alloc.Backoff(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

// Concurrent submitters race on allocation; the insert arbiter lets exactly
// one writer win each token and losers retry. Every winner must end up with a
// unique token.
func TestTokenAllocatorConcurrentUniqueness(t *testing.T) {
	store := newFakeTokenStore()
	cfg := config.AllocatorConfig{MaxAttempts: 20, ProbeLimit: 200}
	alloc := NewTokenAllocator(store, cfg, zap.NewNop())

	const workers = 16
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 1; attempt <= alloc.MaxAttempts(); attempt++ {
				tokens, err := alloc.AllocateBatch(context.Background(), 1)
				if err != nil {
					return
				}
				if err := store.insert(tokens); err == nil {
					results <- tokens[0]
					return
				}
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	count := 0
	for token := range results {
		require.False(t, seen[token], "token %s issued twice", token)
		seen[token] = true
		count++
	}
	assert.Equal(t, workers, count, "every worker should eventually win a token")
}
