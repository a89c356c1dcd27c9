package sweeper_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmcts/cpp-context-notification/pkg/sweeper"
)

type fakeService struct {
	mu           sync.Mutex
	expired      []string
	listErr      error
	failing      map[string]bool
	unsubscribed []string
	swept        chan struct{}
}

func (f *fakeService) FindExpiredSubscriptionIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.swept != nil {
		select {
		case f.swept <- struct{}{}:
		default:
		}
	}
	return f.expired, f.listErr
}

func (f *fakeService) Unsubscribe(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[subscriptionID] {
		return errors.New("append conflict")
	}
	f.unsubscribed = append(f.unsubscribed, subscriptionID)
	return nil
}

func (f *fakeService) unsubscribedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.unsubscribed...)
}

func TestSweepOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("cancels every expired subscription", func(t *testing.T) {
		service := &fakeService{expired: []string{"s1", "s2", "s3"}}
		s := sweeper.NewSubscriptionSweeper(service)

		s.SweepOnce(ctx)
		assert.Equal(t, []string{"s1", "s2", "s3"}, service.unsubscribedIDs())
	})

	t.Run("one failed unsubscribe does not block the rest", func(t *testing.T) {
		service := &fakeService{
			expired: []string{"s1", "s2", "s3"},
			failing: map[string]bool{"s2": true},
		}
		s := sweeper.NewSubscriptionSweeper(service)

		s.SweepOnce(ctx)
		assert.Equal(t, []string{"s1", "s3"}, service.unsubscribedIDs())
	})

	t.Run("no expired subscriptions is a no-op", func(t *testing.T) {
		service := &fakeService{}
		s := sweeper.NewSubscriptionSweeper(service)

		s.SweepOnce(ctx)
		assert.Empty(t, service.unsubscribedIDs())
	})

	t.Run("listing failure aborts the sweep", func(t *testing.T) {
		service := &fakeService{
			expired: []string{"s1"},
			listErr: errors.New("store unavailable"),
		}
		s := sweeper.NewSubscriptionSweeper(service)

		s.SweepOnce(ctx)
		assert.Empty(t, service.unsubscribedIDs())
	})
}

func TestSweeperLifecycle(t *testing.T) {
	service := &fakeService{swept: make(chan struct{}, 1)}
	s := sweeper.NewSubscriptionSweeper(service,
		sweeper.WithInitialDelay(time.Millisecond),
		sweeper.WithInterval(time.Millisecond),
	)

	require.NoError(t, s.Start(context.Background()))

	select {
	case <-service.swept:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
}

type fakeCache struct {
	mu      sync.Mutex
	cutoff  time.Time
	batch   int
	deleted int64
	err     error
}

func (f *fakeCache) DeleteCreatedBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	f.batch = batchSize
	return f.deleted, f.err
}

func TestCleanOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes entries older than the ttl", func(t *testing.T) {
		cache := &fakeCache{deleted: 42}
		c := sweeper.NewEventCacheCleaner(cache,
			sweeper.WithTimeToLive(time.Hour),
			sweeper.WithBatchSize(500),
		)

		c.CleanOnce(ctx)

		assert.WithinDuration(t, time.Now().Add(-time.Hour), cache.cutoff, 5*time.Second)
		assert.Equal(t, 500, cache.batch)
	})

	t.Run("delete failure is logged, not fatal", func(t *testing.T) {
		cache := &fakeCache{err: errors.New("store unavailable")}
		c := sweeper.NewEventCacheCleaner(cache)

		c.CleanOnce(ctx)
	})
}

func TestCleanerLifecycle(t *testing.T) {
	cache := &fakeCache{}
	c := sweeper.NewEventCacheCleaner(cache, sweeper.WithCleanInterval(time.Millisecond))

	require.NoError(t, c.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(stopCtx))

	cache.mu.Lock()
	defer cache.mu.Unlock()
	assert.False(t, cache.cutoff.IsZero())
}
