// AngelaMos | 2026
// rewards_test.go

package capsule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	mu       sync.Mutex
	credited int
	failed   int
}

func (m *countingMetrics) RewardCredited(amount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credited += amount
}

func (m *countingMetrics) RewardFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
}

func (m *countingMetrics) snapshot() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.credited, m.failed
}

func TestRewardDispatcherCreditsQueuedRewards(t *testing.T) {
	accounts := newMemAccounts()
	creator := accounts.add("a@example.com", 80)
	metrics := &countingMetrics{}

	d := NewRewardDispatcher(RewardDispatcherConfig{
		Accounts: accounts,
		Workers:  2,
		Metrics:  metrics,
	})
	d.Start(context.Background())

	require.True(t, d.Enqueue(Reward{CreatorID: creator.ID, Views: 100, Amount: 10}))
	require.True(t, d.Enqueue(Reward{CreatorID: creator.ID, Views: 200, Amount: 10}))

	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, 100, accounts.balance(creator.ID))
	credited, failed := metrics.snapshot()
	assert.Equal(t, 20, credited)
	assert.Zero(t, failed)
}

func TestRewardDispatcherDoesNotRetryFailures(t *testing.T) {
	accounts := newMemAccounts()
	creator := accounts.add("a@example.com", 80)
	accounts.failCred = errors.New("database is down")
	metrics := &countingMetrics{}

	d := NewRewardDispatcher(RewardDispatcherConfig{
		Accounts: accounts,
		Metrics:  metrics,
	})
	d.Start(context.Background())

	require.True(t, d.Enqueue(Reward{CreatorID: creator.ID, Views: 100, Amount: 10}))
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, 80, accounts.balance(creator.ID))
	_, failed := metrics.snapshot()
	assert.Equal(t, 1, failed)
}

func TestRewardDispatcherDropsWhenFull(t *testing.T) {
	d := NewRewardDispatcher(RewardDispatcherConfig{
		Accounts:  newMemAccounts(),
		QueueSize: 1,
	})

	assert.True(t, d.Enqueue(Reward{Amount: 10}))
	assert.False(t, d.Enqueue(Reward{Amount: 10}), "queue is full and no worker is draining")
}

func TestRewardDispatcherCreditsEveryAcceptedRewardDuringStop(t *testing.T) {
	accounts := newMemAccounts()
	creator := accounts.add("a@example.com", 0)

	for range 20 {
		before := accounts.balance(creator.ID)
		d := NewRewardDispatcher(RewardDispatcherConfig{
			Accounts:  accounts,
			Workers:   2,
			QueueSize: 1024,
		})
		d.Start(context.Background())

		var (
			wg       sync.WaitGroup
			accepted int
			mu       sync.Mutex
		)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 200 {
					if d.Enqueue(Reward{CreatorID: creator.ID, Amount: 1}) {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}

		require.NoError(t, d.Stop(context.Background()))
		wg.Wait()

		assert.Equal(t, before+accepted, accounts.balance(creator.ID))
	}
}

func TestRewardDispatcherRejectsAfterStop(t *testing.T) {
	d := NewRewardDispatcher(RewardDispatcherConfig{Accounts: newMemAccounts()})
	d.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	assert.False(t, d.Enqueue(Reward{Amount: 10}))
	assert.NoError(t, d.Stop(ctx), "stopping twice is a no-op")
}

func TestRewardDispatcherOutlivesStartContext(t *testing.T) {
	accounts := newMemAccounts()
	creator := accounts.add("a@example.com", 0)

	ctx, cancel := context.WithCancel(context.Background())
	d := NewRewardDispatcher(RewardDispatcherConfig{Accounts: accounts})
	d.Start(ctx)
	cancel()

	require.True(t, d.Enqueue(Reward{CreatorID: creator.ID, Amount: 10}))
	require.NoError(t, d.Stop(context.Background()))

	assert.Equal(t, 10, accounts.balance(creator.ID))
}
