// AngelaMos | 2026
// rewards.go

package capsule

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reward is a pending view-milestone credit for a capsule creator.
type Reward struct {
	CapsuleID string
	CreatorID string
	Views     int
	Amount    int
}

// RewardQueue accepts rewards without blocking. Enqueue reports false when
// the reward was dropped.
type RewardQueue interface {
	Enqueue(r Reward) bool
}

type discardRewards struct{}

func (discardRewards) Enqueue(Reward) bool { return true }

type Crediter interface {
	Credit(ctx context.Context, id string, amount int) (int, error)
}

type RewardMetrics interface {
	RewardCredited(amount int)
	RewardFailed()
}

type RewardDispatcherConfig struct {
	Accounts      Crediter
	Workers       int
	QueueSize     int
	CreditTimeout time.Duration
	Metrics       RewardMetrics
	Logger        *slog.Logger
}

// RewardDispatcher credits view rewards off the request path. Each reward
// is attempted once; failures are logged and counted, never retried.
type RewardDispatcher struct {
	accounts Crediter
	queue    chan Reward
	workers  int
	timeout  time.Duration
	metrics  RewardMetrics
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	done    chan struct{}
	base    context.Context
	wg      sync.WaitGroup
}

func NewRewardDispatcher(cfg RewardDispatcherConfig) *RewardDispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	if cfg.CreditTimeout <= 0 {
		cfg.CreditTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &RewardDispatcher{
		accounts: cfg.Accounts,
		queue:    make(chan Reward, cfg.QueueSize),
		workers:  cfg.Workers,
		timeout:  cfg.CreditTimeout,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "rewards"),
		done:     make(chan struct{}),
	}
}

func (d *RewardDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.base = context.WithoutCancel(ctx)

	for range d.workers {
		d.wg.Add(1)
		go d.work()
	}

	d.logger.Info("reward dispatcher started",
		"workers", d.workers,
		"queue_size", cap(d.queue),
	)
}

// Stop refuses new rewards, lets the workers drain what is queued and waits
// for them or for ctx.
func (d *RewardDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	close(d.done)
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		d.wg.Wait()
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue never blocks. The done check and the send happen under the same
// lock Stop closes done with, so an accepted reward is always seen by the
// draining workers.
func (d *RewardDispatcher) Enqueue(r Reward) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case <-d.done:
		return false
	default:
	}

	select {
	case d.queue <- r:
		return true
	default:
		return false
	}
}

func (d *RewardDispatcher) work() {
	defer d.wg.Done()

	for {
		select {
		case r := <-d.queue:
			d.credit(r)
		case <-d.done:
			for {
				select {
				case r := <-d.queue:
					d.credit(r)
				default:
					return
				}
			}
		}
	}
}

func (d *RewardDispatcher) credit(r Reward) {
	ctx, cancel := context.WithTimeout(d.base, d.timeout)
	defer cancel()

	balance, err := d.accounts.Credit(ctx, r.CreatorID, r.Amount)
	if err != nil {
		if d.metrics != nil {
			d.metrics.RewardFailed()
		}
		d.logger.Error("view reward credit failed",
			"capsule_id", r.CapsuleID,
			"creator_id", r.CreatorID,
			"views", r.Views,
			"amount", r.Amount,
			"error", err,
		)
		return
	}

	if d.metrics != nil {
		d.metrics.RewardCredited(r.Amount)
	}
	d.logger.Info("view reward credited",
		"capsule_id", r.CapsuleID,
		"creator_id", r.CreatorID,
		"views", r.Views,
		"amount", r.Amount,
		"balance", balance,
	)
}
