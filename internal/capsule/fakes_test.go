// AngelaMos | 2026
// fakes_test.go

package capsule

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

var testEconomy = config.EconomyConfig{
	SignupCoins:        100,
	AdminCoins:         1000,
	PrivateCapsuleFee:  20,
	SharedAccessFee:    25,
	ViewRewardInterval: 100,
	ViewRewardCoins:    10,
}

type memAccounts struct {
	mu       sync.Mutex
	accounts map[string]*account.Account
	seq      int
	failCred error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{accounts: make(map[string]*account.Account)}
}

func (m *memAccounts) add(email string, balance int) *account.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	a := &account.Account{
		ID:          uuid.New().String(),
		Username:    fmt.Sprintf("user%d", m.seq),
		Email:       email,
		Role:        account.RoleUser,
		CoinBalance: balance,
		CreatedAt:   time.Unix(int64(m.seq), 0),
	}
	m.accounts[a.ID] = a
	return a
}

func (m *memAccounts) balance(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[id].CoinBalance
}

func (m *memAccounts) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *account.Account
	for _, a := range m.accounts {
		if a.Email == email && (found == nil || a.CreatedAt.Before(found.CreatedAt)) {
			found = a
		}
	}
	if found == nil {
		return nil, fmt.Errorf("get account by email: %w", core.ErrNotFound)
	}
	cp := *found
	return &cp, nil
}

func (m *memAccounts) GetByID(_ context.Context, id string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Credit(_ context.Context, id string, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCred != nil {
		return 0, m.failCred
	}
	a, ok := m.accounts[id]
	if !ok {
		return 0, fmt.Errorf("credit: %w", core.ErrNotFound)
	}
	a.CoinBalance += amount
	return a.CoinBalance, nil
}

// debit must be called with m.mu held.
func (m *memAccounts) debit(id string, amount int) error {
	a, ok := m.accounts[id]
	if !ok {
		return fmt.Errorf("debit: %w", core.ErrNotFound)
	}
	if a.CoinBalance < amount {
		return fmt.Errorf("debit: %w", core.ErrInsufficientFunds)
	}
	a.CoinBalance -= amount
	return nil
}

// memCapsules mimics the transactional Postgres store: a failed write never
// leaves a debit behind.
type memCapsules struct {
	mu         sync.Mutex
	accounts   *memAccounts
	capsules   map[string]*Capsule
	order      []string
	collisions int
	createErr  error
	creates    int
}

func newMemCapsules(accounts *memAccounts) *memCapsules {
	return &memCapsules{
		accounts: accounts,
		capsules: make(map[string]*Capsule),
	}
}

func clone(c *Capsule) *Capsule {
	cp := *c
	cp.Media = slices.Clone(c.Media)
	cp.Links = slices.Clone(c.Links)
	cp.AllowedEmails = slices.Clone(c.AllowedEmails)
	if c.UniqueCode != nil {
		code := *c.UniqueCode
		cp.UniqueCode = &code
	}
	return &cp
}

func (m *memCapsules) get(id string) *Capsule {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.capsules[id]
	if !ok {
		return nil
	}
	return clone(c)
}

func (m *memCapsules) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.capsules)
}

func (m *memCapsules) Create(_ context.Context, c *Capsule, fee int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	if m.createErr != nil {
		return m.createErr
	}
	if c.UniqueCode != nil && m.collisions > 0 {
		m.collisions--
		return fmt.Errorf("create capsule: %w", core.ErrDuplicateKey)
	}

	m.accounts.mu.Lock()
	defer m.accounts.mu.Unlock()
	if fee > 0 {
		if err := m.accounts.debit(c.CreatorID, fee); err != nil {
			return fmt.Errorf("create capsule: %w", err)
		}
	}

	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.capsules[c.ID] = clone(c)
	m.order = append(m.order, c.ID)
	return nil
}

func (m *memCapsules) GetByID(_ context.Context, id string) (*Capsule, error) {
	if c := m.get(id); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("get capsule: %w", core.ErrNotFound)
}

func (m *memCapsules) find(match func(*Capsule) bool) (*Capsule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if c, ok := m.capsules[id]; ok && match(c) {
			return clone(c), nil
		}
	}
	return nil, fmt.Errorf("find capsule: %w", core.ErrNotFound)
}

func (m *memCapsules) GetSharedByCode(_ context.Context, code string) (*Capsule, error) {
	return m.find(func(c *Capsule) bool {
		return c.IsSharedPrivate() && c.Code() == code
	})
}

func (m *memCapsules) GetAssignedTo(_ context.Context, email string) (*Capsule, error) {
	return m.find(func(c *Capsule) bool {
		return c.IsDirectAssignment() && c.Allows(email)
	})
}

func (m *memCapsules) Public(_ context.Context) iter.Seq2[*Capsule, error] {
	return func(yield func(*Capsule, error) bool) {
		m.mu.Lock()
		ids := slices.Clone(m.order)
		m.mu.Unlock()

		for _, id := range ids {
			c := m.get(id)
			if c == nil || !c.IsPublic() {
				continue
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

func (m *memCapsules) IncrementViews(_ context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.capsules[id]
	if !ok {
		return 0, fmt.Errorf("increment views: %w", core.ErrNotFound)
	}
	c.ViewCount++
	return c.ViewCount, nil
}

func (m *memCapsules) GrantAccess(
	_ context.Context,
	capsuleID, accountID, email string,
	fee int,
) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.capsules[capsuleID]
	if !ok {
		return false, fmt.Errorf("grant access: %w", core.ErrNotFound)
	}
	if c.Allows(email) {
		return false, nil
	}

	m.accounts.mu.Lock()
	defer m.accounts.mu.Unlock()
	if err := m.accounts.debit(accountID, fee); err != nil {
		return false, fmt.Errorf("grant access: %w", err)
	}
	c.AllowedEmails = append(c.AllowedEmails, email)
	return true, nil
}

func (m *memCapsules) Update(_ context.Context, c *Capsule, addEmails []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.capsules[c.ID]
	if !ok {
		return fmt.Errorf("update capsule: %w", core.ErrNotFound)
	}
	updated := clone(c)
	updated.AllowedEmails = append(slices.Clone(stored.AllowedEmails), addEmails...)
	updated.ViewCount = stored.ViewCount
	m.capsules[c.ID] = updated
	return nil
}

func (m *memCapsules) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.capsules[id]; !ok {
		return fmt.Errorf("delete capsule: %w", core.ErrNotFound)
	}
	delete(m.capsules, id)
	return nil
}

func (m *memCapsules) ListByCreator(_ context.Context, creatorID string) ([]Capsule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Capsule
	for _, id := range m.order {
		if c, ok := m.capsules[id]; ok && c.CreatorID == creatorID {
			out = append(out, *clone(c))
		}
	}
	return out, nil
}

func (m *memCapsules) UnlockingOn(_ context.Context, day time.Time) ([]Capsule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Capsule
	for _, id := range m.order {
		if c, ok := m.capsules[id]; ok && c.UnlockDate.Equal(day) {
			out = append(out, *clone(c))
		}
	}
	return out, nil
}

func (m *memCapsules) Counts(_ context.Context, today time.Time) (Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts Counts
	for _, c := range m.capsules {
		counts.Total++
		switch {
		case c.IsPublic():
			counts.Public++
		case c.IsShared:
			counts.Private++
			counts.Shared++
		default:
			counts.Private++
		}
		if !c.SealedOn(today) {
			counts.Unlocked++
		}
	}
	return counts, nil
}

// seedViews sets a public capsule's counter directly.
func (m *memCapsules) seedViews(id string, views int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capsules[id].ViewCount = views
}

type recordingQueue struct {
	mu      sync.Mutex
	rewards []Reward
	reject  bool
}

func (q *recordingQueue) Enqueue(r Reward) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.rewards = append(q.rewards, r)
	return true
}

func (q *recordingQueue) received() []Reward {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.rewards)
}
