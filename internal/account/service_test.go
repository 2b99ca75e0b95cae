// AngelaMos | 2026
// service_test.go

package account

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/eternal-vault/internal/auth"
	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

type memRepo struct {
	Repository
	byID   map[string]*Account
	limit  int
	create error
}

func newMemRepo(accounts ...*Account) *memRepo {
	m := &memRepo{byID: make(map[string]*Account)}
	for _, a := range accounts {
		m.byID[a.ID] = a
	}
	return m
}

func (m *memRepo) Create(_ context.Context, a *Account) error {
	if m.create != nil {
		return m.create
	}
	m.byID[a.ID] = a
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Account, error) {
	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, fmt.Errorf("get account: %w", core.ErrNotFound)
}

func (m *memRepo) UsernameTakenByOther(_ context.Context, username, id string) (bool, error) {
	for _, a := range m.byID {
		if a.Username == username && a.ID != id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) UpdateUsername(_ context.Context, a *Account) error {
	m.byID[a.ID].Username = a.Username
	return nil
}

func (m *memRepo) TopByBalance(_ context.Context, limit int) ([]Account, error) {
	m.limit = limit
	return nil, nil
}

var economy = config.EconomyConfig{SignupCoins: 100, AdminCoins: 1000}

func TestCreateAssignsStartingCoinsByRole(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, economy)

	u, err := svc.Create(context.Background(), auth.NewUser{
		Username: " alice ",
		Email:    " Alice@Example.com",
		Role:     RoleUser,
	})
	require.NoError(t, err)
	assert.Equal(t, 100, u.CoinBalance)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)

	admin, err := svc.Create(context.Background(), auth.NewUser{
		Username: "root",
		Email:    "root@example.com",
		Role:     RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, 1000, admin.CoinBalance)
	assert.Equal(t, RoleAdmin, admin.Role)
}

func TestGetProfileValidatesID(t *testing.T) {
	svc := NewService(newMemRepo(), economy)

	_, err := svc.GetProfile(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = svc.GetProfile(context.Background(), "1b4e28ba-2fa1-11d2-883f-0016d3cca427")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateProfileRejectsTakenUsername(t *testing.T) {
	repo := newMemRepo(
		&Account{ID: "a", Username: "alice"},
		&Account{ID: "b", Username: "bob"},
	)
	svc := NewService(repo, economy)

	_, err := svc.UpdateProfile(context.Background(), "a", UpdateProfileRequest{Username: "bob"})
	assert.ErrorIs(t, err, core.ErrDuplicateKey)

	a, err := svc.UpdateProfile(context.Background(), "a", UpdateProfileRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)

	a, err = svc.UpdateProfile(context.Background(), "a", UpdateProfileRequest{Username: " carol "})
	require.NoError(t, err)
	assert.Equal(t, "carol", a.Username)
	assert.Equal(t, "carol", repo.byID["a"].Username)
}

func TestLeaderboardClampsLimit(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, economy)

	_, err := svc.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, defaultLeaderboardSize, repo.limit)

	_, err = svc.Leaderboard(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, maxLeaderboardSize, repo.limit)
}
