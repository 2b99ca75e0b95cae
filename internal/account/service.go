// AngelaMos | 2026
// service.go

package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/carterperez-dev/eternal-vault/internal/auth"
	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

type Service struct {
	repo    Repository
	economy config.EconomyConfig
}

func NewService(repo Repository, economy config.EconomyConfig) *Service {
	return &Service{repo: repo, economy: economy}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) GetByID(
	ctx context.Context,
	id string,
) (*auth.UserInfo, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserInfo(a), nil
}

func (s *Service) GetByEmail(
	ctx context.Context,
	email string,
) (*auth.UserInfo, error) {
	a, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return toUserInfo(a), nil
}

// Create opens an account with the starting balance for its role.
func (s *Service) Create(
	ctx context.Context,
	nu auth.NewUser,
) (*auth.UserInfo, error) {
	a := &Account{
		ID:           uuid.New().String(),
		Username:     strings.TrimSpace(nu.Username),
		Email:        NormalizeEmail(nu.Email),
		PasswordHash: nu.PasswordHash,
		Role:         RoleUser,
		CoinBalance:  s.economy.SignupCoins,
	}
	if nu.Role == RoleAdmin {
		a.Role = RoleAdmin
		a.CoinBalance = s.economy.AdminCoins
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	return toUserInfo(a), nil
}

func (s *Service) UpdatePassword(
	ctx context.Context,
	userID, passwordHash string,
) error {
	return s.repo.UpdatePassword(ctx, userID, passwordHash)
}

func (s *Service) CredentialsTaken(
	ctx context.Context,
	email, username string,
) (bool, error) {
	return s.repo.CredentialsTaken(
		ctx,
		NormalizeEmail(email),
		strings.TrimSpace(username),
	)
}

func (s *Service) GetProfile(ctx context.Context, id string) (*Account, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, fmt.Errorf("get profile: malformed id: %w", core.ErrInvalidInput)
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(
	ctx context.Context,
	id string,
	req UpdateProfileRequest,
) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("update profile: %w", core.ErrUnauthorized)
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	username := strings.TrimSpace(req.Username)
	if username == a.Username {
		return a, nil
	}

	taken, err := s.repo.UsernameTakenByOther(ctx, username, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("update profile: username: %w", core.ErrDuplicateKey)
	}

	a.Username = username
	if err := s.repo.UpdateUsername(ctx, a); err != nil {
		return nil, err
	}

	return a, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]Account, error) {
	if limit < 1 {
		limit = defaultLeaderboardSize
	}
	limit = min(limit, maxLeaderboardSize)
	return s.repo.TopByBalance(ctx, limit)
}

func (s *Service) Totals(ctx context.Context) (Totals, error) {
	return s.repo.Totals(ctx)
}

func toUserInfo(a *Account) *auth.UserInfo {
	return &auth.UserInfo{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		CoinBalance:  a.CoinBalance,
		CreatedAt:    a.CreatedAt,
	}
}

var _ auth.UserProvider = (*Service)(nil)
