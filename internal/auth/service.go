// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/carterperez-dev/eternal-vault/internal/core"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrCredentialsTaken   = errors.New("email or username already in use")
	ErrSetupDisabled      = errors.New("admin setup disabled")
)

const roleAdmin = "admin"

type UserInfo struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CoinBalance  int
	CreatedAt    time.Time
}

type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

type UserProvider interface {
	GetByEmail(ctx context.Context, email string) (*UserInfo, error)
	GetByID(ctx context.Context, id string) (*UserInfo, error)
	Create(ctx context.Context, nu NewUser) (*UserInfo, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	CredentialsTaken(ctx context.Context, email, username string) (bool, error)
}

type TokenIssuer interface {
	CreateAccessToken(claims AccessTokenClaims) (string, time.Time, error)
}

type Service struct {
	tokens     TokenIssuer
	users      UserProvider
	setupToken string
}

// NewService wires the auth flows. An empty setupToken disables admin
// creation entirely.
func NewService(tokens TokenIssuer, users UserProvider, setupToken string) *Service {
	return &Service{
		tokens:     tokens,
		users:      users,
		setupToken: setupToken,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := s.users.Create(ctx, NewUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
	}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

func (s *Service) Login(
	ctx context.Context,
	req LoginRequest,
) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			//nolint:errcheck // equalise timing with the found path
			_, _, _ = core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	valid, stale, err := core.VerifyPasswordTimingSafe(
		req.Password,
		&user.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	if stale {
		s.rehash(ctx, user.ID, req.Password)
	}

	token, expiresAt, err := s.tokens.CreateAccessToken(AccessTokenClaims{
		UserID:      user.ID,
		Role:        user.Role,
		Username:    user.Username,
		CoinBalance: user.CoinBalance,
	})
	if err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}

	return &LoginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int(time.Until(expiresAt).Round(time.Second) / time.Second),
		ExpiresAt: expiresAt,
		User:      toUserResponse(user),
	}, nil
}

// CreateAdmin bootstraps an admin account. It is only reachable with the
// deployment's setup token.
func (s *Service) CreateAdmin(
	ctx context.Context,
	presentedToken string,
	req RegisterRequest,
) (*UserResponse, error) {
	if s.setupToken == "" {
		return nil, ErrSetupDisabled
	}
	if presentedToken == "" || !core.SecretsEqual(presentedToken, s.setupToken) {
		return nil, fmt.Errorf("create admin: %w", core.ErrForbidden)
	}

	taken, err := s.users.CredentialsTaken(ctx, req.Email, req.Username)
	if err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	if taken {
		return nil, ErrCredentialsTaken
	}

	passwordHash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, NewUser{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Role:         roleAdmin,
	})
	if err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, ErrCredentialsTaken
		}
		return nil, fmt.Errorf("create admin: %w", err)
	}

	resp := toUserResponse(user)
	return &resp, nil
}

func (s *Service) rehash(ctx context.Context, userID, password string) {
	newHash, err := core.HashPassword(password)
	if err != nil {
		slog.WarnContext(ctx, "password rehash failed", "user_id", userID, "error", err)
		return
	}
	if err := s.users.UpdatePassword(ctx, userID, newHash); err != nil {
		slog.WarnContext(ctx, "password rehash not stored", "user_id", userID, "error", err)
	}
}
