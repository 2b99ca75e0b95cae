// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
	"github.com/carterperez-dev/eternal-vault/internal/middleware"
)

const (
	claimRole        = "role"
	claimUsername    = "username"
	claimCoinBalance = "coin_balance"
	claimType        = "type"

	tokenTypeAccess = "access"
	clockSkew       = 30 * time.Second
)

// JWTManager signs and verifies ES256 access tokens with a single key
// loaded from disk.
type JWTManager struct {
	privateKey jwk.Key
	publicKey  jwk.Key
	publicJWKS jwk.Set
	keyID      string
	config     config.JWTConfig
}

func NewJWTManager(cfg config.JWTConfig) (*JWTManager, error) {
	pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	privateKey, err := jwk.ParseKey(pemBytes, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	keyID, err := stampKey(privateKey)
	if err != nil {
		return nil, err
	}

	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	if err := publicKey.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("set key usage: %w", err)
	}

	publicJWKS := jwk.NewSet()
	if err := publicJWKS.AddKey(publicKey); err != nil {
		return nil, fmt.Errorf("add key to set: %w", err)
	}

	return &JWTManager{
		privateKey: privateKey,
		publicKey:  publicKey,
		publicJWKS: publicJWKS,
		keyID:      keyID,
		config:     cfg,
	}, nil
}

// stampKey pins the algorithm and derives the key id from the RFC 7638
// thumbprint, so the kid survives restarts and stays stable across
// replicas sharing the same key file.
func stampKey(key jwk.Key) (string, error) {
	if err := key.Set(jwk.AlgorithmKey, jwa.ES256()); err != nil {
		return "", fmt.Errorf("set algorithm: %w", err)
	}

	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("key thumbprint: %w", err)
	}
	keyID := base64.RawURLEncoding.EncodeToString(thumb)[:16]

	if err := key.Set(jwk.KeyIDKey, keyID); err != nil {
		return "", fmt.Errorf("set key id: %w", err)
	}
	return keyID, nil
}

// GenerateKeyPair writes a fresh P-256 key pair as PEM files.
func GenerateKeyPair(privateKeyPath, publicKeyPath string) error {
	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	privateKey, err := jwk.Import(raw)
	if err != nil {
		return fmt.Errorf("import private key: %w", err)
	}
	publicKey, err := privateKey.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	if err := writePEM(privateKeyPath, privateKey, 0o600); err != nil {
		return err
	}
	return writePEM(publicKeyPath, publicKey, 0o644)
}

func writePEM(path string, key jwk.Key, perm os.FileMode) error {
	encoded, err := jwk.Pem(key)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	//nolint:gosec // G306: the public half is meant to be world-readable
	if err := os.WriteFile(path, encoded, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// AccessTokenClaims is what gets signed into an access token. The balance
// is a snapshot taken at login, handlers must not trust it for charging.
type AccessTokenClaims struct {
	UserID      string `json:"sub"`
	Role        string `json:"role"`
	Username    string `json:"username"`
	CoinBalance int    `json:"coin_balance"`
}

func (m *JWTManager) CreateAccessToken(
	claims AccessTokenClaims,
) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessTokenExpire)

	token, err := jwt.NewBuilder().
		JwtID(uuid.New().String()).
		Issuer(m.config.Issuer).
		Audience([]string{m.config.Audience}).
		Subject(claims.UserID).
		IssuedAt(now).
		Expiration(expiresAt).
		NotBefore(now).
		Claim(claimRole, claims.Role).
		Claim(claimUsername, claims.Username).
		Claim(claimCoinBalance, claims.CoinBalance).
		Claim(claimType, tokenTypeAccess).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.ES256(), m.privateKey))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return string(signed), expiresAt, nil
}

func (m *JWTManager) VerifyAccessToken(
	_ context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	token, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKey(jwa.ES256(), m.publicKey),
		jwt.WithValidate(true),
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithAudience(m.config.Audience),
		jwt.WithAcceptableSkew(clockSkew),
	)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	subject, ok := token.Subject()
	if !ok || subject == "" {
		return nil, fmt.Errorf("verify token: missing subject: %w", core.ErrTokenInvalid)
	}

	kind, err := claim[string](token, claimType)
	if err != nil || kind != tokenTypeAccess {
		return nil, fmt.Errorf("verify token: not an access token: %w", core.ErrTokenInvalid)
	}

	claims := &middleware.AccessTokenClaims{UserID: subject}
	if claims.Role, err = claim[string](token, claimRole); err != nil {
		return nil, err
	}
	if claims.Username, err = claim[string](token, claimUsername); err != nil {
		return nil, err
	}
	// JSON numbers decode as float64.
	balance, err := claim[float64](token, claimCoinBalance)
	if err != nil {
		return nil, err
	}
	claims.CoinBalance = int(balance)

	return claims, nil
}

func claim[T any](token jwt.Token, name string) (T, error) {
	var v T
	if err := token.Get(name, &v); err != nil {
		return v, fmt.Errorf("verify token: missing %s claim: %w", name, core.ErrTokenInvalid)
	}
	return v, nil
}

func isTokenExpiredError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "exp") &&
		(strings.Contains(msg, "not satisfied") || strings.Contains(msg, "expired"))
}

func (m *JWTManager) GetJWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")

		if err := json.NewEncoder(w).Encode(m.publicJWKS); err != nil {
			core.InternalServerError(w, fmt.Errorf("encode jwks: %w", err))
		}
	}
}

func (m *JWTManager) GetKeyID() string {
	return m.keyID
}
