// AngelaMos | 2026
// entity.go

package account

import (
	"time"
)

type Account struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CoinBalance  int       `db:"coin_balance"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Totals summarises the coin economy for the admin dashboard.
type Totals struct {
	Accounts    int   `db:"accounts"`
	Admins      int   `db:"admins"`
	CoinsInPlay int64 `db:"coins_in_play"`
}
