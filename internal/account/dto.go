// AngelaMos | 2026
// dto.go

package account

import (
	"time"
)

type UpdateProfileRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
}

type ProfileResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	CoinBalance int       `json:"coinBalance"`
	CreatedAt   time.Time `json:"createdAt"`
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	Username    string `json:"username"`
	CoinBalance int    `json:"coinBalance"`
}

type LeaderboardResponse struct {
	Entries []LeaderboardEntry `json:"entries"`
}

func ToProfileResponse(a *Account) ProfileResponse {
	return ProfileResponse{
		ID:          a.ID,
		Username:    a.Username,
		Email:       a.Email,
		Role:        a.Role,
		CoinBalance: a.CoinBalance,
		CreatedAt:   a.CreatedAt,
	}
}

func ToLeaderboard(accounts []Account) LeaderboardResponse {
	entries := make([]LeaderboardEntry, 0, len(accounts))
	for i, a := range accounts {
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			Username:    a.Username,
			CoinBalance: a.CoinBalance,
		})
	}
	return LeaderboardResponse{Entries: entries}
}
