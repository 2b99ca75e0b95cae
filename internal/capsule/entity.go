// AngelaMos | 2026
// entity.go

package capsule

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

const (
	KindPublic  = "public"
	KindPrivate = "private"
)

const CodeLength = 8

const TeaserMessage = "Just wait, dear! You will be notified when your capsule reaches the unlock date."

// Capsule is one stored record. UnlockDate is always a UTC midnight that
// stands for a calendar day.
type Capsule struct {
	ID            string         `db:"id"`
	Kind          string         `db:"kind"`
	CreatorID     string         `db:"creator_id"`
	CreatorEmail  string         `db:"creator_email"`
	Name          string         `db:"name"`
	Message       string         `db:"message"`
	Media         pq.StringArray `db:"media"`
	Links         pq.StringArray `db:"links"`
	IsShared      bool           `db:"is_shared"`
	UniqueCode    *string        `db:"unique_code"`
	AllowedEmails pq.StringArray `db:"allowed_emails"`
	ViewCount     int            `db:"view_count"`
	UnlockDate    time.Time      `db:"unlock_date"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (c *Capsule) IsPublic() bool {
	return c.Kind == KindPublic
}

func (c *Capsule) IsSharedPrivate() bool {
	return c.Kind == KindPrivate && c.IsShared
}

func (c *Capsule) IsDirectAssignment() bool {
	return c.Kind == KindPrivate && !c.IsShared
}

// SealedOn reports whether the capsule is still locked on the given day.
func (c *Capsule) SealedOn(day time.Time) bool {
	return day.Before(c.UnlockDate)
}

func (c *Capsule) Allows(email string) bool {
	return slices.Contains(c.AllowedEmails, email)
}

func (c *Capsule) OwnedBy(accountID string) bool {
	return c.CreatorID == accountID
}

func (c *Capsule) Code() string {
	if c.UniqueCode == nil {
		return ""
	}
	return *c.UniqueCode
}

// Counts feeds the admin economy stats.
type Counts struct {
	Total    int `db:"total"`
	Public   int `db:"public"`
	Private  int `db:"private"`
	Shared   int `db:"shared"`
	Unlocked int `db:"unlocked"`
}
