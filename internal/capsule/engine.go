// AngelaMos | 2026
// engine.go

package capsule

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/carterperez-dev/eternal-vault/internal/account"
	"github.com/carterperez-dev/eternal-vault/internal/config"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

const maxCodeAttempts = 3

// ErrRequesterNotFound marks a missing requester account, as opposed to a
// missing capsule. It matches core.ErrNotFound.
var ErrRequesterNotFound = fmt.Errorf("requester account: %w", core.ErrNotFound)

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
}

// Metrics receives business counters. A nil Metrics is allowed.
type Metrics interface {
	CapsuleCreated(kind string)
	CoinsDebited(reason string, amount int)
}

type EngineConfig struct {
	Capsules Repository
	Accounts AccountStore
	Rewards  RewardQueue
	Clock    core.Clock
	Location *time.Location
	Economy  config.EconomyConfig
	Metrics  Metrics
	Logger   *slog.Logger
}

// Engine owns every state transition of a capsule and every coin movement
// those transitions cause.
type Engine struct {
	capsules Repository
	accounts AccountStore
	rewards  RewardQueue
	clock    core.Clock
	loc      *time.Location
	economy  config.EconomyConfig
	metrics  Metrics
	logger   *slog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		capsules: cfg.Capsules,
		accounts: cfg.Accounts,
		rewards:  cfg.Rewards,
		clock:    cfg.Clock,
		loc:      cfg.Location,
		economy:  cfg.Economy,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if e.clock == nil {
		e.clock = core.RealClock()
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.rewards == nil {
		e.rewards = discardRewards{}
	}
	if e.metrics == nil {
		e.metrics = noopMetrics{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Requester identifies an authenticated caller.
type Requester struct {
	ID    string
	Admin bool
}

type CreateInput struct {
	Kind          string
	Name          string
	Message       string
	UnlockDate    time.Time
	Media         []string
	Links         []string
	IsShared      bool
	AllowedEmails []string
}

type Content struct {
	Message string
	Media   []string
	Links   []string
}

// PublicView is one entry of the public listing. Content is nil while the
// capsule is sealed.
type PublicView struct {
	ID         string
	Name       string
	CreatorID  string
	UnlockDate time.Time
	CreatedAt  time.Time
	Sealed     bool
	Teaser     string
	ViewCount  int
	Content    *Content
}

// AccessResult carries the outcome of a private lookup. Capsule is nil when
// Sealed is true.
type AccessResult struct {
	CapsuleID  string
	UnlockDate time.Time
	Sealed     bool
	Charged    bool
	Capsule    *Capsule
}

// Patch lists the fields an owner wants to change. Kind, Creator and
// IsShared are accepted only so their presence can be rejected.
type Patch struct {
	Name          *string
	Message       *string
	UnlockDate    *time.Time
	Media         *[]string
	Links         *[]string
	AllowedEmails []string

	Kind     *string
	Creator  *string
	IsShared *bool
}

func (p Patch) empty() bool {
	return p.Name == nil && p.Message == nil && p.UnlockDate == nil &&
		p.Media == nil && p.Links == nil && len(p.AllowedEmails) == 0 &&
		p.Kind == nil && p.Creator == nil && p.IsShared == nil
}

// Today is the current calendar day in the configured timezone.
func (e *Engine) Today() time.Time {
	return core.Day(e.clock.Now(), e.loc)
}

func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) CreateCapsule(
	ctx context.Context,
	requesterEmail string,
	in CreateInput,
) (*Capsule, error) {
	ctx, span := core.StartSpan(ctx, "capsule.create",
		core.AttrCapsuleKind.String(in.Kind),
	)
	defer span.End()

	if in.Kind != KindPublic && in.Kind != KindPrivate {
		return nil, fmt.Errorf("create capsule: unknown type %q: %w", in.Kind, core.ErrInvalidInput)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("create capsule: name is required: %w", core.ErrInvalidInput)
	}
	if in.UnlockDate.IsZero() {
		return nil, fmt.Errorf("create capsule: unlock date is required: %w", core.ErrInvalidInput)
	}

	owner, err := e.accounts.GetByEmail(ctx, account.NormalizeEmail(requesterEmail))
	if err != nil {
		return nil, requesterError("create capsule", err)
	}

	c := &Capsule{
		ID:           uuid.New().String(),
		Kind:         in.Kind,
		CreatorID:    owner.ID,
		CreatorEmail: owner.Email,
		Name:         name,
		Message:      in.Message,
		Media:        cleanList(in.Media),
		Links:        cleanList(in.Links),
		UnlockDate:   core.Day(in.UnlockDate, in.UnlockDate.Location()),
	}

	fee := 0
	if c.Kind == KindPrivate {
		fee = e.economy.PrivateCapsuleFee
		if owner.CoinBalance < fee {
			return nil, fmt.Errorf("create capsule: %w", core.ErrInsufficientFunds)
		}
		c.IsShared = in.IsShared
		c.AllowedEmails = normalizeEmails(in.AllowedEmails)
	}

	for attempt := 1; ; attempt++ {
		if c.IsShared {
			code, codeErr := core.GenerateAccessCode(CodeLength)
			if codeErr != nil {
				return nil, fmt.Errorf("create capsule: %w", codeErr)
			}
			c.UniqueCode = &code
		}

		err = e.capsules.Create(ctx, c, fee)
		if err == nil {
			break
		}
		if c.IsShared && errors.Is(err, core.ErrDuplicateKey) && attempt < maxCodeAttempts {
			e.logger.DebugContext(ctx, "access code collision, regenerating",
				"attempt", attempt,
			)
			continue
		}
		core.SetSpanError(ctx, err)
		return nil, err
	}

	span.SetAttributes(core.AttrCapsuleID.String(c.ID))
	e.metrics.CapsuleCreated(c.Kind)
	if fee > 0 {
		e.metrics.CoinsDebited("private_capsule", fee)
	}

	e.logger.InfoContext(ctx, "capsule created",
		"capsule_id", c.ID,
		"kind", c.Kind,
		"shared", c.IsShared,
		"creator_id", c.CreatorID,
		"fee", fee,
	)

	return c, nil
}

// ListPublic walks every public capsule as of the given instant. Unlocked
// entries are counted as viewed while the sequence is consumed.
func (e *Engine) ListPublic(
	ctx context.Context,
	asOf time.Time,
) iter.Seq2[PublicView, error] {
	day := core.Day(asOf, e.loc)

	return func(yield func(PublicView, error) bool) {
		capsules, err := e.publicSnapshot(ctx)
		if err != nil {
			yield(PublicView{}, err)
			return
		}

		for _, c := range capsules {
			if c.SealedOn(day) {
				if !yield(teaserView(c), nil) {
					return
				}
				continue
			}

			views, err := e.capsules.IncrementViews(ctx, c.ID)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				yield(PublicView{}, err)
				return
			}
			c.ViewCount = views
			e.maybeReward(ctx, c)

			if !yield(fullView(c), nil) {
				return
			}
		}
	}
}

// publicSnapshot reads the whole public listing and releases the cursor
// before any view is counted. Incrementing while the cursor is open would
// need a second pooled connection per request.
func (e *Engine) publicSnapshot(ctx context.Context) ([]*Capsule, error) {
	var capsules []*Capsule
	for c, err := range e.capsules.Public(ctx) {
		if err != nil {
			return nil, err
		}
		capsules = append(capsules, c)
	}
	return capsules, nil
}

func (e *Engine) maybeReward(ctx context.Context, c *Capsule) {
	interval := e.economy.ViewRewardInterval
	if interval <= 0 || c.ViewCount <= 0 || c.ViewCount%interval != 0 {
		return
	}

	reward := Reward{
		CapsuleID: c.ID,
		CreatorID: c.CreatorID,
		Views:     c.ViewCount,
		Amount:    e.economy.ViewRewardCoins,
	}
	if !e.rewards.Enqueue(reward) {
		e.logger.WarnContext(ctx, "view reward dropped",
			"capsule_id", c.ID,
			"creator_id", c.CreatorID,
			"views", c.ViewCount,
		)
	}
}

func (e *Engine) AccessPrivate(
	ctx context.Context,
	requesterEmail, code string,
) (*AccessResult, error) {
	ctx, span := core.StartSpan(ctx, "capsule.access_private",
		core.AttrAccessByCode.Bool(code != ""),
	)
	defer span.End()

	email := account.NormalizeEmail(requesterEmail)
	if email == "" {
		return nil, fmt.Errorf("access capsule: email is required: %w", core.ErrInvalidInput)
	}

	requester, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, requesterError("access capsule", err)
	}

	var (
		c       *Capsule
		charged bool
	)

	if code = strings.TrimSpace(code); code != "" {
		c, err = e.capsules.GetSharedByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("access capsule: %w", err)
		}

		if !c.Allows(email) {
			charged, err = e.grantSharedAccess(ctx, c, requester, email)
			if err != nil {
				core.SetSpanError(ctx, err)
				return nil, err
			}
		}
	} else {
		c, err = e.capsules.GetAssignedTo(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("access capsule: %w", err)
		}
	}

	result := &AccessResult{
		CapsuleID:  c.ID,
		UnlockDate: c.UnlockDate,
		Charged:    charged,
	}
	if c.SealedOn(e.Today()) {
		result.Sealed = true
		return result, nil
	}

	result.Capsule = c
	return result, nil
}

// grantSharedAccess charges anyone not yet on the allowed list, the
// creator included.
func (e *Engine) grantSharedAccess(
	ctx context.Context,
	c *Capsule,
	requester *account.Account,
	email string,
) (bool, error) {
	fee := e.economy.SharedAccessFee
	if requester.CoinBalance < fee {
		return false, fmt.Errorf("access capsule: %w", core.ErrInsufficientFunds)
	}

	charged, err := e.capsules.GrantAccess(ctx, c.ID, requester.ID, email, fee)
	if err != nil {
		return false, fmt.Errorf("access capsule: %w", err)
	}

	if !c.Allows(email) {
		c.AllowedEmails = append(c.AllowedEmails, email)
	}

	if charged {
		e.metrics.CoinsDebited("shared_access", fee)
		e.logger.InfoContext(ctx, "shared access granted",
			"capsule_id", c.ID,
			"account_id", requester.ID,
			"fee", fee,
		)
	}

	return charged, nil
}

// DeleteCapsule removes a capsule on behalf of the account owning
// requesterEmail. No coins are refunded.
func (e *Engine) DeleteCapsule(
	ctx context.Context,
	requesterEmail, capsuleID string,
) error {
	requester, err := e.accounts.GetByEmail(ctx, account.NormalizeEmail(requesterEmail))
	if err != nil {
		return requesterError("delete capsule", err)
	}
	return e.DeleteOwned(ctx, requester.ID, capsuleID)
}

func (e *Engine) DeleteOwned(ctx context.Context, requesterID, capsuleID string) error {
	c, err := e.loadOwned(ctx, requesterID, capsuleID)
	if err != nil {
		return fmt.Errorf("delete capsule: %w", err)
	}

	if err := e.capsules.Delete(ctx, c.ID); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "capsule deleted",
		"capsule_id", c.ID,
		"creator_id", c.CreatorID,
	)
	return nil
}

func (e *Engine) EditCapsule(
	ctx context.Context,
	requesterID, capsuleID string,
	patch Patch,
) (*Capsule, error) {
	if patch.empty() {
		return nil, fmt.Errorf("edit capsule: nothing to change: %w", core.ErrInvalidInput)
	}
	switch {
	case patch.Kind != nil:
		return nil, fmt.Errorf("edit capsule: type cannot be changed: %w", core.ErrInvalidInput)
	case patch.Creator != nil:
		return nil, fmt.Errorf("edit capsule: creator cannot be changed: %w", core.ErrInvalidInput)
	case patch.IsShared != nil:
		return nil, fmt.Errorf("edit capsule: sharing mode cannot be changed: %w", core.ErrInvalidInput)
	}

	c, err := e.loadOwned(ctx, requesterID, capsuleID)
	if err != nil {
		return nil, fmt.Errorf("edit capsule: %w", err)
	}

	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, fmt.Errorf("edit capsule: name cannot be empty: %w", core.ErrInvalidInput)
		}
		c.Name = name
	}
	if patch.Message != nil {
		c.Message = *patch.Message
	}
	if patch.Media != nil {
		c.Media = cleanList(*patch.Media)
	}
	if patch.Links != nil {
		c.Links = cleanList(*patch.Links)
	}

	if patch.UnlockDate != nil {
		next := core.Day(*patch.UnlockDate, patch.UnlockDate.Location())
		today := e.Today()
		if !c.SealedOn(today) && today.Before(next) {
			return nil, fmt.Errorf(
				"edit capsule: an unlocked capsule cannot be sealed again: %w",
				core.ErrInvalidInput,
			)
		}
		c.UnlockDate = next
	}

	var added []string
	if len(patch.AllowedEmails) > 0 {
		if !c.IsDirectAssignment() {
			return nil, fmt.Errorf(
				"edit capsule: allowed users apply only to direct-assignment capsules: %w",
				core.ErrInvalidInput,
			)
		}
		for _, email := range normalizeEmails(patch.AllowedEmails) {
			if !c.Allows(email) {
				added = append(added, email)
			}
		}
	}

	if err := e.capsules.Update(ctx, c, added); err != nil {
		return nil, err
	}
	c.AllowedEmails = append(c.AllowedEmails, added...)

	return c, nil
}

// GetOwned is the owner's full view of a capsule, sealed or not. Admins may
// read any capsule.
func (e *Engine) GetOwned(
	ctx context.Context,
	who Requester,
	capsuleID string,
) (*Capsule, error) {
	if who.Admin {
		c, err := e.capsules.GetByID(ctx, capsuleID)
		if err != nil {
			return nil, fmt.Errorf("get capsule: %w", err)
		}
		return c, nil
	}

	c, err := e.loadOwned(ctx, who.ID, capsuleID)
	if err != nil {
		return nil, fmt.Errorf("get capsule: %w", err)
	}
	return c, nil
}

func (e *Engine) ListByCreator(
	ctx context.Context,
	who Requester,
	creatorID string,
) ([]Capsule, error) {
	if err := uuid.Validate(creatorID); err != nil {
		return nil, fmt.Errorf("list capsules: malformed user id: %w", core.ErrInvalidInput)
	}
	if who.ID != creatorID && !who.Admin {
		return nil, fmt.Errorf("list capsules: %w", core.ErrForbidden)
	}
	return e.capsules.ListByCreator(ctx, creatorID)
}

func (e *Engine) Counts(ctx context.Context) (Counts, error) {
	return e.capsules.Counts(ctx, e.Today())
}

func (e *Engine) loadOwned(ctx context.Context, requesterID, capsuleID string) (*Capsule, error) {
	if err := uuid.Validate(capsuleID); err != nil {
		return nil, fmt.Errorf("malformed capsule id: %w", core.ErrInvalidInput)
	}

	c, err := e.capsules.GetByID(ctx, capsuleID)
	if err != nil {
		return nil, err
	}
	if !c.OwnedBy(requesterID) {
		return nil, core.ErrForbidden
	}
	return c, nil
}

func requesterError(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrRequesterNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func teaserView(c *Capsule) PublicView {
	return PublicView{
		ID:         c.ID,
		Name:       c.Name,
		CreatorID:  c.CreatorID,
		UnlockDate: c.UnlockDate,
		CreatedAt:  c.CreatedAt,
		Sealed:     true,
		Teaser:     TeaserMessage,
	}
}

func fullView(c *Capsule) PublicView {
	return PublicView{
		ID:         c.ID,
		Name:       c.Name,
		CreatorID:  c.CreatorID,
		UnlockDate: c.UnlockDate,
		CreatedAt:  c.CreatedAt,
		ViewCount:  c.ViewCount,
		Content: &Content{
			Message: c.Message,
			Media:   c.Media,
			Links:   c.Links,
		},
	}
}

func cleanList(items []string) pq.StringArray {
	out := make(pq.StringArray, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// normalizeEmails lower-cases, trims and de-duplicates while keeping order.
func normalizeEmails(emails []string) pq.StringArray {
	seen := make(map[string]struct{}, len(emails))
	out := make(pq.StringArray, 0, len(emails))
	for _, raw := range emails {
		email := account.NormalizeEmail(raw)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}

type noopMetrics struct{}

func (noopMetrics) CapsuleCreated(string)    {}
func (noopMetrics) CoinsDebited(string, int) {}
