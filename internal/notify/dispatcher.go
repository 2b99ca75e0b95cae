// AngelaMos | 2026
// dispatcher.go

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/carterperez-dev/eternal-vault/internal/capsule"
	"github.com/carterperez-dev/eternal-vault/internal/core"
)

type CapsuleSource interface {
	UnlockingOn(ctx context.Context, day time.Time) ([]capsule.Capsule, error)
}

// Notice is one unlock message for one recipient.
type Notice struct {
	To          string
	CapsuleID   string
	CapsuleName string
	UnlockDate  time.Time
	Link        string
}

type Notifier interface {
	SendUnlockNotice(ctx context.Context, n Notice) error
}

type Metrics interface {
	NotificationSent(result string)
}

type DispatcherConfig struct {
	Capsules CapsuleSource
	Notifier Notifier
	BaseURL  string
	Metrics  Metrics
	Logger   *slog.Logger
}

type Dispatcher struct {
	capsules CapsuleSource
	notifier Notifier
	baseURL  string
	metrics  Metrics
	logger   *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		capsules: cfg.Capsules,
		notifier: cfg.Notifier,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "notify"),
	}
}

type SweepReport struct {
	Day      string `json:"day"`
	Capsules int    `json:"capsules"`
	Sent     int    `json:"sent"`
	Failed   int    `json:"failed"`
}

// Sweep notifies everyone attached to a capsule unlocking on day. A failed
// recipient is logged and counted, the sweep moves on.
func (d *Dispatcher) Sweep(ctx context.Context, day time.Time) (SweepReport, error) {
	report := SweepReport{Day: day.Format(time.DateOnly)}

	ctx, span := core.StartSpan(ctx, "notify.sweep",
		core.AttrSweepDay.String(report.Day),
	)
	defer span.End()

	capsules, err := d.capsules.UnlockingOn(ctx, day)
	if err != nil {
		core.SetSpanError(ctx, err)
		return report, fmt.Errorf("sweep %s: %w", report.Day, err)
	}
	report.Capsules = len(capsules)

	for i := range capsules {
		c := &capsules[i]
		for _, email := range recipients(c) {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("sweep %s: %w", report.Day, err)
			}

			err := d.notifier.SendUnlockNotice(ctx, Notice{
				To:          email,
				CapsuleID:   c.ID,
				CapsuleName: c.Name,
				UnlockDate:  c.UnlockDate,
				Link:        d.link(c.ID),
			})
			if err != nil {
				report.Failed++
				d.count("failed")
				d.logger.ErrorContext(ctx, "unlock notice failed",
					"capsule_id", c.ID,
					"recipient", email,
					"error", err,
				)
				continue
			}
			report.Sent++
			d.count("sent")
		}
	}

	core.AddSpanEvent(ctx, "sweep.done",
		core.AttrNoticesSent.Int(report.Sent),
		core.AttrNoticesFailed.Int(report.Failed),
	)
	d.logger.InfoContext(ctx, "unlock sweep finished",
		"day", report.Day,
		"capsules", report.Capsules,
		"sent", report.Sent,
		"failed", report.Failed,
	)

	return report, nil
}

func (d *Dispatcher) link(capsuleID string) string {
	return d.baseURL + "/capsule/" + capsuleID
}

func (d *Dispatcher) count(result string) {
	if d.metrics != nil {
		d.metrics.NotificationSent(result)
	}
}

// recipients is the creator followed by every allowed email of a shared
// private capsule, without duplicates. Direct assignments notify the
// creator only.
func recipients(c *capsule.Capsule) []string {
	out := make([]string, 0, 1+len(c.AllowedEmails))
	seen := make(map[string]struct{}, cap(out))

	add := func(email string) {
		if email == "" {
			return
		}
		if _, dup := seen[email]; dup {
			return
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}

	add(c.CreatorEmail)
	if c.IsSharedPrivate() {
		for _, email := range c.AllowedEmails {
			add(email)
		}
	}
	return out
}
