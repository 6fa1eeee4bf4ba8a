package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"reminderd/internal/domain"
	logx "reminderd/pkg/logx"
)

// Store is the persistence API used by the planner, resolver, orchestrator
// and HTTP surface.
type Store interface {
	// Obligations.
	ListDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Obligation, error)
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	Finish(ctx context.Context, id string, out Outcome, now time.Time) error
	GetObligation(ctx context.Context, id string) (domain.Obligation, error)
	ListObligations(ctx context.Context, eventID string) ([]domain.Obligation, error)
	ReplaceSchedule(ctx context.Context, eventID string, channel domain.Channel, plan []domain.Obligation) ([]domain.Obligation, error)
	CountStuck(ctx context.Context, updatedBefore time.Time) (int, error)

	// Events and audiences.
	UpsertEvent(ctx context.Context, ev domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	IncrementNotificationsSent(ctx context.Context, eventID string, n int) error
	AddRegistration(ctx context.Context, eventID string, r domain.Recipient, now time.Time) error
	ListRegistrants(ctx context.Context, eventID string) ([]domain.Recipient, error)
	RevokeConsent(ctx context.Context, kind domain.RecipientKind, id string) error

	// Integrations.
	UpsertIntegration(ctx context.Context, in domain.Integration) error
	GetIntegration(ctx context.Context, id string) (domain.Integration, error)
	UpsertContact(ctx context.Context, integrationID string, r domain.Recipient) error
	ListContacts(ctx context.Context, integrationID string, ids []string) ([]domain.Recipient, error)
	RecordIntegrationUsage(ctx context.Context, u domain.UsageLog) error
	ListUsage(ctx context.Context, integrationID string) ([]domain.UsageLog, error)

	Close() error
}

// Open initializes the configured store and applies pending migrations.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none":
		return nil, ErrDisabled
	case "sqlite", "sqlite3":
		st, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
