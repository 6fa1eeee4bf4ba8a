package recipient

import (
	"context"
	"errors"
	"fmt"

	"reminderd/internal/domain"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

// Store is the read side the resolver needs.
type Store interface {
	GetIntegration(ctx context.Context, id string) (domain.Integration, error)
	ListContacts(ctx context.Context, integrationID string, ids []string) ([]domain.Recipient, error)
	ListRegistrants(ctx context.Context, eventID string) ([]domain.Recipient, error)
}

// Resolution is the audience for one event plus the integration that should
// deliver to it, if any.
type Resolution struct {
	Recipients  []domain.Recipient
	Integration *domain.Integration
}

type Resolver struct {
	store Store
	log   logx.Logger
}

func NewResolver(store Store, log logx.Logger) *Resolver {
	return &Resolver{store: store, log: log.With(logx.Component("recipient"))}
}

// Resolve picks the recipient source for ev.
//
// Integration contacts are used only when the event asks for them, lists
// contact IDs and its integration exists and is active. Every other case
// falls back to the event's registrants. Recipients are de-duplicated by
// kind and ID.
func (r *Resolver) Resolve(ctx context.Context, ev domain.Event) (Resolution, error) {
	integ, err := r.activeIntegration(ctx, ev)
	if err != nil {
		return Resolution{}, err
	}

	var list []domain.Recipient
	if integ != nil && ev.Source == domain.SourceIntegrationContacts && len(ev.ContactIDs) > 0 {
		list, err = r.store.ListContacts(ctx, integ.ID, ev.ContactIDs)
		if err != nil {
			return Resolution{}, fmt.Errorf("list contacts: %w", err)
		}
	} else {
		if ev.Source == domain.SourceIntegrationContacts {
			r.log.Debug("integration contacts unavailable; using registrants",
				logx.Event(ev.ID),
				logx.Int("contact_ids", len(ev.ContactIDs)),
				logx.Bool("integration_active", integ != nil),
			)
		}
		list, err = r.store.ListRegistrants(ctx, ev.ID)
		if err != nil {
			return Resolution{}, fmt.Errorf("list registrants: %w", err)
		}
	}
	return Resolution{Recipients: dedup(list), Integration: integ}, nil
}

func (r *Resolver) activeIntegration(ctx context.Context, ev domain.Event) (*domain.Integration, error) {
	if ev.IntegrationID == "" {
		return nil, nil
	}
	integ, err := r.store.GetIntegration(ctx, ev.IntegrationID)
	if errors.Is(err, storage.ErrNotFound) {
		r.log.Warn("event references missing integration", logx.Event(ev.ID), logx.String("integration", ev.IntegrationID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load integration %s: %w", ev.IntegrationID, err)
	}
	if !integ.Active {
		return nil, nil
	}
	return &integ, nil
}

func dedup(in []domain.Recipient) []domain.Recipient {
	type key struct {
		kind domain.RecipientKind
		id   string
	}
	seen := make(map[key]struct{}, len(in))
	out := in[:0:0]
	for _, rc := range in {
		k := key{rc.Kind, rc.ID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, rc)
	}
	return out
}
