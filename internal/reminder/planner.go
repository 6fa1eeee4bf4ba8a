package reminder

import (
	"context"
	"fmt"
	"time"

	"reminderd/internal/domain"
	logx "reminderd/pkg/logx"
)

// Store is the persistence the planner needs.
type Store interface {
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ReplaceSchedule(ctx context.Context, eventID string, channel domain.Channel, plan []domain.Obligation) ([]domain.Obligation, error)
}

// Planner turns an event's chosen stages into persisted obligations.
type Planner struct {
	store Store
	log   logx.Logger
	now   func() time.Time
	newID func() string
}

func NewPlanner(store Store, log logx.Logger, newID func() string) *Planner {
	return &Planner{
		store: store,
		log:   log.With(logx.Component("planner")),
		now:   time.Now,
		newID: newID,
	}
}

// Schedule computes and stores the reminder plan for eventID.
// Rows already claimed or finished are kept as they are.
func (p *Planner) Schedule(ctx context.Context, eventID string, channel domain.Channel, stages []domain.Stage) ([]domain.Obligation, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidChannel, channel)
	}
	ev, err := p.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("load event %s: %w", eventID, err)
	}

	now := p.now().UTC()
	planned := Calculate(ev.StartsAt, now, stages)
	plan := make([]domain.Obligation, 0, len(planned))
	for _, pl := range planned {
		if pl.At.Before(now) && pl.Stage != domain.StageImmediate {
			p.log.Warn("reminder time already passed; it will be sent on the next run",
				logx.Event(eventID),
				logx.String("stage", string(pl.Stage)),
				logx.Time("at", pl.At),
			)
		}
		plan = append(plan, domain.Obligation{
			ID:          p.newID(),
			EventID:     eventID,
			Channel:     channel,
			Stage:       pl.Stage,
			ScheduledAt: pl.At,
			Status:      domain.StatusScheduled,
		})
	}

	out, err := p.store.ReplaceSchedule(ctx, eventID, channel, plan)
	if err != nil {
		return nil, fmt.Errorf("store schedule for %s: %w", eventID, err)
	}
	p.log.Info("reminder schedule stored",
		logx.Event(eventID),
		logx.String("channel", string(channel)),
		logx.Int("stages", len(plan)),
	)
	return out, nil
}
