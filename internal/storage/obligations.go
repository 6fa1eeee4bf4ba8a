package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reminderd/internal/domain"
)

const obligationCols = `id, event_id, channel, stage, scheduled_at, status,
	recipients_count, sent_count, failed_count, error_details, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(sc rowScanner) (domain.Obligation, error) {
	var (
		o                    domain.Obligation
		channel, stage, st   string
		scheduledAt, updated string
		details              sql.NullString
	)
	if err := sc.Scan(&o.ID, &o.EventID, &channel, &stage, &scheduledAt, &st,
		&o.RecipientsCount, &o.SentCount, &o.FailedCount, &details, &updated); err != nil {
		return o, err
	}
	o.Channel = domain.Channel(channel)
	o.Stage = domain.Stage(stage)
	o.Status = domain.Status(st)

	var err error
	if o.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return o, err
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return o, err
	}
	if details.Valid && details.String != "" {
		var d domain.ErrorDetails
		if err := json.Unmarshal([]byte(details.String), &d); err != nil {
			return o, fmt.Errorf("decode error_details for %s: %w", o.ID, err)
		}
		o.ErrorDetails = &d
	}
	return o, nil
}

func (s *sqliteStore) queryObligations(ctx context.Context, q string, args ...any) ([]domain.Obligation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListDue returns scheduled obligations due at or before cutoff, earliest first.
func (s *sqliteStore) ListDue(ctx context.Context, cutoff time.Time, limit int) ([]domain.Obligation, error) {
	if limit <= 0 {
		limit = 200
	}
	return s.queryObligations(ctx,
		`SELECT `+obligationCols+` FROM obligations
		 WHERE status = 'scheduled' AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC, id ASC
		 LIMIT ?`,
		formatTime(cutoff), limit,
	)
}

// Claim moves one obligation from scheduled to sending.
// It reports false when another run got there first.
func (s *sqliteStore) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE obligations SET status = 'sending', updated_at = ?
		 WHERE id = ? AND status = 'scheduled'`,
		formatTime(now), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Finish records the terminal state of a claimed obligation.
func (s *sqliteStore) Finish(ctx context.Context, id string, out Outcome, now time.Time) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("%w: finish with %q", ErrInvalidTransition, out.Status)
	}
	var details any
	if out.ErrorDetails != nil {
		b, err := json.Marshal(out.ErrorDetails)
		if err != nil {
			return fmt.Errorf("encode error_details: %w", err)
		}
		details = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE obligations
		 SET status = ?, recipients_count = ?, sent_count = ?, failed_count = ?, error_details = ?, updated_at = ?
		 WHERE id = ? AND status = 'sending'`,
		string(out.Status), out.RecipientsCount, out.SentCount, out.FailedCount, details, formatTime(now), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s is not sending", ErrInvalidTransition, id)
	}
	return nil
}

func (s *sqliteStore) GetObligation(ctx context.Context, id string) (domain.Obligation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+obligationCols+` FROM obligations WHERE id = ?`, id)
	o, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("obligation %s: %w", id, ErrNotFound)
	}
	return o, err
}

func (s *sqliteStore) ListObligations(ctx context.Context, eventID string) ([]domain.Obligation, error) {
	return s.queryObligations(ctx,
		`SELECT `+obligationCols+` FROM obligations WHERE event_id = ? ORDER BY scheduled_at ASC, id ASC`,
		eventID,
	)
}

// ReplaceSchedule upserts plan for eventID in one transaction.
//
// Rows still scheduled get their time and channel refreshed; rows past
// scheduled are left alone. Rows for stages missing from plan are kept:
// obligations go away only when their event is deleted.
func (s *sqliteStore) ReplaceSchedule(ctx context.Context, eventID string, channel domain.Channel, plan []domain.Obligation) ([]domain.Obligation, error) {
	now := formatTime(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM events WHERE id = ?`, eventID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
		}

		for _, o := range plan {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO obligations(id, event_id, channel, stage, scheduled_at, status, updated_at)
				 VALUES(?, ?, ?, ?, ?, 'scheduled', ?)
				 ON CONFLICT(event_id, stage) DO UPDATE
				 SET channel = excluded.channel, scheduled_at = excluded.scheduled_at, updated_at = excluded.updated_at
				 WHERE obligations.status = 'scheduled'`,
				o.ID, eventID, string(channel), string(o.Stage), formatTime(o.ScheduledAt), now,
			); err != nil {
				return fmt.Errorf("upsert %s: %w", o.Stage, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.ListObligations(ctx, eventID)
}

// CountStuck counts obligations left in sending since before updatedBefore.
func (s *sqliteStore) CountStuck(ctx context.Context, updatedBefore time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM obligations WHERE status = 'sending' AND updated_at < ?`,
		formatTime(updatedBefore),
	).Scan(&n)
	return n, err
}
