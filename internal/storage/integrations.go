package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"reminderd/internal/domain"
)

func (s *sqliteStore) UpsertIntegration(ctx context.Context, in domain.Integration) error {
	var cfg any
	if len(in.Config) > 0 {
		b, err := json.Marshal(in.Config)
		if err != nil {
			return err
		}
		cfg = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integrations(id, account_id, service_type, credentials, sender_name, sender_email,
		                          sender_phone, config, active)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   account_id = excluded.account_id, service_type = excluded.service_type,
		   credentials = excluded.credentials, sender_name = excluded.sender_name,
		   sender_email = excluded.sender_email, sender_phone = excluded.sender_phone,
		   config = excluded.config, active = excluded.active`,
		in.ID, in.AccountID, string(in.ServiceType), in.SealedCredentials, nullStr(in.SenderName),
		nullStr(in.SenderEmail), nullStr(in.SenderPhone), cfg, boolInt(in.Active),
	)
	return err
}

func (s *sqliteStore) GetIntegration(ctx context.Context, id string) (domain.Integration, error) {
	var (
		in                      domain.Integration
		service                 string
		name, email, phone, cfg sql.NullString
		lastUsed                sql.NullString
		active                  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, service_type, credentials, sender_name, sender_email, sender_phone,
		        config, active, usage_count, last_used_at
		 FROM integrations WHERE id = ?`, id,
	).Scan(&in.ID, &in.AccountID, &service, &in.SealedCredentials, &name, &email, &phone,
		&cfg, &active, &in.UsageCount, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return in, fmt.Errorf("integration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return in, err
	}
	in.ServiceType = domain.ServiceType(service)
	in.SenderName = name.String
	in.SenderEmail = email.String
	in.SenderPhone = phone.String
	in.Active = active != 0
	if cfg.Valid && cfg.String != "" {
		if err := json.Unmarshal([]byte(cfg.String), &in.Config); err != nil {
			return in, fmt.Errorf("integration %s: malformed config: %w", id, err)
		}
	}
	if lastUsed.Valid {
		t, err := parseTime(lastUsed.String)
		if err != nil {
			return in, err
		}
		in.LastUsedAt = &t
	}
	return in, nil
}

func (s *sqliteStore) UpsertContact(ctx context.Context, integrationID string, r domain.Recipient) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_contacts(id, integration_id, first_name, last_name, email, phone, consent_email, consent_sms)
		 VALUES(?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   integration_id = excluded.integration_id, first_name = excluded.first_name,
		   last_name = excluded.last_name, email = excluded.email, phone = excluded.phone,
		   consent_email = excluded.consent_email, consent_sms = excluded.consent_sms`,
		r.ID, integrationID, nullStr(r.FirstName), nullStr(r.LastName), nullStr(r.Email), nullStr(r.Phone),
		boolInt(r.ConsentEmail), boolInt(r.ConsentSMS),
	)
	return err
}

// ListContacts returns contacts by ID that belong to integrationID.
// IDs owned by another integration are silently skipped.
func (s *sqliteStore) ListContacts(ctx context.Context, integrationID string, ids []string) ([]domain.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, integrationID)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, phone, consent_email, consent_sms
		 FROM integration_contacts
		 WHERE integration_id = ? AND id IN (`+placeholders(len(ids))+`)
		 ORDER BY id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows, domain.KindContact)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordIntegrationUsage appends a usage log and bumps the integration's
// counters in one transaction.
func (s *sqliteStore) RecordIntegrationUsage(ctx context.Context, u domain.UsageLog) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		at := formatTime(u.CreatedAt)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO integration_usage_logs(id, integration_id, operation, recipients_count,
			                                    success_count, failure_count, estimated_cost, created_at)
			 VALUES(?,?,?,?,?,?,?,?)`,
			u.ID, u.IntegrationID, u.Operation, u.RecipientsCount, u.SuccessCount, u.FailureCount, u.EstimatedCost, at,
		); err != nil {
			return fmt.Errorf("insert usage log: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE integrations SET usage_count = usage_count + 1, last_used_at = ? WHERE id = ?`,
			at, u.IntegrationID,
		)
		if err != nil {
			return fmt.Errorf("bump usage: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("integration %s: %w", u.IntegrationID, ErrNotFound)
		}
		return nil
	})
}

func (s *sqliteStore) ListUsage(ctx context.Context, integrationID string) ([]domain.UsageLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, integration_id, operation, recipients_count, success_count, failure_count, estimated_cost, created_at
		 FROM integration_usage_logs WHERE integration_id = ? ORDER BY created_at ASC, id ASC`, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UsageLog
	for rows.Next() {
		var (
			u  domain.UsageLog
			at string
		)
		if err := rows.Scan(&u.ID, &u.IntegrationID, &u.Operation, &u.RecipientsCount,
			&u.SuccessCount, &u.FailureCount, &u.EstimatedCost, &at); err != nil {
			return nil, err
		}
		if u.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
