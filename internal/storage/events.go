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

func (s *sqliteStore) UpsertEvent(ctx context.Context, ev domain.Event) error {
	var contacts any
	if len(ev.ContactIDs) > 0 {
		b, err := json.Marshal(ev.ContactIDs)
		if err != nil {
			return err
		}
		contacts = string(b)
	}
	source := ev.Source
	if source == "" {
		source = domain.SourceRegistrants
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, title, description, starts_at, host_name, host_company, recipient_source,
		                    contact_ids, integration_id, custom_message, registration_url)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   title = excluded.title, description = excluded.description, starts_at = excluded.starts_at,
		   host_name = excluded.host_name, host_company = excluded.host_company,
		   recipient_source = excluded.recipient_source, contact_ids = excluded.contact_ids,
		   integration_id = excluded.integration_id, custom_message = excluded.custom_message,
		   registration_url = excluded.registration_url`,
		ev.ID, ev.Title, nullStr(ev.Description), formatTime(ev.StartsAt), nullStr(ev.HostName), nullStr(ev.HostCompany),
		string(source), contacts, nullStr(ev.IntegrationID), nullStr(ev.CustomMessage), nullStr(ev.RegistrationURL),
	)
	return err
}

func (s *sqliteStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	var (
		ev                                     domain.Event
		startsAt, source                       string
		desc, host, company, contacts, integID sql.NullString
		custom, regURL                         sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, starts_at, host_name, host_company, recipient_source,
		        contact_ids, integration_id, custom_message, registration_url, notifications_sent
		 FROM events WHERE id = ?`, id,
	).Scan(&ev.ID, &ev.Title, &desc, &startsAt, &host, &company, &source,
		&contacts, &integID, &custom, &regURL, &ev.NotificationsSent)
	if errors.Is(err, sql.ErrNoRows) {
		return ev, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ev, err
	}
	if ev.StartsAt, err = parseTime(startsAt); err != nil {
		return ev, err
	}
	ev.Description = desc.String
	ev.HostName = host.String
	ev.HostCompany = company.String
	ev.Source = domain.RecipientSource(source)
	ev.IntegrationID = integID.String
	ev.CustomMessage = custom.String
	ev.RegistrationURL = regURL.String
	if contacts.Valid && contacts.String != "" {
		if err := json.Unmarshal([]byte(contacts.String), &ev.ContactIDs); err != nil {
			return ev, fmt.Errorf("event %s: malformed contact_ids: %w", id, err)
		}
	}
	return ev, nil
}

// DeleteEvent removes the event; its obligations and registrations cascade.
func (s *sqliteStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) IncrementNotificationsSent(ctx context.Context, eventID string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET notifications_sent = notifications_sent + ? WHERE id = ?`, n, eventID)
	return err
}

func (s *sqliteStore) AddRegistration(ctx context.Context, eventID string, r domain.Recipient, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO registrations(id, event_id, first_name, last_name, email, phone,
		                           consent_email, consent_sms, access_token, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ID, eventID, nullStr(r.FirstName), nullStr(r.LastName), nullStr(r.Email), nullStr(r.Phone),
		boolInt(r.ConsentEmail), boolInt(r.ConsentSMS), nullStr(r.AccessToken), formatTime(now),
	)
	return err
}

func (s *sqliteStore) ListRegistrants(ctx context.Context, eventID string) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, phone, consent_email, consent_sms, access_token
		 FROM registrations WHERE event_id = ? ORDER BY created_at ASC, id ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows, domain.KindRegistrant)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanRecipient reads id, first, last, email, phone, consent_email, consent_sms
// and, for registrants, access_token.
func scanRecipient(sc rowScanner, kind domain.RecipientKind) (domain.Recipient, error) {
	var (
		r                         domain.Recipient
		first, last, email, phone sql.NullString
		token                     sql.NullString
		consentEmail, consentSMS  int
	)
	dest := []any{&r.ID, &first, &last, &email, &phone, &consentEmail, &consentSMS}
	if kind == domain.KindRegistrant {
		dest = append(dest, &token)
	}
	if err := sc.Scan(dest...); err != nil {
		return r, err
	}
	r.Kind = kind
	r.FirstName = first.String
	r.LastName = last.String
	r.Email = email.String
	r.Phone = phone.String
	r.ConsentEmail = consentEmail != 0
	r.ConsentSMS = consentSMS != 0
	r.AccessToken = token.String
	return r, nil
}

// RevokeConsent clears both consent flags for a registrant or contact.
func (s *sqliteStore) RevokeConsent(ctx context.Context, kind domain.RecipientKind, id string) error {
	table := "registrations"
	if kind == domain.KindContact {
		table = "integration_contacts"
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET consent_email = 0, consent_sms = 0 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
