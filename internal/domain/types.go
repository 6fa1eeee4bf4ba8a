package domain

import (
	"time"
)

// Channel selects which transports an obligation is delivered over.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelBoth:
		return true
	}
	return false
}

func (c Channel) WantsEmail() bool { return c == ChannelEmail || c == ChannelBoth }
func (c Channel) WantsSMS() bool   { return c == ChannelSMS || c == ChannelBoth }

// Status is the obligation lifecycle state.
// Transitions only move forward: scheduled -> sending -> sent|failed.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusSent || s == StatusFailed }

// Obligation is one persisted reminder for one event at one stage.
type Obligation struct {
	ID              string
	EventID         string
	Channel         Channel
	Stage           Stage
	ScheduledAt     time.Time
	Status          Status
	RecipientsCount int
	SentCount       int
	FailedCount     int
	ErrorDetails    *ErrorDetails
	UpdatedAt       time.Time
}

// RecipientSource picks where an event's audience comes from.
type RecipientSource string

const (
	SourceRegistrants         RecipientSource = "registrants"
	SourceIntegrationContacts RecipientSource = "integration_contacts"
)

type Event struct {
	ID                string
	Title             string
	Description       string
	StartsAt          time.Time
	HostName          string
	HostCompany       string
	Source            RecipientSource
	ContactIDs        []string
	IntegrationID     string
	CustomMessage     string
	RegistrationURL   string
	NotificationsSent int
}

// RecipientKind tags the Recipient union.
type RecipientKind string

const (
	KindRegistrant RecipientKind = "registrant"
	KindContact    RecipientKind = "contact"
)

// Recipient is either an event registrant or an integration contact.
// AccessToken is only populated for registrants.
type Recipient struct {
	Kind         RecipientKind
	ID           string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	ConsentEmail bool
	ConsentSMS   bool
	AccessToken  string
}

// ServiceType names a third-party delivery integration.
type ServiceType string

const (
	ServiceSMTP     ServiceType = "smtp"
	ServiceSendGrid ServiceType = "sendgrid"
	ServiceTwilio   ServiceType = "twilio"
)

type Integration struct {
	ID                string
	AccountID         string
	ServiceType       ServiceType
	SealedCredentials []byte
	SenderName        string
	SenderEmail       string
	SenderPhone       string
	Config            map[string]string
	Active            bool
	UsageCount        int
	LastUsedAt        *time.Time
}

// Usage operations.
const (
	OpEmailSend = "email.send"
	OpSMSSend   = "sms.send"
)

// UsageLog is an append-only audit row for one successful integration batch.
type UsageLog struct {
	ID              string
	IntegrationID   string
	Operation       string
	RecipientsCount int
	SuccessCount    int
	FailureCount    int
	EstimatedCost   float64
	CreatedAt       time.Time
}
