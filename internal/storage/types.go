package storage

import (
	"errors"
	"time"

	"reminderd/internal/domain"
)

var (
	ErrDisabled          = errors.New("storage disabled")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid obligation status transition")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//
// Empty or "none" is rejected: reminders cannot run without persistence.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means 5s
}

// Outcome is the terminal write for one claimed obligation.
type Outcome struct {
	Status          domain.Status
	RecipientsCount int
	SentCount       int
	FailedCount     int
	ErrorDetails    *domain.ErrorDetails
}
