// Package storage persists events, audiences, integrations and reminder
// obligations in SQLite.
//
// All timestamps are stored as fixed-width UTC RFC3339 text with nanoseconds,
// which sorts and compares correctly as strings. Obligation status only moves forward:
// Claim moves scheduled to sending and Finish moves sending to sent or failed.
package storage
