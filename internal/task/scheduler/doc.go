// Package scheduler fires named triggers on cron or interval schedules and
// hands each firing to the task engine. It never runs jobs itself.
package scheduler
