package render

import (
	"fmt"
	"strings"
	"time"

	"reminderd/internal/domain"
)

const (
	dateLayout = "Monday, January 2, 2006"
	timeLayout = "3:04 PM MST"
)

// Vars is the data every template sees. Missing values render as "".
type Vars struct {
	FirstName        string
	LastName         string
	EventTitle       string
	EventDescription string
	EventDate        string
	EventTime        string
	EventDateTime    string
	TimeUntil        string
	HostName         string
	HostCompany      string
	RegistrationURL  string
	WatchURL         string
	UnsubscribeURL   string
	CustomMessage    string
}

// NewVars fills event and recipient fields. Dates are shown in loc (UTC if nil).
// Link fields are left for the caller.
func NewVars(ev domain.Event, r domain.Recipient, now time.Time, loc *time.Location) Vars {
	if loc == nil {
		loc = time.UTC
	}
	start := ev.StartsAt.In(loc)
	date := start.Format(dateLayout)
	clock := start.Format(timeLayout)
	return Vars{
		FirstName:        strings.TrimSpace(r.FirstName),
		LastName:         strings.TrimSpace(r.LastName),
		EventTitle:       ev.Title,
		EventDescription: ev.Description,
		EventDate:        date,
		EventTime:        clock,
		EventDateTime:    date + " at " + clock,
		TimeUntil:        TimeUntil(ev.StartsAt.Sub(now)),
		HostName:         ev.HostName,
		HostCompany:      ev.HostCompany,
		RegistrationURL:  ev.RegistrationURL,
		CustomMessage:    strings.TrimSpace(ev.CustomMessage),
	}
}

// TimeUntil renders a floor-rounded relative time like "in 2 days".
// Anything under a minute (or already past) is "now".
func TimeUntil(d time.Duration) string {
	const (
		day  = 24 * time.Hour
		week = 7 * day
	)
	switch {
	case d >= week:
		return plural(int(d/week), "week")
	case d >= day:
		return plural(int(d/day), "day")
	case d >= time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return "now"
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("in 1 %s", unit)
	}
	return fmt.Sprintf("in %d %ss", n, unit)
}
