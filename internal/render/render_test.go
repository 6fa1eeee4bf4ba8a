package render

import (
	"strings"
	"testing"
	"time"

	"reminderd/internal/domain"
)

func TestTimeUntil(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{90 * time.Minute, "in 1 hour"},
		{10 * 24 * time.Hour, "in 1 week"},
		{30 * time.Second, "now"},
		{-5 * time.Minute, "now"},
		{14 * 24 * time.Hour, "in 2 weeks"},
		{3 * 24 * time.Hour, "in 3 days"},
		{24 * time.Hour, "in 1 day"},
		{15 * time.Minute, "in 15 minutes"},
		{time.Minute, "in 1 minute"},
		{23*time.Hour + 59*time.Minute, "in 23 hours"},
	}
	for _, tt := range tests {
		if got := TimeUntil(tt.in); got != tt.want {
			t.Fatalf("TimeUntil(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func testEvent() domain.Event {
	return domain.Event{
		ID:          "ev-1",
		Title:       "Launch <Day>",
		Description: "Product walkthrough",
		StartsAt:    time.Date(2024, 10, 25, 14, 0, 0, 0, time.UTC),
		HostName:    "Dana",
		HostCompany: "Acme",
	}
}

func TestNewVars(t *testing.T) {
	t.Parallel()
	ev := testEvent()
	now := ev.StartsAt.Add(-time.Hour)
	v := NewVars(ev, domain.Recipient{FirstName: " Ana "}, now, nil)
	if v.EventDate != "Friday, October 25, 2024" {
		t.Fatalf("EventDate = %q", v.EventDate)
	}
	if v.EventTime != "2:00 PM UTC" {
		t.Fatalf("EventTime = %q", v.EventTime)
	}
	if v.TimeUntil != "in 1 hour" {
		t.Fatalf("TimeUntil = %q", v.TimeUntil)
	}
	if v.FirstName != "Ana" {
		t.Fatalf("FirstName = %q", v.FirstName)
	}
}

func TestRenderEmailByStage(t *testing.T) {
	t.Parallel()
	ev := testEvent()
	v := NewVars(ev, domain.Recipient{FirstName: "Ana"}, ev.StartsAt.Add(-24*time.Hour), time.UTC)

	tests := []struct {
		stage   domain.Stage
		subject string
		body    string
	}{
		{domain.StageImmediate, "You're registered: Launch <Day>", "registered for"},
		{domain.Stage1DayBefore, "Reminder: Launch <Day> starts in 1 day", "starts in 1 day"},
		{domain.StageAtEventStart, "Starting now: Launch <Day>", "is starting now"},
	}
	for _, tt := range tests {
		e, err := RenderEmail(tt.stage, v)
		if err != nil {
			t.Fatalf("RenderEmail(%s): %v", tt.stage, err)
		}
		if e.Subject != tt.subject {
			t.Fatalf("Subject(%s) = %q, want %q", tt.stage, e.Subject, tt.subject)
		}
		if !strings.Contains(e.Text, tt.body) || !strings.Contains(e.HTML, tt.body) {
			t.Fatalf("body(%s) missing %q", tt.stage, tt.body)
		}
	}
}

func TestRenderEmailEscapesHTML(t *testing.T) {
	t.Parallel()
	v := Vars{EventTitle: "<script>x</script>", FirstName: "A&B"}
	e, err := RenderEmail(domain.Stage1HourBefore, v)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(e.HTML, "<script>") {
		t.Fatalf("HTML not escaped: %s", e.HTML)
	}
	if !strings.Contains(e.Text, "<script>x</script>") {
		t.Fatalf("text body should keep raw title: %s", e.Text)
	}
}

func TestCustomMessageOnlyWhenSet(t *testing.T) {
	t.Parallel()
	v := Vars{EventTitle: "T"}
	e, _ := RenderEmail(domain.Stage1HourBefore, v)
	if strings.Contains(e.HTML, "<blockquote") {
		t.Fatal("empty custom message rendered a block")
	}
	v.CustomMessage = "Bring questions"
	e, _ = RenderEmail(domain.Stage1HourBefore, v)
	if !strings.Contains(e.HTML, "Bring questions") || !strings.Contains(e.Text, "Bring questions") {
		t.Fatal("custom message missing")
	}
}

func TestRenderSMS(t *testing.T) {
	t.Parallel()
	v := Vars{EventTitle: "Launch", TimeUntil: "in 1 hour", EventDateTime: "Friday, October 25, 2024 at 2:00 PM UTC", WatchURL: "https://x.test/w"}
	got, err := RenderSMS(domain.Stage1HourBefore, v)
	if err != nil {
		t.Fatal(err)
	}
	want := "Reminder: Launch starts in 1 hour (Friday, October 25, 2024 at 2:00 PM UTC). Join: https://x.test/w"
	if got != want {
		t.Fatalf("sms = %q, want %q", got, want)
	}
}
