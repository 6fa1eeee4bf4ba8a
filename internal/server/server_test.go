package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"reminderd/internal/dispatch"
	"reminderd/internal/domain"
	"reminderd/internal/links"
	"reminderd/internal/metrics"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "s3cret"

type fakeRunner struct {
	sum   dispatch.Summary
	err   error
	calls int
}

func (f *fakeRunner) Run(context.Context) (dispatch.Summary, error) {
	f.calls++
	return f.sum, f.err
}

type fakePlanner struct {
	gotEvent   string
	gotChannel domain.Channel
	gotStages  []domain.Stage
}

func (f *fakePlanner) Schedule(_ context.Context, eventID string, ch domain.Channel, stages []domain.Stage) ([]domain.Obligation, error) {
	if !ch.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidChannel, ch)
	}
	if eventID == "missing" {
		return nil, fmt.Errorf("load event: %w", storage.ErrNotFound)
	}
	f.gotEvent, f.gotChannel, f.gotStages = eventID, ch, stages
	out := make([]domain.Obligation, 0, len(stages))
	for i, st := range stages {
		out = append(out, domain.Obligation{
			ID:          fmt.Sprintf("ob-%d", i),
			EventID:     eventID,
			Channel:     ch,
			Stage:       st,
			ScheduledAt: time.Date(2024, 10, 24, 14, 0, 0, 0, time.UTC),
			Status:      domain.StatusScheduled,
		})
	}
	return out, nil
}

type fakeStore struct {
	revoked map[string]domain.RecipientKind
}

func (f *fakeStore) ListObligations(context.Context, string) ([]domain.Obligation, error) {
	return []domain.Obligation{{ID: "ob-1", Status: domain.StatusSent, SentCount: 3}}, nil
}

func (f *fakeStore) RevokeConsent(_ context.Context, kind domain.RecipientKind, id string) error {
	if id == "gone" {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	if f.revoked == nil {
		f.revoked = map[string]domain.RecipientKind{}
	}
	f.revoked[id] = kind
	return nil
}

type harness struct {
	srv     *Server
	runner  *fakeRunner
	planner *fakePlanner
	store   *fakeStore
	signer  *links.Signer
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()
	signer, err := links.NewSigner("https://events.example.com", "link-key", time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	h := &harness{
		runner:  &fakeRunner{sum: dispatch.Summary{Processed: 2, Sent: 5, Failed: 1, Errors: []string{"ob-2: 1 messages rejected"}}},
		planner: &fakePlanner{},
		store:   &fakeStore{},
		signer:  signer,
	}
	h.srv = New(Deps{
		Runner:  h.runner,
		Planner: h.planner,
		Store:   h.store,
		Links:   signer,
		Metrics: metrics.New(),
		Log:     logx.Nop(),
	}, Options{CronSecret: secret})
	return h
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h := newHarness(t, testSecret)
	w := h.do(http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["status"] != "ok" || body["service"] != "reminderd" {
		t.Fatalf("body = %v", body)
	}

	w = h.do(http.MethodGet, "/api/cron/send-notifications", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("trigger GET status = %d", w.Code)
	}
}

func TestTriggerReturnsSummary(t *testing.T) {
	h := newHarness(t, testSecret)
	w := h.do(http.MethodPost, "/api/cron/send-notifications", testSecret, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var got struct {
		Processed int      `json:"processed"`
		Sent      int      `json:"sent"`
		Failed    int      `json:"failed"`
		Errors    []string `json:"errors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Processed != 2 || got.Sent != 5 || got.Failed != 1 || len(got.Errors) != 1 {
		t.Fatalf("summary = %+v", got)
	}
}

func TestTriggerRejectsBadToken(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{name: "missing", secret: testSecret, token: ""},
		{name: "wrong", secret: testSecret, token: "nope"},
		{name: "empty secret", secret: "", token: ""},
		{name: "empty secret any token", secret: "", token: "anything"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.secret)
			w := h.do(http.MethodPost, "/api/cron/send-notifications", tt.token, nil)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", w.Code)
			}
			if h.runner.calls != 0 {
				t.Fatal("runner must not be called")
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["error"] != "unauthorized" {
				t.Fatalf("body = %v", body)
			}
		})
	}
}

func TestTriggerSelectionFailure(t *testing.T) {
	h := newHarness(t, testSecret)
	h.runner.err = errors.New("select due obligations: database is locked")
	w := h.do(http.MethodPost, "/api/cron/send-notifications", testSecret, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSetOptionsRotatesSecret(t *testing.T) {
	h := newHarness(t, testSecret)
	h.srv.SetOptions(Options{CronSecret: "rotated"})
	if w := h.do(http.MethodPost, "/api/cron/send-notifications", testSecret, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("old secret status = %d", w.Code)
	}
	if w := h.do(http.MethodPost, "/api/cron/send-notifications", "rotated", nil); w.Code != http.StatusOK {
		t.Fatalf("new secret status = %d", w.Code)
	}
}

func TestPutSchedule(t *testing.T) {
	h := newHarness(t, testSecret)
	w := h.do(http.MethodPut, "/api/v1/events/ev-1/schedule", testSecret, map[string]any{
		"channel": "both",
		"stages":  []string{"1_day_before", "1_hour_before", "1_day_before"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if h.planner.gotEvent != "ev-1" || h.planner.gotChannel != domain.ChannelBoth || len(h.planner.gotStages) != 2 {
		t.Fatalf("planner got %q %q %v", h.planner.gotEvent, h.planner.gotChannel, h.planner.gotStages)
	}
	var body struct {
		Obligations []obligationResponse `json:"obligations"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Obligations) != 2 || body.Obligations[0].ScheduledAt != "2024-10-24T14:00:00Z" {
		t.Fatalf("obligations = %+v", body.Obligations)
	}
}

func TestPutScheduleErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		body map[string]any
		want int
	}{
		{name: "unknown stage", path: "/api/v1/events/ev-1/schedule", body: map[string]any{"channel": "email", "stages": []string{"2_days_before"}}, want: http.StatusBadRequest},
		{name: "bad channel", path: "/api/v1/events/ev-1/schedule", body: map[string]any{"channel": "fax", "stages": []string{"immediate"}}, want: http.StatusBadRequest},
		{name: "missing channel", path: "/api/v1/events/ev-1/schedule", body: map[string]any{"stages": []string{"immediate"}}, want: http.StatusBadRequest},
		{name: "unknown event", path: "/api/v1/events/missing/schedule", body: map[string]any{"channel": "sms", "stages": []string{"immediate"}}, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSecret)
			if w := h.do(http.MethodPut, tt.path, testSecret, tt.body); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestScheduleRoutesRequireAuth(t *testing.T) {
	h := newHarness(t, testSecret)
	if w := h.do(http.MethodGet, "/api/v1/events/ev-1/schedule", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
	if w := h.do(http.MethodGet, "/api/v1/events/ev-1/schedule", testSecret, nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t, testSecret)
	r := domain.Recipient{Kind: domain.KindContact, ID: "c-1"}
	tok, err := h.signer.Sign("ev-1", r, links.PurposeUnsubscribe)
	if err != nil {
		t.Fatal(err)
	}
	w := h.do(http.MethodGet, "/api/v1/unsubscribe?token="+tok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if h.store.revoked["c-1"] != domain.KindContact {
		t.Fatalf("revoked = %v", h.store.revoked)
	}

	watch, _ := h.signer.Sign("ev-1", r, links.PurposeWatch)
	if w := h.do(http.MethodGet, "/api/v1/unsubscribe?token="+watch, "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("watch token status = %d", w.Code)
	}
	gone, _ := h.signer.Sign("ev-1", domain.Recipient{Kind: domain.KindRegistrant, ID: "gone"}, links.PurposeUnsubscribe)
	if w := h.do(http.MethodGet, "/api/v1/unsubscribe?token="+gone, "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown recipient status = %d", w.Code)
	}
}

func TestUnsubscribeDisabled(t *testing.T) {
	srv := New(Deps{Runner: &fakeRunner{}, Planner: &fakePlanner{}, Store: &fakeStore{}}, Options{CronSecret: testSecret})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/unsubscribe?token=x", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, testSecret)
	_ = h.do(http.MethodPost, "/api/cron/send-notifications", testSecret, nil)
	w := h.do(http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("reminderd_dispatch_runs_total")) {
		t.Fatalf("status = %d", w.Code)
	}
}
