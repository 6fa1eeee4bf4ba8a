package recipient

import (
	"context"
	"testing"

	"reminderd/internal/domain"
	"reminderd/internal/storage"
	logx "reminderd/pkg/logx"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw, cc string
		want    string
		ok      bool
	}{
		{"+1 (555) 123-4567", "", "+15551234567", true},
		{"0044 20 7946 0958", "", "+442079460958", true},
		{"0712 345 678", "254", "+254712345678", true},
		{"5551234567", "1", "+15551234567", true},
		{"5551234567", "", "", false},
		{"+12", "", "", false},
		{"+1 555 abc", "", "", false},
		{"", "1", "", false},
		{"+1234567890123456", "", "", false},
		{"0712 345 678", "999", "", false},
		{"+254 712 345 678", "1", "+254712345678", true},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.raw, tt.cc)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("NormalizePhone(%q, %q) = %q, %v; want %q, %v", tt.raw, tt.cc, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in string
		ok bool
	}{
		{"ana@example.com", true},
		{" ana@example.com ", true},
		{"Ana <ana@example.com>", false},
		{"ana@localhost", false},
		{"not-an-email", false},
		{"", false},
		{"ana@@example.com", false},
	}
	for _, tt := range tests {
		if _, ok := NormalizeEmail(tt.in); ok != tt.ok {
			t.Fatalf("NormalizeEmail(%q) ok = %v, want %v", tt.in, ok, tt.ok)
		}
	}
}

func TestRegionForCountryCode(t *testing.T) {
	t.Parallel()
	for cc, want := range map[string]string{"1": "US", "+44": "GB", "254": "KE", "": "ZZ", "999": "ZZ", "x": "ZZ"} {
		if got := RegionForCountryCode(cc); got != want {
			t.Fatalf("RegionForCountryCode(%q) = %q, want %q", cc, got, want)
		}
	}
}

// Channel both: email list and SMS list are filtered independently.
func TestFilterBothChannels(t *testing.T) {
	t.Parallel()
	recips := []domain.Recipient{
		{ID: "a", Email: "a@example.com", Phone: "+15550000001", ConsentEmail: true, ConsentSMS: false},
		{ID: "b", Email: "b@example.com", Phone: "+15550000002", ConsentEmail: false, ConsentSMS: true},
	}
	f := Filter{}
	email := f.Email(recips)
	sms := f.SMS(recips)
	if len(email) != 1 || email[0].ID != "a" {
		t.Fatalf("email targets = %v, want [a]", email)
	}
	if len(sms) != 1 || sms[0].ID != "b" {
		t.Fatalf("sms targets = %v, want [b]", sms)
	}
}

type fakeStore struct {
	integ        map[string]domain.Integration
	contacts     []domain.Recipient
	registrants  []domain.Recipient
	contactCalls int
}

func (f *fakeStore) GetIntegration(_ context.Context, id string) (domain.Integration, error) {
	in, ok := f.integ[id]
	if !ok {
		return domain.Integration{}, storage.ErrNotFound
	}
	return in, nil
}

func (f *fakeStore) ListContacts(_ context.Context, _ string, _ []string) ([]domain.Recipient, error) {
	f.contactCalls++
	return f.contacts, nil
}

func (f *fakeStore) ListRegistrants(_ context.Context, _ string) ([]domain.Recipient, error) {
	return f.registrants, nil
}

func TestResolveSourceSelection(t *testing.T) {
	t.Parallel()

	contacts := []domain.Recipient{{Kind: domain.KindContact, ID: "c1"}}
	regs := []domain.Recipient{
		{Kind: domain.KindRegistrant, ID: "r1"},
		{Kind: domain.KindRegistrant, ID: "r1"},
		{Kind: domain.KindRegistrant, ID: "r2"},
	}
	tests := []struct {
		name      string
		ev        domain.Event
		integ     map[string]domain.Integration
		wantFirst string
		wantLen   int
		wantInteg bool
	}{
		{
			name:      "contacts with active integration",
			ev:        domain.Event{ID: "e", Source: domain.SourceIntegrationContacts, ContactIDs: []string{"c1"}, IntegrationID: "i1"},
			integ:     map[string]domain.Integration{"i1": {ID: "i1", Active: true}},
			wantFirst: "c1", wantLen: 1, wantInteg: true,
		},
		{
			name:      "inactive integration falls back",
			ev:        domain.Event{ID: "e", Source: domain.SourceIntegrationContacts, ContactIDs: []string{"c1"}, IntegrationID: "i1"},
			integ:     map[string]domain.Integration{"i1": {ID: "i1", Active: false}},
			wantFirst: "r1", wantLen: 2,
		},
		{
			name:      "no contact ids falls back",
			ev:        domain.Event{ID: "e", Source: domain.SourceIntegrationContacts, IntegrationID: "i1"},
			integ:     map[string]domain.Integration{"i1": {ID: "i1", Active: true}},
			wantFirst: "r1", wantLen: 2, wantInteg: true,
		},
		{
			name:      "missing integration falls back",
			ev:        domain.Event{ID: "e", Source: domain.SourceIntegrationContacts, ContactIDs: []string{"c1"}, IntegrationID: "gone"},
			wantFirst: "r1", wantLen: 2,
		},
		{
			name:      "registrants default",
			ev:        domain.Event{ID: "e"},
			wantFirst: "r1", wantLen: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := &fakeStore{integ: tt.integ, contacts: contacts, registrants: append([]domain.Recipient(nil), regs...)}
			res, err := NewResolver(st, logx.Nop()).Resolve(context.Background(), tt.ev)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if len(res.Recipients) != tt.wantLen || res.Recipients[0].ID != tt.wantFirst {
				t.Fatalf("recipients = %v, want %d starting with %s", res.Recipients, tt.wantLen, tt.wantFirst)
			}
			if (res.Integration != nil) != tt.wantInteg {
				t.Fatalf("integration = %v, want present=%v", res.Integration, tt.wantInteg)
			}
		})
	}
}
