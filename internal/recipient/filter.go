package recipient

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"reminderd/internal/domain"
)

// Filter narrows a resolved audience to the reachable, consenting subset of a channel.
type Filter struct {
	// DefaultCountryCode is used for numbers without an international prefix.
	DefaultCountryCode string
}

// Email returns recipients who opted into email and have a valid bare address.
// The returned copies carry the normalized address.
func (f Filter) Email(in []domain.Recipient) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(in))
	for _, r := range in {
		if !r.ConsentEmail {
			continue
		}
		addr, ok := NormalizeEmail(r.Email)
		if !ok {
			continue
		}
		r.Email = addr
		out = append(out, r)
	}
	return out
}

// SMS returns recipients who opted into SMS and have a phone number that
// normalizes to E.164.
func (f Filter) SMS(in []domain.Recipient) []domain.Recipient {
	out := make([]domain.Recipient, 0, len(in))
	for _, r := range in {
		if !r.ConsentSMS {
			continue
		}
		phone, ok := NormalizePhone(r.Phone, f.DefaultCountryCode)
		if !ok {
			continue
		}
		r.Phone = phone
		out = append(out, r)
	}
	return out
}

var validate = validator.New()

// NormalizeEmail accepts a bare address only ("a@b.c", not "Name <a@b.c>").
func NormalizeEmail(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if err := validate.Var(s, "required,email"); err != nil {
		return "", false
	}
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || !strings.Contains(s[at+1:], ".") {
		return "", false
	}
	return s, true
}

// NormalizePhone returns raw as E.164.
//
// Only digits, a leading "+" and separators (space, dash, dot, parentheses)
// are accepted. A "00" prefix is read as "+". Numbers without a prefix are
// parsed as national numbers of the region owning countryCode; without a
// country code they are rejected.
func NormalizePhone(raw, countryCode string) (string, bool) {
	var b strings.Builder
	plus := false
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			plus = true
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", false
		}
	}
	digits := b.String()
	if digits == "" {
		return "", false
	}

	region := "ZZ"
	switch {
	case plus:
		digits = "+" + digits
	case strings.HasPrefix(digits, "00"):
		digits = "+" + digits[2:]
	default:
		region = RegionForCountryCode(countryCode)
		if region == "ZZ" {
			return "", false
		}
	}
	num, err := phonenumbers.Parse(digits, region)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return "", false
	}
	out := phonenumbers.Format(num, phonenumbers.E164)
	if err := validate.Var(out, "e164"); err != nil {
		return "", false
	}
	return out, true
}

// RegionForCountryCode maps a calling code ("1", "254") to its main region,
// or "ZZ" when the code is empty or unknown.
func RegionForCountryCode(countryCode string) string {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(countryCode), "+"))
	if err != nil || n <= 0 {
		return "ZZ"
	}
	return phonenumbers.GetRegionCodeForCountryCode(n)
}
