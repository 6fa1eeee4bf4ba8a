// Package links builds and verifies the signed watch and unsubscribe URLs
// embedded in reminder messages.
package links

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"reminderd/internal/domain"
)

type Purpose string

const (
	PurposeWatch       Purpose = "watch"
	PurposeUnsubscribe Purpose = "unsubscribe"
)

const issuer = "reminderd"

var (
	ErrDisabled     = errors.New("signed links disabled")
	ErrInvalidToken = errors.New("invalid link token")
)

// Claims identify one recipient of one event.
type Claims struct {
	jwt.RegisteredClaims
	EventID string               `json:"evt"`
	Kind    domain.RecipientKind `json:"knd"`
	Purpose Purpose              `json:"pur"`
}

// Signer issues HS256 link tokens. A nil *Signer renders empty URLs.
type Signer struct {
	base   *url.URL
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns ErrDisabled when baseURL or secret is empty.
// ttl <= 0 means 30 days.
func NewSigner(baseURL, secret string, ttl time.Duration) (*Signer, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" || secret == "" {
		return nil, ErrDisabled
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("links.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("links.base_url: unsupported scheme %q", u.Scheme)
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Signer{base: u, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WatchURL links to the event page for r.
func (s *Signer) WatchURL(eventID string, r domain.Recipient) string {
	return s.build("/events/"+url.PathEscape(eventID)+"/watch", eventID, r, PurposeWatch)
}

// UnsubscribeURL revokes r's consent when followed.
func (s *Signer) UnsubscribeURL(eventID string, r domain.Recipient) string {
	return s.build("/unsubscribe", eventID, r, PurposeUnsubscribe)
}

func (s *Signer) build(path, eventID string, r domain.Recipient, p Purpose) string {
	if s == nil || r.ID == "" {
		return ""
	}
	tok, err := s.Sign(eventID, r, p)
	if err != nil {
		return ""
	}
	u := *s.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	q := url.Values{"token": {tok}}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Signer) Sign(eventID string, r domain.Recipient, p Purpose) (string, error) {
	if s == nil {
		return "", ErrDisabled
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   r.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		EventID: eventID,
		Kind:    r.Kind,
		Purpose: p,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return signed, nil
}

// Verify parses token and checks it was issued for want.
func (s *Signer) Verify(token string, want Purpose) (Claims, error) {
	if s == nil {
		return Claims{}, ErrDisabled
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	if claims.Purpose != want || claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: purpose %q", ErrInvalidToken, claims.Purpose)
	}
	return claims, nil
}
