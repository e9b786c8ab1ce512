package moderation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ExpiryKind distinguishes the three parse outcomes of a duration token.
type ExpiryKind int

const (
	ExpiryInvalid ExpiryKind = iota
	ExpiryAt
	ExpiryPermanent
)

// Expiry is an absolute instant, the permanent sentinel or the invalid marker.
type Expiry struct {
	Kind  ExpiryKind
	At    time.Time
	Span  time.Duration
	Token string
}

func (e Expiry) Valid() bool     { return e.Kind != ExpiryInvalid }
func (e Expiry) Permanent() bool { return e.Kind == ExpiryPermanent }

// String renders the expiry for humans ("10m", "permanent").
func (e Expiry) String() string {
	switch e.Kind {
	case ExpiryPermanent:
		return "permanent"
	case ExpiryAt:
		return HumanDuration(e.Span)
	default:
		return "invalid"
	}
}

// Capped limits the expiry to limit after now. A permanent expiry becomes the cap.
func (e Expiry) Capped(now time.Time, limit time.Duration) Expiry {
	if !e.Valid() || (!e.Permanent() && e.Span <= limit) {
		return e
	}
	return Expiry{Kind: ExpiryAt, At: now.Add(limit), Span: limit, Token: e.Token}
}

var permanentTokens = map[string]bool{"permanent": true, "perm": true, "forever": true, "never": true}

var unitSpans = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// ParseDuration resolves a token such as "10m", "2d" or "permanent" against now.
// Non-positive, non-numeric, overflowing or unit-less magnitudes are invalid.
func ParseDuration(text string, now time.Time) Expiry {
	tok := strings.ToLower(strings.TrimSpace(text))
	if tok == "" {
		return Expiry{Kind: ExpiryInvalid}
	}
	if permanentTokens[tok] {
		return Expiry{Kind: ExpiryPermanent, Token: tok}
	}
	unit, ok := unitSpans[tok[len(tok)-1]]
	if !ok || len(tok) < 2 {
		return Expiry{Kind: ExpiryInvalid, Token: tok}
	}
	digits := tok[:len(tok)-1]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return Expiry{Kind: ExpiryInvalid, Token: tok}
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n <= 0 || n > math.MaxInt64/int64(unit) {
		return Expiry{Kind: ExpiryInvalid, Token: tok}
	}
	span := time.Duration(n) * unit
	return Expiry{Kind: ExpiryAt, At: now.Add(span), Span: span, Token: tok}
}

// HumanDuration renders d using the largest whole unit among weeks, days, hours and minutes.
func HumanDuration(d time.Duration) string {
	type unit struct {
		span time.Duration
		name string
	}
	for _, u := range []unit{{7 * 24 * time.Hour, "week"}, {24 * time.Hour, "day"}, {time.Hour, "hour"}, {time.Minute, "minute"}} {
		if d >= u.span && d%u.span == 0 {
			n := int64(d / u.span)
			if n == 1 {
				return fmt.Sprintf("1 %s", u.name)
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return d.String()
}
