// Package credentials owns the Claude CLI OAuth credential lifecycle: reading
// the on-disk credential file, caching it, detecting expiry, and exchanging
// the refresh token for a new access token.
package credentials

import "time"

// Record is the OAuth state for one logical identity. A record is replaced
// wholesale on refresh; individual fields are never mutated in place.
type Record struct {
	AccessToken      string
	RefreshToken     string
	ExpiresAt        int64 // epoch milliseconds
	Scopes           []string
	SubscriptionType string
	RateLimitTier    string
	OrganizationID   string
}

// ExpiresAtTime converts the epoch-millisecond expiry to a time.Time.
func (r *Record) ExpiresAtTime() time.Time {
	return time.UnixMilli(r.ExpiresAt)
}

// ExpiredAt reports whether the access token should be considered expired at
// the given instant. The buffer moves expiry forward so a token is refreshed
// before it can lapse in the middle of a request.
//
// This is a pure function of its inputs: true iff now >= expiresAt - buffer.
func (r *Record) ExpiredAt(now time.Time, buffer time.Duration) bool {
	return !now.Add(buffer).Before(r.ExpiresAtTime())
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Scopes != nil {
		dup.Scopes = append([]string(nil), r.Scopes...)
	}
	return &dup
}
