package oauth

import (
	"time"
)

// Token is the credential material issued by the token endpoint. A refresh
// produces a brand-new Token that fully supersedes the old one, including a
// rotated RefreshToken; Token values are never mutated in place.
//
// ExpiresAt is Unix seconds (fractional allowed) so token files written by
// earlier releases of this format stay readable.
type Token struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresAt    float64 `json:"expires_at"`
	Scope        string  `json:"scope"`
	TokenType    string  `json:"token_type"`
}

// Expiry returns ExpiresAt as a time.Time; the zero time when unset.
func (t *Token) Expiry() time.Time {
	if t.ExpiresAt == 0 {
		return time.Time{}
	}
	sec := int64(t.ExpiresAt)
	nsec := int64((t.ExpiresAt - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// FreshAt reports whether the token is valid at now and stays valid for at
// least the given margin.
func (t *Token) FreshAt(now time.Time, margin time.Duration) bool {
	exp := t.Expiry()
	return !exp.IsZero() && exp.After(now) && exp.Sub(now) >= margin
}

// tokenResponse is the token endpoint's success payload for both the device
// grant and the refresh grant.
type tokenResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    float64 `json:"expires_in"`
	Scope        string  `json:"scope"`
	TokenType    string  `json:"token_type"`
}

func (r *tokenResponse) token(now time.Time) *Token {
	return &Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    float64(now.Unix()) + r.ExpiresIn,
		Scope:        r.Scope,
		TokenType:    r.TokenType,
	}
}
