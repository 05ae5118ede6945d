package token

import (
	"encoding/json"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-billing-client/internal/utils"
)

// Claim names read from the token payload.
const (
	ClaimUserID  = "user_id"
	ClaimSubject = "sub"
	ClaimEmail   = "email"
	ClaimExpiry  = "exp"
	ClaimRoles   = "roles"
)

// Claims is the decoded payload of a bearer token.
// The typed fields are derived from Raw, which is what gets persisted.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt *time.Time
	Roles     []string
	Raw       jwtlib.MapClaims
}

// ClaimsFromMap builds Claims from a decoded payload. user_id wins over sub when both are present.
func ClaimsFromMap(raw jwtlib.MapClaims) *Claims {
	c := &Claims{Raw: raw}
	if c.Raw == nil {
		c.Raw = jwtlib.MapClaims{}
	}

	if id, ok := utils.ToString(c.Raw[ClaimUserID]); ok {
		c.UserID = id
	} else if sub, ok := utils.ToString(c.Raw[ClaimSubject]); ok {
		c.UserID = sub
	}
	c.Email, _ = c.Raw[ClaimEmail].(string)

	if exp, err := c.Raw.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = utils.Ptr(exp.Time)
	}
	if roles, ok := c.Raw[ClaimRoles].([]any); ok {
		c.Roles = utils.ToStringSlice(roles)
	}
	return c
}

// Expired reports whether the exp claim is at or before now. Tokens without exp never expire client-side.
func (c *Claims) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return !now.Before(*c.ExpiresAt)
}

// ExpiresWithin reports whether the token expires inside the window d starting at now.
func (c *Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c == nil || c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now.Add(d))
}

func (c *Claims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// MarshalJSON persists the raw payload so unknown claims survive a save/load cycle.
func (c Claims) MarshalJSON() ([]byte, error) {
	if c.Raw == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Raw)
}

func (c *Claims) UnmarshalJSON(data []byte) error {
	var raw jwtlib.MapClaims
	if err := unmarshalPayload(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return ErrNotAnObject
	}
	*c = *ClaimsFromMap(raw)
	return nil
}
