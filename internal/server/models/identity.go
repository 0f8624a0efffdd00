// Package models holds the server-side data types persisted by repositories.
package models

import "time"

// Identity is a registered principal. RenewalToken and RenewalTokenExpiry
// are either both nil or both set; use SetRenewal and ClearRenewal.
type Identity struct {
	ID                 int64
	UserName           string
	DisplayName        string
	Email              *string
	Phone              *string
	PasswordVerifier   string
	Role               Role
	RenewalToken       *string
	RenewalTokenExpiry *time.Time
	LastLoginAt        *time.Time
	Active             bool
	CreatedAt          time.Time
}

// SetRenewal installs token as the single current renewal token,
// overwriting any previous one.
func (i *Identity) SetRenewal(token string, expiresAt time.Time) {
	i.RenewalToken = &token
	i.RenewalTokenExpiry = &expiresAt
}

// ClearRenewal ends the session held by the identity.
func (i *Identity) ClearRenewal() {
	i.RenewalToken = nil
	i.RenewalTokenExpiry = nil
}

// HasSession reports whether a renewal token is stored and not expired at now.
func (i *Identity) HasSession(now time.Time) bool {
	return i.RenewalToken != nil && i.RenewalTokenExpiry != nil && i.RenewalTokenExpiry.After(now)
}

// Summary returns the outward projection without credential fields.
func (i *Identity) Summary() IdentitySummary {
	return IdentitySummary{
		ID:          i.ID,
		UserName:    i.UserName,
		DisplayName: i.DisplayName,
		Email:       i.Email,
		Phone:       i.Phone,
		Role:        i.Role,
		Active:      i.Active,
	}
}

// IdentitySummary is what handlers may return to clients.
type IdentitySummary struct {
	ID          int64   `json:"id"`
	UserName    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	Email       *string `json:"email,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Role        Role    `json:"role"`
	Active      bool    `json:"active"`
}
