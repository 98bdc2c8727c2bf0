// Package identity defines the user record shared by every session source.
package identity

import "strings"

// Origin marks which session source produced a record.
type Origin string

const (
	OriginFirstParty   Origin = "first-party"
	OriginBackingStore Origin = "backing-store"
	OriginUnknown      Origin = "unknown"
)

// Record is the reconciled view of a user. ID is the opaque identity key;
// Email and Name are optional.
type Record struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Origin Origin `json:"origin,omitempty"`
}

// Valid reports whether the record carries a usable identity key. Records
// failing this are never persisted.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.ID) != ""
}

// IsAdminEmail reports whether email belongs to the organizational domain.
func IsAdminEmail(email, orgDomain string) bool {
	if email == "" || orgDomain == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(email), "@"+strings.ToLower(orgDomain))
}
