// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents one person who has signed in through the identity provider.
//
// ExternalID is the provider's stable id (a Discord snowflake). We still
// generate our own internal string ID (xid) so our keys are not tied to the
// provider's numbering scheme. The UNIQUE constraint on external_id makes
// every login an upsert onto the same row.
//
// RequestIDs and ResponseIDs are back-references derived from the requests
// and responses tables. They are filled on reads and ignored on writes.
type User struct {
	ID          string          `json:"id"`
	ExternalID  string          `json:"externalId,omitempty"`
	Username    string          `json:"username"`
	DisplayName string          `json:"displayName"`
	Avatar      string          `json:"avatar"`
	Email       string          `json:"email,omitempty"`
	Location    Location        `json:"location"`
	Bio         string          `json:"bio"`
	Contact     []ContactMethod `json:"contactMethods"`
	Skills      []string        `json:"skills"`
	Offers      []string        `json:"offers"`
	OpenToHelp  bool            `json:"openToHelp"`
	Points      int             `json:"points"`
	HelpedCount int             `json:"helpedCount"`
	RequestIDs  []string        `json:"requests"`
	ResponseIDs []string        `json:"responses"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Location is where a user says they are. City and State are derived from
// Zipcode by the location lookup; Label is free text ("near the library").
type Location struct {
	Zipcode string `json:"zipcode"`
	City    string `json:"city"`
	State   string `json:"state"`
	Label   string `json:"label"`
}

// HasState reports whether the location is usable for state-scoped visibility.
func (l Location) HasState() bool {
	return l.State != ""
}

// ContactMethod is one way to reach a user, e.g. {"Phone", "555-0100"}.
type ContactMethod struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Name returns the display name, falling back to the provider username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// UserSummary is the slice of a user embedded in request payloads.
type UserSummary struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// Summary returns the public summary of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.Name(),
		Avatar:      u.Avatar,
	}
}
