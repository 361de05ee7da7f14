package models

// UserKind distinguishes registered members from bot/persona accounts,
// which carry no credential.
type UserKind string

const (
	UserMember UserKind = "member"
	UserBot    UserKind = "bot"
)

// Status is the presence status of a user.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

type User struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	PasswordHash string   `json:"password_hash,omitempty"`
	Kind         UserKind `json:"kind"`
	Status       Status   `json:"status"`
	// LastActiveTS and CreatedTS are UTC nanoseconds.
	LastActiveTS int64 `json:"last_active_ts"`
	CreatedTS    int64 `json:"created_ts"`
	// Role and Bio are only set on persona accounts.
	Role string `json:"role,omitempty"`
	Bio  string `json:"bio,omitempty"`
}
