package models

import "time"

// Account is the remote identity shown to the user. It plays no part in
// conflict resolution.
type Account struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture,omitempty"`
}

// SyncMeta is the connection metadata persisted next to the state.
type SyncMeta struct {
	FileID        string     `json:"fileId"`
	LastSyncedAt  *time.Time `json:"lastSyncedAt,omitempty"`
	LastCheckedAt *time.Time `json:"lastCheckedAt,omitempty"`
	Account       *Account   `json:"account,omitempty"`
}
