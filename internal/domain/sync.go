package domain

import "errors"

// SyncStatus is the user-visible indicator for the sync session.
type SyncStatus string

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusLocal   SyncStatus = "local"
	SyncStatusError   SyncStatus = "error"
)

// Identity describes the authenticated user as supplied by the external
// auth collaborator.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoUrl"`
}

// Classified remote failures. The write path retries exactly once after a
// token refresh on ErrAuthExpired; ErrPermissionDenied is never retried.
var (
	ErrAuthExpired      = errors.New("authentication expired")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

// WriteResult reports how a mutation landed.
type WriteResult struct {
	// LocalOK is true when the local cache holds the change. It is true for
	// every result the write path returns; a mutation that cannot land
	// locally fails outright instead.
	LocalOK bool `json:"localOk"`
	// RemoteOK is true when the mirrored remote write was confirmed.
	RemoteOK bool `json:"remoteOk"`
	// Duplicate is set on addArticle when the normalized URL matches an
	// existing record. Soft signal; the caller decides what to do.
	Duplicate bool `json:"duplicate,omitempty"`
	// DuplicateID names the colliding record when Duplicate is set.
	DuplicateID string `json:"duplicateId,omitempty"`
}
