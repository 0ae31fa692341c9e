package directory

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Callers branch with
// errors.Is; the reconciler treats ErrDuplicateEmail as the conflict-resolver
// trigger, not as a failure.
var (
	ErrNotFound            = errors.New("directory: user not found")
	ErrDuplicateEmail      = errors.New("directory: email already registered under another external id")
	ErrDuplicateExternalID = errors.New("directory: external id already registered")
	ErrUnavailable         = errors.New("directory: store unavailable")
)

// ListFilter narrows and pages a directory listing.
type ListFilter struct {
	ExternalID string
	Email      string
	Role       string
	Limit      int64
	Skip       int64
}

// Store is the user directory contract. Every method is a single blocking
// call against the backing document store; implementations must honor
// context cancellation and deadlines.
type Store interface {
	FindByExternalID(ctx context.Context, externalID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Insert creates a fresh record. It returns ErrDuplicateEmail when the
	// email already exists under a different external id, and
	// ErrDuplicateExternalID when the external id itself already exists.
	Insert(ctx context.Context, u User) (*User, error)

	// Rekey moves an existing record from oldExternalID to newExternalID and
	// merges in overrides, preferring new non-empty values. The row keeps its
	// email, role, phone number and creation time.
	Rekey(ctx context.Context, oldExternalID, newExternalID string, overrides ProfileOverrides) (*User, error)

	// UpdateProfile applies a partial update to the record. Returns
	// ErrNotFound when no record exists under externalID.
	UpdateProfile(ctx context.Context, externalID string, patch ProfilePatch) (*User, error)

	// Delete removes the record and returns it. Returns ErrNotFound when the
	// record is already gone.
	Delete(ctx context.Context, externalID string) (*User, error)

	// List returns matching users plus the total count for pagination.
	List(ctx context.Context, f ListFilter) ([]User, int64, error)

	// MarkDeleted records that the provider deprovisioned externalID.
	// Idempotent. The tombstone is what authorizes the consistency sweep to
	// finish a delete cascade: a missing user row alone is not proof of
	// deletion, since a mid-rekey identity also has no row under its old key.
	MarkDeleted(ctx context.Context, externalID string) error

	// WasDeleted reports whether a deletion tombstone exists for externalID.
	WasDeleted(ctx context.Context, externalID string) (bool, error)
}
