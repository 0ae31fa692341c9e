// Package identity reconciles the local user directory with lifecycle events
// from the external identity provider and cascades identity changes across
// every collection referencing the user.
package identity

// Kind discriminates the provider lifecycle events the engine models.
// Anything else is acknowledged as a no-op for forward compatibility.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
	KindUnknown Kind = "unknown"
)

// CreatedEvent carries the full profile of a newly provisioned account.
// Empty optional fields mean the provider had no value for them.
type CreatedEvent struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
	ImageURL   string
}

// UpdatedEvent carries only the fields present in the provider payload.
// A nil pointer means the field was absent; a pointer to an empty string
// means the provider explicitly cleared it.
type UpdatedEvent struct {
	ExternalID string
	Email      *string
	FirstName  *string
	LastName   *string
	ImageURL   *string
}

// DeletedEvent identifies a deprovisioned account.
type DeletedEvent struct {
	ExternalID string
}

// Event is one verified provider lifecycle event. Exactly the payload
// matching Kind is set; the others are nil.
type Event struct {
	Kind Kind

	Created *CreatedEvent
	Updated *UpdatedEvent
	Deleted *DeletedEvent
}

// ExternalID returns the subject account id regardless of kind, or "" for
// unknown events.
func (e Event) ExternalID() string {
	switch e.Kind {
	case KindCreated:
		if e.Created != nil {
			return e.Created.ExternalID
		}
	case KindUpdated:
		if e.Updated != nil {
			return e.Updated.ExternalID
		}
	case KindDeleted:
		if e.Deleted != nil {
			return e.Deleted.ExternalID
		}
	}
	return ""
}

// Outcome is the engine's answer to one event. Retryable asks the provider's
// at-least-once delivery to redeliver; a non-retryable failure is a malformed
// event the caller should not resend.
type Outcome struct {
	OK        bool
	Retryable bool
	Detail    string
}

func success(detail string) Outcome {
	return Outcome{OK: true, Detail: detail}
}

func retryable(detail string) Outcome {
	return Outcome{Retryable: true, Detail: detail}
}
