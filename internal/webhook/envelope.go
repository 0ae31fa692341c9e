// Package webhook is the HTTP ingress for identity-provider lifecycle
// events. It validates and decodes the provider envelope, deduplicates
// deliveries, and hands typed events to the reconciler.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/gebeya-labs/identity-sync/internal/identity"
)

// Provider event type strings.
const (
	eventUserCreated = "user.created"
	eventUserUpdated = "user.updated"
	eventUserDeleted = "user.deleted"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// userData mirrors the provider's user payload. Pointer fields distinguish
// absent from present-but-null.
type userData struct {
	ID               string            `json:"id"`
	FirstName        *string           `json:"first_name"`
	LastName         *string           `json:"last_name"`
	ImageURL         *string           `json:"image_url"`
	ProfileImageURL  *string           `json:"profile_image_url"`
	EmailAddresses   []emailAddress    `json:"email_addresses"`
	ExternalAccounts []externalAccount `json:"external_accounts"`
}

type emailAddress struct {
	EmailAddress string `json:"email_address"`
}

type externalAccount struct {
	ImageURL string `json:"image_url"`
}

func (d userData) primaryEmail() string {
	if len(d.EmailAddresses) == 0 {
		return ""
	}
	return d.EmailAddresses[0].EmailAddress
}

// profileImage resolves the provider's image fallback chain:
// profile_image_url, then image_url, then the first external account's image.
func (d userData) profileImage() string {
	if d.ProfileImageURL != nil && *d.ProfileImageURL != "" {
		return *d.ProfileImageURL
	}
	if d.ImageURL != nil && *d.ImageURL != "" {
		return *d.ImageURL
	}
	if len(d.ExternalAccounts) > 0 {
		return d.ExternalAccounts[0].ImageURL
	}
	return ""
}

// parseEvent decodes a validated envelope into a typed lifecycle event.
// Unrecognized event types come back with KindUnknown so the caller can
// acknowledge them untouched.
func parseEvent(body []byte) (identity.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return identity.Event{}, fmt.Errorf("failed to decode envelope: %w", err)
	}

	switch env.Type {
	case eventUserCreated:
		var d userData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return identity.Event{}, fmt.Errorf("failed to decode %s data: %w", env.Type, err)
		}
		return identity.Event{
			Kind: identity.KindCreated,
			Created: &identity.CreatedEvent{
				ExternalID: d.ID,
				Email:      d.primaryEmail(),
				FirstName:  derefString(d.FirstName),
				LastName:   derefString(d.LastName),
				ImageURL:   d.profileImage(),
			},
		}, nil

	case eventUserUpdated:
		var d userData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return identity.Event{}, fmt.Errorf("failed to decode %s data: %w", env.Type, err)
		}
		ev := &identity.UpdatedEvent{
			ExternalID: d.ID,
			FirstName:  d.FirstName,
			LastName:   d.LastName,
		}
		if email := d.primaryEmail(); email != "" {
			ev.Email = &email
		}
		if img := d.profileImage(); img != "" {
			ev.ImageURL = &img
		}
		return identity.Event{Kind: identity.KindUpdated, Updated: ev}, nil

	case eventUserDeleted:
		var d userData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return identity.Event{}, fmt.Errorf("failed to decode %s data: %w", env.Type, err)
		}
		return identity.Event{
			Kind:    identity.KindDeleted,
			Deleted: &identity.DeletedEvent{ExternalID: d.ID},
		}, nil

	default:
		return identity.Event{Kind: identity.KindUnknown}, nil
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
