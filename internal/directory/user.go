// Package directory owns the local user records mirrored from the external
// identity provider. Records are keyed by the provider-issued external id,
// with a secondary uniqueness constraint on email.
package directory

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User roles. Identity events never change a user's role.
const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// User is the authoritative local record for an identity-provider account.
// ExternalID and Email are each unique across the collection.
type User struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"-"`
	ExternalID  string        `bson:"externalId" json:"externalId"`
	Email       string        `bson:"email" json:"email"`
	FirstName   string        `bson:"firstName" json:"firstName"`
	LastName    string        `bson:"lastName" json:"lastName"`
	ImageURL    string        `bson:"imageUrl" json:"imageUrl"`
	Role        string        `bson:"role" json:"role"`
	PhoneNumber string        `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
}

// ProfileOverrides carries profile fields supplied alongside a re-key.
// A non-empty value replaces the stored one; an empty value keeps it.
// An empty string here cannot express "clear this field" — that is only
// possible through ProfilePatch pointer fields.
type ProfileOverrides struct {
	FirstName string
	LastName  string
	ImageURL  string
}

// Apply merges the overrides into u, preferring new non-empty values.
func (o ProfileOverrides) Apply(u *User) {
	if o.FirstName != "" {
		u.FirstName = o.FirstName
	}
	if o.LastName != "" {
		u.LastName = o.LastName
	}
	if o.ImageURL != "" {
		u.ImageURL = o.ImageURL
	}
}

// ProfilePatch is a partial profile update. A nil field is left untouched;
// a non-nil field is written even when it points at an empty string, so an
// explicit clear is distinguishable from "not supplied".
type ProfilePatch struct {
	Email       *string
	FirstName   *string
	LastName    *string
	ImageURL    *string
	PhoneNumber *string
}

// Apply writes every non-nil patch field into u.
func (p ProfilePatch) Apply(u *User) {
	if p.Email != nil && *p.Email != "" {
		u.Email = *p.Email
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.ImageURL != nil {
		u.ImageURL = *p.ImageURL
	}
	if p.PhoneNumber != nil {
		u.PhoneNumber = *p.PhoneNumber
	}
}

// IsEmpty reports whether the patch carries no fields at all.
func (p ProfilePatch) IsEmpty() bool {
	return p.Email == nil && p.FirstName == nil && p.LastName == nil &&
		p.ImageURL == nil && p.PhoneNumber == nil
}
