// Package refgraph knows every collection that stores a user's external id
// and rewrites or deletes those references in bulk when an identity changes.
package refgraph

// Step identifies one (collection, foreign-key field) pair in the reference
// graph. A collection with two user-valued roles appears twice, once per
// field.
type Step struct {
	Collection string
	Field      string
}

func (s Step) String() string {
	return s.Collection + "." + s.Field
}

// Steps is the fixed reference graph. Every foreign-key field in these
// collections holds a directory external id.
var Steps = []Step{
	{Collection: "cars", Field: "userId"},
	{Collection: "houses", Field: "userId"},
	{Collection: "notifications", Field: "userId"},
	{Collection: "reviews", Field: "authorId"},
	{Collection: "reviews", Field: "subjectId"},
	{Collection: "reports", Field: "reporterId"},
	{Collection: "reports", Field: "subjectId"},
	{Collection: "requests", Field: "senderId"},
	{Collection: "requests", Field: "receiverId"},
	{Collection: "payments", Field: "userId"},
}
