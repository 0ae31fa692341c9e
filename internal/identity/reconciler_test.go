package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gebeya-labs/identity-sync/internal/directory"
	"github.com/gebeya-labs/identity-sync/internal/refgraph"
)

func newTestReconciler(t *testing.T) (*Reconciler, *directory.MemStore, *refgraph.MemGraph) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := directory.NewMemStore()
	graph := refgraph.NewMemGraph()
	cascade := refgraph.NewOrchestrator(graph, 0, logger)
	return NewReconciler(store, cascade, logger), store, graph
}

func createdEvent(externalID, email string) Event {
	return Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: externalID,
			Email:      email,
			FirstName:  "Abel",
			LastName:   "Tesfaye",
		},
	}
}

func TestPlainInsertNoCascade(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	ctx := context.Background()

	graph.Add("cars", map[string]string{"userId": "someone-else"})

	out := r.Handle(ctx, createdEvent("u5", "b@y.com"))
	require.True(t, out.OK)

	u, err := store.FindByExternalID(ctx, "u5")
	require.NoError(t, err)
	require.Equal(t, "b@y.com", u.Email)
	require.Equal(t, directory.RoleCustomer, u.Role)

	// Unrelated references stay put.
	require.Equal(t, 1, graph.Count("cars", "userId", "someone-else"))
}

func TestCreatedIdempotent(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	ev := createdEvent("u1", "a@x.com")
	require.True(t, r.Handle(ctx, ev).OK)
	require.True(t, r.Handle(ctx, ev).OK)

	require.Equal(t, 1, store.Count())
}

func TestEmailCollisionRekeysAndRewrites(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, createdEvent("u1", "a@x.com")).OK)
	for i := 0; i < 3; i++ {
		graph.Add("cars", map[string]string{"userId": "u1"})
	}
	graph.Add("reviews", map[string]string{"authorId": "u1", "subjectId": "other"})
	graph.Add("reviews", map[string]string{"authorId": "u1", "subjectId": "other"})
	graph.Add("payments", map[string]string{"userId": "u1"})

	out := r.Handle(ctx, Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: "u2",
			Email:      "a@x.com",
			FirstName:  "Abel",
		},
	})
	require.True(t, out.OK)

	// One directory row, under the new key.
	require.Equal(t, 1, store.Count())
	_, err := store.FindByExternalID(ctx, "u1")
	require.ErrorIs(t, err, directory.ErrNotFound)
	u, err := store.FindByExternalID(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", u.Email)

	// Every reference now points at the new key; none at the old one.
	require.Equal(t, 3, graph.Count("cars", "userId", "u2"))
	require.Equal(t, 2, graph.Count("reviews", "authorId", "u2"))
	require.Equal(t, 1, graph.Count("payments", "userId", "u2"))
	for _, step := range refgraph.Steps {
		require.Zero(t, graph.Count(step.Collection, step.Field, "u1"),
			"stale reference in %s", step.String())
	}
}

func TestRekeyMergePrefersNewNonEmpty(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: "u1",
			Email:      "a@x.com",
			FirstName:  "John",
			LastName:   "Doe",
			ImageURL:   "http://img/old",
		},
	}).OK)

	// New identity supplies a first name but no last name or image.
	require.True(t, r.Handle(ctx, Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: "u2",
			Email:      "a@x.com",
			FirstName:  "Jane",
		},
	}).OK)

	u, err := store.FindByExternalID(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "Jane", u.FirstName)
	require.Equal(t, "Doe", u.LastName)
	require.Equal(t, "http://img/old", u.ImageURL)
}

func TestRekeyPartialCascadeRetryConverges(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, createdEvent("u1", "a@x.com")).OK)
	graph.Add("cars", map[string]string{"userId": "u1"})
	graph.Add("payments", map[string]string{"userId": "u1"})

	boom := errors.New("step down")
	graph.FailStep(refgraph.Step{Collection: "payments", Field: "userId"}, boom)

	ev := createdEvent("u2", "a@x.com")
	out := r.Handle(ctx, ev)
	require.False(t, out.OK)
	require.True(t, out.Retryable)

	// The healthy steps made forward progress despite the failure.
	require.Equal(t, 1, graph.Count("cars", "userId", "u2"))
	require.Equal(t, 1, graph.Count("payments", "userId", "u1"))

	// The directory row must still sit under the old key, otherwise the
	// redelivered Created would be acknowledged as a duplicate instead of
	// re-entering the collision path.
	_, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)

	// Redelivery after the store recovers finishes the job.
	graph.FailStep(refgraph.Step{Collection: "payments", Field: "userId"}, nil)
	out = r.Handle(ctx, ev)
	require.True(t, out.OK)

	require.Equal(t, 1, store.Count())
	require.Equal(t, 1, graph.Count("cars", "userId", "u2"))
	require.Equal(t, 1, graph.Count("payments", "userId", "u2"))
	require.Zero(t, graph.Count("payments", "userId", "u1"))

	// A rekey never writes a deletion tombstone for the old key, so the
	// consistency sweep has no authority over in-flight rekey references.
	deleted, err := store.WasDeleted(ctx, "u1")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestDeletedRemovesUserAndReferences(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, createdEvent("u1", "a@x.com")).OK)
	graph.Add("cars", map[string]string{"userId": "u1"})
	graph.Add("cars", map[string]string{"userId": "u1"})
	graph.Add("notifications", map[string]string{"userId": "u1"})

	out := r.Handle(ctx, Event{Kind: KindDeleted, Deleted: &DeletedEvent{ExternalID: "u1"}})
	require.True(t, out.OK)

	_, err := store.FindByExternalID(ctx, "u1")
	require.ErrorIs(t, err, directory.ErrNotFound)
	require.Zero(t, graph.Count("cars", "userId", "u1"))
	require.Zero(t, graph.Count("notifications", "userId", "u1"))

	deleted, err := store.WasDeleted(ctx, "u1")
	require.NoError(t, err)
	require.True(t, deleted, "deletion must leave a tombstone for the sweep")
}

func TestDeletedPartialCascadeKeepsUser(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, createdEvent("u1", "a@x.com")).OK)
	graph.Add("cars", map[string]string{"userId": "u1"})
	graph.Add("notifications", map[string]string{"userId": "u1"})

	boom := errors.New("step down")
	graph.FailStep(refgraph.Step{Collection: "notifications", Field: "userId"}, boom)

	ev := Event{Kind: KindDeleted, Deleted: &DeletedEvent{ExternalID: "u1"}}
	out := r.Handle(ctx, ev)
	require.False(t, out.OK)
	require.True(t, out.Retryable)

	// The root row must survive until every reference is gone.
	_, err := store.FindByExternalID(ctx, "u1")
	require.NoError(t, err)

	graph.FailStep(refgraph.Step{Collection: "notifications", Field: "userId"}, nil)
	require.True(t, r.Handle(ctx, ev).OK)

	_, err = store.FindByExternalID(ctx, "u1")
	require.ErrorIs(t, err, directory.ErrNotFound)
	require.Zero(t, graph.CountAll("notifications"))
}

func TestDeletedUnknownUserIsSuccess(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	out := r.Handle(context.Background(), Event{
		Kind:    KindDeleted,
		Deleted: &DeletedEvent{ExternalID: "u4"},
	})
	require.True(t, out.OK)
	require.Zero(t, store.Count())
}

func TestUpdatedPatchesOnlySuppliedFields(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: "u3",
			Email:      "c@z.com",
			FirstName:  "John",
			LastName:   "Doe",
		},
	}).OK)

	first := "Jane"
	out := r.Handle(ctx, Event{
		Kind: KindUpdated,
		Updated: &UpdatedEvent{
			ExternalID: "u3",
			FirstName:  &first,
		},
	})
	require.True(t, out.OK)

	u, err := store.FindByExternalID(ctx, "u3")
	require.NoError(t, err)
	require.Equal(t, "Jane", u.FirstName)
	require.Equal(t, "Doe", u.LastName)
	require.Equal(t, "c@z.com", u.Email)
}

func TestUpdatedExplicitClear(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, Event{
		Kind: KindCreated,
		Created: &CreatedEvent{
			ExternalID: "u3",
			Email:      "c@z.com",
			FirstName:  "John",
			LastName:   "Doe",
		},
	}).OK)

	empty := ""
	require.True(t, r.Handle(ctx, Event{
		Kind: KindUpdated,
		Updated: &UpdatedEvent{
			ExternalID: "u3",
			LastName:   &empty,
		},
	}).OK)

	u, err := store.FindByExternalID(ctx, "u3")
	require.NoError(t, err)
	require.Equal(t, "John", u.FirstName)
	require.Empty(t, u.LastName)
}

func TestUpdatedForMissingUserSynthesizesInsert(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	email := "late@x.com"
	first := "Sara"
	out := r.Handle(ctx, Event{
		Kind: KindUpdated,
		Updated: &UpdatedEvent{
			ExternalID: "u9",
			Email:      &email,
			FirstName:  &first,
		},
	})
	require.True(t, out.OK)

	u, err := store.FindByExternalID(ctx, "u9")
	require.NoError(t, err)
	require.Equal(t, "late@x.com", u.Email)
	require.Equal(t, "Sara", u.FirstName)
	require.Equal(t, directory.RoleCustomer, u.Role)
}

func TestUpdatedForMissingUserWithoutEmailIsAcked(t *testing.T) {
	r, store, _ := newTestReconciler(t)

	first := "Sara"
	out := r.Handle(context.Background(), Event{
		Kind: KindUpdated,
		Updated: &UpdatedEvent{
			ExternalID: "u9",
			FirstName:  &first,
		},
	})
	require.True(t, out.OK)
	require.Zero(t, store.Count())
}

func TestUnknownKindIsNoOpSuccess(t *testing.T) {
	r, store, graph := newTestReconciler(t)
	graph.Add("cars", map[string]string{"userId": "u1"})

	out := r.Handle(context.Background(), Event{Kind: KindUnknown})
	require.True(t, out.OK)
	require.Zero(t, store.Count())
	require.Equal(t, 1, graph.CountAll("cars"))
}

func TestMalformedEventsAreNotRetryable(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	for _, ev := range []Event{
		{Kind: KindCreated, Created: &CreatedEvent{Email: "a@x.com"}},
		{Kind: KindCreated, Created: &CreatedEvent{ExternalID: "u1"}},
		{Kind: KindUpdated, Updated: &UpdatedEvent{}},
		{Kind: KindDeleted, Deleted: &DeletedEvent{}},
	} {
		out := r.Handle(ctx, ev)
		require.False(t, out.OK, "event %+v", ev)
		require.False(t, out.Retryable, "event %+v", ev)
	}
}

func TestEmailUniquenessHolds(t *testing.T) {
	r, store, _ := newTestReconciler(t)
	ctx := context.Background()

	require.True(t, r.Handle(ctx, createdEvent("u1", "a@x.com")).OK)
	require.True(t, r.Handle(ctx, createdEvent("u2", "a@x.com")).OK)
	require.True(t, r.Handle(ctx, createdEvent("u3", "b@x.com")).OK)

	require.Equal(t, 2, store.Count())
	u, err := store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "u2", u.ExternalID)
}
