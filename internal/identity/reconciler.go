package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gebeya-labs/identity-sync/internal/directory"
	"github.com/gebeya-labs/identity-sync/internal/refgraph"
)

// Reconciler applies provider lifecycle events to the directory and drives
// the reference-graph cascade. Every path is idempotent, so a redelivered
// event converges to the same end state.
type Reconciler struct {
	directory directory.Store
	cascade   *refgraph.Orchestrator
	logger    *slog.Logger
}

// NewReconciler wires the reconciler to its collaborators.
func NewReconciler(store directory.Store, cascade *refgraph.Orchestrator, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		directory: store,
		cascade:   cascade,
		logger:    logger,
	}
}

// Handle processes exactly one event and reports the outcome the delivery
// mechanism needs: success acknowledges, retryable failure requests
// redelivery. Unknown kinds are acknowledged untouched.
func (r *Reconciler) Handle(ctx context.Context, ev Event) Outcome {
	switch ev.Kind {
	case KindCreated:
		if ev.Created == nil || ev.Created.ExternalID == "" || ev.Created.Email == "" {
			return Outcome{Detail: "created event missing external id or email"}
		}
		return r.handleCreated(ctx, *ev.Created)
	case KindUpdated:
		if ev.Updated == nil || ev.Updated.ExternalID == "" {
			return Outcome{Detail: "updated event missing external id"}
		}
		return r.handleUpdated(ctx, *ev.Updated)
	case KindDeleted:
		if ev.Deleted == nil || ev.Deleted.ExternalID == "" {
			return Outcome{Detail: "deleted event missing external id"}
		}
		return r.handleDeleted(ctx, *ev.Deleted)
	default:
		r.logger.Info("ignoring unsupported event kind", "kind", ev.Kind)
		return success("unsupported event kind acknowledged")
	}
}

// handleCreated inserts the user, falling back to conflict resolution when
// the email already exists under a different external id: the existing row
// is rekeyed to the new id and every reference in the graph is rewritten, so
// the account keeps its listings, reviews and payments.
func (r *Reconciler) handleCreated(ctx context.Context, ev CreatedEvent) Outcome {
	_, err := r.directory.Insert(ctx, directory.User{
		ExternalID: ev.ExternalID,
		Email:      ev.Email,
		FirstName:  ev.FirstName,
		LastName:   ev.LastName,
		ImageURL:   ev.ImageURL,
		Role:       directory.RoleCustomer,
	})
	if err == nil {
		r.logger.Info("user created", "external_id", ev.ExternalID)
		return success("user created")
	}

	if errors.Is(err, directory.ErrDuplicateExternalID) {
		// Redelivered Created for an id we already hold.
		return success("user already exists")
	}

	if !errors.Is(err, directory.ErrDuplicateEmail) {
		return retryable(fmt.Sprintf("insert failed: %v", err))
	}

	return r.resolveEmailCollision(ctx, ev)
}

// resolveEmailCollision handles the same email re-registering under a new
// external id (account recreated at the provider, or a provider migration).
func (r *Reconciler) resolveEmailCollision(ctx context.Context, ev CreatedEvent) Outcome {
	existing, err := r.directory.FindByEmail(ctx, ev.Email)
	if errors.Is(err, directory.ErrNotFound) {
		// The colliding row vanished between insert and lookup; let the
		// provider redeliver and take the plain-insert path.
		return retryable("colliding user disappeared, retry")
	}
	if err != nil {
		return retryable(fmt.Sprintf("lookup by email failed: %v", err))
	}

	oldExternalID := existing.ExternalID
	if oldExternalID == ev.ExternalID {
		// Same id, same email: a replay of an already-processed Created.
		return success("user already exists")
	}

	// Rewrite the reference graph before moving the directory row. The row
	// staying under the old key keeps this path re-entrant: a redelivery
	// after a partial cascade takes the ErrDuplicateEmail branch again and
	// the idempotent rewrites converge. Rekeying first would acknowledge the
	// redelivery as a duplicate and strand the old-key references forever.
	report := r.cascade.Rewrite(ctx, oldExternalID, ev.ExternalID)
	if err := report.Err(); err != nil {
		return retryable(fmt.Sprintf("rekey cascade incomplete: %v", err))
	}

	_, err = r.directory.Rekey(ctx, oldExternalID, ev.ExternalID, directory.ProfileOverrides{
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
		ImageURL:  ev.ImageURL,
	})
	if err != nil {
		return retryable(fmt.Sprintf("rekey %s -> %s failed: %v", oldExternalID, ev.ExternalID, err))
	}

	r.logger.Info("identity rekeyed",
		"old_external_id", oldExternalID,
		"new_external_id", ev.ExternalID,
	)
	return success("user rekeyed and references rewritten")
}

// handleUpdated patches the stored profile. A missing row is treated as a
// missed Created and synthesized from whatever fields are present, since the
// provider may deliver Updated before Created is durably processed.
func (r *Reconciler) handleUpdated(ctx context.Context, ev UpdatedEvent) Outcome {
	patch := directory.ProfilePatch{
		Email:     ev.Email,
		FirstName: ev.FirstName,
		LastName:  ev.LastName,
		ImageURL:  ev.ImageURL,
	}

	_, err := r.directory.UpdateProfile(ctx, ev.ExternalID, patch)
	if err == nil {
		return success("profile updated")
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return retryable(fmt.Sprintf("profile update failed: %v", err))
	}

	synth := directory.User{
		ExternalID: ev.ExternalID,
		Role:       directory.RoleCustomer,
	}
	if ev.Email != nil {
		synth.Email = *ev.Email
	}
	if ev.FirstName != nil {
		synth.FirstName = *ev.FirstName
	}
	if ev.LastName != nil {
		synth.LastName = *ev.LastName
	}
	if ev.ImageURL != nil {
		synth.ImageURL = *ev.ImageURL
	}
	if synth.Email == "" {
		// Nothing to key the synthesized row on; the provider will redeliver
		// Created if the account truly exists.
		return success("update for unknown user without email ignored")
	}

	if _, err := r.directory.Insert(ctx, synth); err != nil {
		if errors.Is(err, directory.ErrDuplicateExternalID) || errors.Is(err, directory.ErrDuplicateEmail) {
			// A concurrent Created beat us to it.
			return success("user materialized concurrently")
		}
		return retryable(fmt.Sprintf("synthesized insert failed: %v", err))
	}
	r.logger.Info("synthesized user from updated event", "external_id", ev.ExternalID)
	return success("missed created synthesized from update")
}

// handleDeleted removes every reference first and the user row last, so a
// crash mid-cascade leaves a retryable state rather than references with no
// possible owner.
func (r *Reconciler) handleDeleted(ctx context.Context, ev DeletedEvent) Outcome {
	_, err := r.directory.FindByExternalID(ctx, ev.ExternalID)
	if errors.Is(err, directory.ErrNotFound) {
		return success("user already deleted")
	}
	if err != nil {
		return retryable(fmt.Sprintf("lookup failed: %v", err))
	}

	// Tombstone before any destruction. The tombstone is what later
	// authorizes the consistency sweep to finish this cascade; without it a
	// missing user row is ambiguous between "deleted" and "mid-rekey".
	if err := r.directory.MarkDeleted(ctx, ev.ExternalID); err != nil {
		return retryable(fmt.Sprintf("tombstone write failed: %v", err))
	}

	report := r.cascade.Delete(ctx, ev.ExternalID)
	if cascadeErr := report.Err(); cascadeErr != nil {
		// Keep the user row until every reference is gone; redelivery
		// finishes the remaining steps.
		return retryable(fmt.Sprintf("delete cascade incomplete: %v", cascadeErr))
	}

	if _, err := r.directory.Delete(ctx, ev.ExternalID); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return success("user already deleted")
		}
		return retryable(fmt.Sprintf("user delete failed: %v", err))
	}

	r.logger.Info("user deleted", "external_id", ev.ExternalID, "cascaded_rows", report.Rows())
	return success("user and references deleted")
}
