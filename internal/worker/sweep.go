package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/gebeya-labs/identity-sync/internal/directory"
	"github.com/gebeya-labs/identity-sync/internal/refgraph"
)

// Sweeper audits the reference graph for rows whose owner no longer exists
// in the directory. Owner absence alone is ambiguous — a mid-rekey identity
// also has no row under its old key — so the sweeper only finishes delete
// cascades for keys carrying a deletion tombstone written by the reconciler.
type Sweeper struct {
	directory directory.Store
	graph     refgraph.Collections
	cascade   *refgraph.Orchestrator
	logger    *slog.Logger
}

// NewSweeper wires a sweeper to the directory and the reference graph.
func NewSweeper(store directory.Store, graph refgraph.Collections, cascade *refgraph.Orchestrator, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		directory: store,
		graph:     graph,
		cascade:   cascade,
		logger:    logger,
	}
}

// FindOrphans returns every external id referenced somewhere in the graph
// that has no live directory row and carries a deletion tombstone. Dangling
// keys without a tombstone are logged, never deleted: they belong to an
// in-flight rekey or an inconsistency that needs a human, not a cascade.
func (s *Sweeper) FindOrphans(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var orphans []string

	for _, step := range refgraph.Steps {
		values, err := s.graph.DistinctForeignKeys(ctx, step.Collection, step.Field)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", step.String(), err)
		}
		for _, v := range values {
			if seen[v] {
				continue
			}
			seen[v] = true

			_, err := s.directory.FindByExternalID(ctx, v)
			if err == nil {
				continue
			}
			if !errors.Is(err, directory.ErrNotFound) {
				return nil, fmt.Errorf("failed to look up owner %s: %w", v, err)
			}

			deleted, err := s.directory.WasDeleted(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("failed to look up tombstone for %s: %w", v, err)
			}
			if !deleted {
				s.logger.Warn("dangling reference without deletion record",
					"external_id", v,
					"step", step.String(),
				)
				continue
			}
			orphans = append(orphans, v)
		}
	}
	return orphans, nil
}

// CascadeOrphan re-runs the delete cascade for an orphaned key. It requires
// a deletion tombstone and re-checks owner absence, so neither a mid-rekey
// identity nor a concurrently recreated user is ever swept away.
func (s *Sweeper) CascadeOrphan(ctx context.Context, externalID string) error {
	deleted, err := s.directory.WasDeleted(ctx, externalID)
	if err != nil {
		return fmt.Errorf("failed to look up tombstone: %w", err)
	}
	if !deleted {
		s.logger.Warn("refusing cascade without deletion record", "external_id", externalID)
		return nil
	}

	_, err = s.directory.FindByExternalID(ctx, externalID)
	if err == nil {
		s.logger.Info("owner reappeared, skipping cascade", "external_id", externalID)
		return nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return fmt.Errorf("failed to confirm owner absence: %w", err)
	}

	report := s.cascade.Delete(ctx, externalID)
	if reportErr := report.Err(); reportErr != nil {
		return reportErr
	}
	s.logger.Info("orphaned references removed",
		"external_id", externalID,
		"rows", report.Rows(),
	)
	return nil
}

// handleConsistencySweep scans the graph and enqueues a delete cascade per
// orphaned key.
func handleConsistencySweep(logger *slog.Logger, sweeper *Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		runID := uuid.NewString()
		logger.Info("consistency sweep started", "run_id", runID)

		orphans, err := sweeper.FindOrphans(ctx)
		if err != nil {
			return fmt.Errorf("sweep scan failed: %w", err)
		}

		for _, externalID := range orphans {
			if err := EnqueueDeleteCascade(externalID); err != nil {
				return fmt.Errorf("failed to enqueue cascade for %s: %w", externalID, err)
			}
		}

		logger.Info("consistency sweep finished",
			"run_id", runID,
			"orphans", len(orphans),
		)
		return nil
	}
}

// handleDeleteCascade finishes the delete cascade for one orphaned key.
func handleDeleteCascade(logger *slog.Logger, sweeper *Sweeper) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload struct {
			ExternalID string `json:"external_id"`
		}
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}
		if payload.ExternalID == "" {
			return fmt.Errorf("empty external id: %w", asynq.SkipRetry)
		}

		if err := sweeper.CascadeOrphan(ctx, payload.ExternalID); err != nil {
			logger.Error("orphan cascade failed",
				"external_id", payload.ExternalID,
				"error", err,
			)
			return err
		}
		return nil
	}
}
