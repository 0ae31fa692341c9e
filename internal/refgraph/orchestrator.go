package refgraph

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator fans a cascade out over every step of the reference graph.
// Steps run concurrently and independently: a failed step never aborts its
// siblings, so each run makes maximum forward progress and the caller decides
// whether to retry from the aggregated report.
type Orchestrator struct {
	graph       Collections
	steps       []Step
	stepTimeout time.Duration
	logger      *slog.Logger
}

// NewOrchestrator builds an orchestrator over the fixed reference graph.
// stepTimeout bounds each individual store call.
func NewOrchestrator(graph Collections, stepTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if stepTimeout <= 0 {
		stepTimeout = 10 * time.Second
	}
	return &Orchestrator{
		graph:       graph,
		steps:       Steps,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

// Rewrite updates every reference from oldKey to newKey across the graph.
func (o *Orchestrator) Rewrite(ctx context.Context, oldKey, newKey string) Report {
	return o.run(ctx, func(ctx context.Context, s Step) (int64, error) {
		return o.graph.RewriteForeignKey(ctx, s.Collection, s.Field, oldKey, newKey)
	}, "rewrite", oldKey)
}

// Delete removes every row referencing key across the graph.
func (o *Orchestrator) Delete(ctx context.Context, key string) Report {
	return o.run(ctx, func(ctx context.Context, s Step) (int64, error) {
		return o.graph.DeleteByForeignKey(ctx, s.Collection, s.Field, key)
	}, "delete", key)
}

func (o *Orchestrator) run(ctx context.Context, op func(context.Context, Step) (int64, error), mode, key string) Report {
	outcomes := make([]StepOutcome, len(o.steps))

	var wg sync.WaitGroup
	for i, step := range o.steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()

			stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
			defer cancel()

			rows, err := op(stepCtx, step)
			outcomes[i] = StepOutcome{Step: step, Rows: rows, Err: err}
			if err != nil {
				o.logger.Error("cascade step failed",
					"mode", mode,
					"step", step.String(),
					"key", key,
					"error", err,
				)
			}
		}(i, step)
	}
	wg.Wait()

	report := Report{Steps: outcomes}
	if report.OK() {
		o.logger.Info("cascade complete",
			"mode", mode,
			"key", key,
			"rows", report.Rows(),
		)
	}
	return report
}
