package refgraph

import (
	"context"
	"sync"
)

// MemGraph is an in-memory Collections used by tests. Each collection is a
// flat slice of documents holding string fields.
type MemGraph struct {
	mu   sync.Mutex
	rows map[string][]map[string]string

	// FailSteps marks steps whose operations return the given error,
	// simulating a partially failing store.
	failSteps map[Step]error
}

// NewMemGraph returns an empty in-memory reference graph.
func NewMemGraph() *MemGraph {
	return &MemGraph{
		rows:      make(map[string][]map[string]string),
		failSteps: make(map[Step]error),
	}
}

// Add appends a document to a collection.
func (g *MemGraph) Add(collection string, doc map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	copied := make(map[string]string, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	g.rows[collection] = append(g.rows[collection], copied)
}

// FailStep makes every operation on the given step return err. Pass a nil
// err to clear the failure.
func (g *MemGraph) FailStep(s Step, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failSteps, s)
		return
	}
	g.failSteps[s] = err
}

// Count returns how many documents in collection have field == value.
func (g *MemGraph) Count(collection, field, value string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, doc := range g.rows[collection] {
		if doc[field] == value {
			n++
		}
	}
	return n
}

// CountAll returns the total number of documents in collection.
func (g *MemGraph) CountAll(collection string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rows[collection])
}

func (g *MemGraph) RewriteForeignKey(_ context.Context, collection, field, oldValue, newValue string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failSteps[Step{Collection: collection, Field: field}]; err != nil {
		return 0, err
	}
	var n int64
	for _, doc := range g.rows[collection] {
		if doc[field] == oldValue {
			doc[field] = newValue
			n++
		}
	}
	return n, nil
}

func (g *MemGraph) DeleteByForeignKey(_ context.Context, collection, field, value string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failSteps[Step{Collection: collection, Field: field}]; err != nil {
		return 0, err
	}
	var kept []map[string]string
	var n int64
	for _, doc := range g.rows[collection] {
		if doc[field] == value {
			n++
			continue
		}
		kept = append(kept, doc)
	}
	g.rows[collection] = kept
	return n, nil
}

func (g *MemGraph) DistinctForeignKeys(_ context.Context, collection, field string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failSteps[Step{Collection: collection, Field: field}]; err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var values []string
	for _, doc := range g.rows[collection] {
		v := doc[field]
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values, nil
}
