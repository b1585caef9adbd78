// Package registry implements IntegrationRegistry: a lazily-instantiated
// catalog of data-source integrations. A registration failure for one
// source is isolated — it marks that source unavailable without
// preventing the rest of the registry from serving requests, mirroring
// the teacher framework's self-healing registry design.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/brianmills2718/osint-deep-research/integration"
	"github.com/brianmills2718/osint-deep-research/logging"
)

// Status re-exports integration.Status so callers of ListStatus/ListSources
// don't need a second import just to spell the return type.
type Status = integration.Status

// Factory lazily constructs an Integration on first use. Construction is
// deferred so that a source requiring a credential the operator hasn't
// configured only fails when actually selected, not at process start.
type Factory func() (integration.Integration, error)

// Registry is the catalog of known integrations.
type Registry struct {
	mu       sync.Mutex
	factories map[string]Factory
	instances map[string]integration.Integration
	errs      map[string]error
	status    map[string]integration.Status
	logger    logging.Logger

	redis     *redis.Client
	namespace string
}

// New builds an empty Registry. redisURL is optional; when set, status
// changes are mirrored to Redis so other replicas of this engine can read
// source availability without re-probing credentials themselves.
func New(redisURL string, logger logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	r := &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]integration.Integration),
		errs:      make(map[string]error),
		status:    make(map[string]integration.Status),
		logger:    logger,
		namespace: "research",
	}

	if redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("registry: invalid redis URL: %w", err)
		}
		opt.DialTimeout = 5 * time.Second
		opt.ReadTimeout = 5 * time.Second
		opt.WriteTimeout = 5 * time.Second
		r.redis = redis.NewClient(opt)
	}

	return r, nil
}

// Register adds a factory under id. Registering the same id twice
// replaces the prior factory and clears any cached instance/error.
func (r *Registry) Register(id string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[id] = f
	delete(r.instances, id)
	delete(r.errs, id)
}

// Get returns the integration for id, instantiating it on first use. A
// construction failure is cached so repeated Get calls don't repeatedly
// retry a misconfigured source within one run; it is isolated to this id
// and does not affect any other registered source.
func (r *Registry) Get(id string) (integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[id]; ok {
		return inst, nil
	}
	if err, ok := r.errs[id]; ok {
		return nil, err
	}

	factory, ok := r.factories[id]
	if !ok {
		return nil, fmt.Errorf("registry: unknown integration %q", id)
	}

	inst, err := factory()
	if err != nil {
		r.errs[id] = fmt.Errorf("registry: initializing %q: %w", id, err)
		r.status[id] = integration.Status{ID: id, Available: false, LastError: err.Error()}
		r.mirrorStatus(id)
		r.logger.Error("integration initialization failed", map[string]interface{}{
			"source_id": id,
			"error":     err.Error(),
		})
		return nil, r.errs[id]
	}

	r.instances[id] = inst
	r.status[id] = integration.Status{ID: id, Available: true, LastSuccessAt: time.Now()}
	r.mirrorStatus(id)
	return inst, nil
}

// IDs returns every registered integration id, in registration order is
// not guaranteed — callers that need a stable listing order should sort.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	return ids
}

// ReportResult lets callers feed back execution outcomes (not just
// construction outcomes) into the status table, so ListSources reflects
// runtime health, not just whether the client was built.
func (r *Registry) ReportResult(id string, circuitState string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.status[id]
	st.ID = id
	st.CircuitState = circuitState
	if err != nil {
		st.LastError = err.Error()
	} else {
		st.Available = true
		st.LastSuccessAt = time.Now()
		st.LastError = ""
	}
	r.status[id] = st
	r.mirrorStatus(id)
}

// Status returns the last known status for id.
func (r *Registry) Status(id string) (integration.Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[id]
	return st, ok
}

// ListStatus returns the status of every registered integration.
func (r *Registry) ListStatus() []integration.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]integration.Status, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	return out
}

// mirrorStatus writes the current status for id to Redis when configured.
// Failures are logged, not propagated — the mirror is a convenience for
// multi-replica deployments, not load-bearing for a single-process run.
func (r *Registry) mirrorStatus(id string) {
	if r.redis == nil {
		return
	}
	st := r.status[id]
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := fmt.Sprintf("%s:sources:%s", r.namespace, id)
	err := r.redis.HSet(ctx, key, map[string]interface{}{
		"available":      st.Available,
		"circuit_state":  st.CircuitState,
		"last_error":     st.LastError,
		"last_success_at": st.LastSuccessAt.Format(time.RFC3339),
	}).Err()
	if err != nil {
		r.logger.Warn("failed to mirror source status to redis", map[string]interface{}{
			"source_id": id,
			"error":     err.Error(),
		})
		return
	}
	r.redis.Expire(ctx, key, 5*time.Minute)
}
