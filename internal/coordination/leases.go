// Package coordination is the multi-agent surface over the object
// store: advisory lease locks with TTL, artifact writes (decisions,
// notes, changesets), and run tracking.
package coordination

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/model"
	"github.com/agentmem/substrate/internal/objstore"
)

// ObjectStore is the persistence surface coordination needs.
type ObjectStore interface {
	Upsert(ctx context.Context, rec model.Record) error
	Get(ctx context.Context, id string) (model.Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f objstore.Filter, offset, limit int) ([]model.Record, error)
	UpsertEdge(ctx context.Context, e model.Edge) error
}

// Leases manages advisory locks over free-form resource strings. A
// lease lives in the shared store so it is visible to every process,
// not just this one; the in-process mutex only serializes the local
// check-then-write.
type Leases struct {
	store  ObjectStore
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLeases creates the lease manager.
func NewLeases(store ObjectStore, logger *slog.Logger) *Leases {
	if logger == nil {
		logger = slog.Default()
	}
	return &Leases{store: store, logger: logger}
}

// leaseID derives the lease record id from its resource key, making the
// resource the unit of exclusion.
func leaseID(resource string) string {
	sum := sha256.Sum256([]byte("lease:" + resource))
	return hex.EncodeToString(sum[:16])
}

// Acquire takes the lease on resource for holder. An unexpired lease
// held by someone else is a Conflict; re-acquiring one's own lease
// extends it.
func (l *Leases) Acquire(ctx context.Context, resource, holderID string, ttl time.Duration) (*model.Lease, error) {
	if resource == "" || holderID == "" {
		return nil, errs.New(errs.InvalidInput, "resource and holder id are required")
	}
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	id := leaseID(resource)
	now := time.Now().UTC()
	if rec, err := l.store.Get(ctx, id); err == nil {
		if existing, ok := rec.(*model.Lease); ok {
			expires, parseErr := time.Parse(time.RFC3339, existing.ExpiresAt)
			if parseErr == nil && expires.After(now) && existing.HolderID != holderID {
				return nil, errs.New(errs.Conflict, "lease on "+resource+" held by "+existing.HolderID)
			}
		}
	}

	lease := &model.Lease{
		Envelope:  model.Envelope{ID: id, Kind: model.KindLease},
		Resource:  resource,
		HolderID:  holderID,
		ExpiresAt: now.Add(ttl).Format(time.RFC3339),
	}
	if err := l.store.Upsert(ctx, lease); err != nil {
		return nil, err
	}
	l.logger.Debug("lease acquired", "resource", resource, "holder", holderID, "ttl", ttl)
	return lease, nil
}

// Renew extends an existing lease held by holder.
func (l *Leases) Renew(ctx context.Context, resource, holderID string, ttl time.Duration) (*model.Lease, error) {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.Get(ctx, leaseID(resource))
	if err != nil {
		return nil, errs.New(errs.NotFound, "no lease on "+resource)
	}
	lease, ok := rec.(*model.Lease)
	if !ok {
		return nil, errs.New(errs.Internal, "lease id resolves to a different kind")
	}
	if lease.HolderID != holderID {
		return nil, errs.New(errs.Conflict, "lease on "+resource+" held by "+lease.HolderID)
	}
	lease.ExpiresAt = time.Now().UTC().Add(ttl).Format(time.RFC3339)
	if err := l.store.Upsert(ctx, lease); err != nil {
		return nil, err
	}
	return lease, nil
}

// Release drops the lease if holder owns it. Releasing an expired or
// missing lease is a no-op.
func (l *Leases) Release(ctx context.Context, resource, holderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.store.Get(ctx, leaseID(resource))
	if err != nil {
		return nil
	}
	lease, ok := rec.(*model.Lease)
	if !ok {
		return nil
	}
	if lease.HolderID != holderID {
		if expires, parseErr := time.Parse(time.RFC3339, lease.ExpiresAt); parseErr == nil && expires.After(time.Now().UTC()) {
			return errs.New(errs.Conflict, "lease on "+resource+" held by "+lease.HolderID)
		}
	}
	return l.store.Delete(ctx, lease.ID)
}

// Runs tracks agent executions: created open, closed exactly once.
type Runs struct {
	store ObjectStore
}

// NewRuns creates the run tracker.
func NewRuns(store ObjectStore) *Runs {
	return &Runs{store: store}
}

// Start opens a run.
func (r *Runs) Start(ctx context.Context, tenantID, projectID, goal, agentName string) (*model.Run, error) {
	if goal == "" {
		return nil, errs.New(errs.InvalidInput, "run goal is required")
	}
	run := &model.Run{
		Envelope: model.Envelope{
			ID:        uuid.NewString(),
			Kind:      model.KindRun,
			TenantID:  tenantID,
			ProjectID: projectID,
		},
		Goal:      goal,
		AgentName: agentName,
		Status:    model.RunOpen,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.store.Upsert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Close ends a run exactly once; a second close is a Conflict.
func (r *Runs) Close(ctx context.Context, runID string) (*model.Run, error) {
	rec, err := r.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	run, ok := rec.(*model.Run)
	if !ok {
		return nil, errs.New(errs.NotFound, "id is not a run: "+runID)
	}
	if run.Status == model.RunClosed {
		return nil, errs.New(errs.Conflict, "run already closed: "+runID)
	}
	run.Status = model.RunClosed
	run.EndedAt = time.Now().UTC().Format(time.RFC3339)
	if err := r.store.Upsert(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}
