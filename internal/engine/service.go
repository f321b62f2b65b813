package engine

import (
	"log/slog"
	"time"

	"github.com/trinitydb/trinity/internal/audit"
	"github.com/trinitydb/trinity/internal/events"
	"github.com/trinitydb/trinity/internal/lock"
	"github.com/trinitydb/trinity/internal/models"
	"github.com/trinitydb/trinity/internal/store"
)

// Service is the merge engine. It owns the merge and resolution workflows
// and is safe for concurrent use; cross-process safety comes from the lock
// coordinator's leases.
type Service struct {
	store       *store.Store
	locks       *lock.Coordinator
	ids         *models.IDGenerator
	bus         *events.Bus
	audit       audit.Sink
	logger      *slog.Logger
	policy      ClassifierPolicy
	lockTimeout time.Duration
}

// Options configures a Service. Store and Locks are required; everything
// else has a working default.
type Options struct {
	Store       *store.Store
	Locks       *lock.Coordinator
	IDs         *models.IDGenerator
	Bus         *events.Bus
	Audit       audit.Sink
	Logger      *slog.Logger
	Policy      ClassifierPolicy
	LockTimeout time.Duration
}

// New builds a merge engine service.
func New(opts Options) *Service {
	s := &Service{
		store:       opts.Store,
		locks:       opts.Locks,
		ids:         opts.IDs,
		bus:         opts.Bus,
		audit:       opts.Audit,
		logger:      opts.Logger,
		policy:      opts.Policy,
		lockTimeout: opts.LockTimeout,
	}
	if s.ids == nil {
		s.ids = models.NewIDGenerator()
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.audit == nil {
		s.audit = audit.NopSink{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.policy == nil {
		s.policy = DefaultPolicy{}
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = 5 * time.Second
	}
	return s
}

// Bus exposes the event bus so callers can subscribe to engine events.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// GetMergeStatus returns the current state of a merge operation.
func (s *Service) GetMergeStatus(mergeID string) (*models.MergeOperation, error) {
	op, err := s.store.GetMergeOperation(mergeID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, models.NotFound("merge operation %s not found", mergeID)
	}
	return op, nil
}

// ListConflicts returns every conflict recorded for a merge operation, open
// and resolved alike.
func (s *Service) ListConflicts(mergeID string) ([]*models.Conflict, error) {
	if _, err := s.GetMergeStatus(mergeID); err != nil {
		return nil, err
	}
	return s.store.ListConflicts(mergeID)
}

// record writes one audit record; audit failures are logged, never
// propagated into the caller's result.
func (s *Service) record(op, caller string, start time.Time, err error, params map[string]interface{}) {
	rec := &audit.Record{
		Timestamp:  start,
		Operation:  op,
		Caller:     caller,
		Success:    err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Params:     params,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if werr := s.audit.Write(rec); werr != nil {
		s.logger.Warn("audit write failed", "operation", op, "error", werr)
	}
}
