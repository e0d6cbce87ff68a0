// Package authz owns the session-level permission matrix: it seeds it from the
// default policy or the store, answers authorization queries, and commits
// administrative edits.
package authz

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/farmdesk/farmdesk/internal/audit"
	"github.com/farmdesk/farmdesk/internal/observability"
	"github.com/farmdesk/farmdesk/internal/permission"
	"github.com/farmdesk/farmdesk/internal/permission/store"
)

// Store persists committed snapshots.
type Store interface {
	Load(ctx context.Context) (*permission.Snapshot, error)
	Save(ctx context.Context, snap *permission.Snapshot) error
}

// RevisionLister is implemented by stores that keep history.
type RevisionLister interface {
	ListRevisions(ctx context.Context, limit int) ([]store.RevisionInfo, error)
}

// Subscriber is implemented by stores that announce commits from other instances.
type Subscriber interface {
	Subscribe(ctx context.Context, fn func(revision uuid.UUID)) error
}

// Auditor records committed changes.
type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Options configures a Service. Only Modules is required; a nil Store keeps the
// matrix process-local.
type Options struct {
	Modules []permission.Module
	Store   Store
	Auditor Auditor
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Service is the authorization context handed to every guarded call site.
type Service struct {
	holder    *permission.Holder
	store     Store
	auditor   Auditor
	metrics   *observability.Metrics
	logger    *slog.Logger
	loads     singleflight.Group
	replaceMu sync.Mutex
}

// NewService seeds the service with the default matrix over opts.Modules.
func NewService(opts Options) (*Service, error) {
	modules := opts.Modules
	if len(modules) == 0 {
		modules = permission.Modules()
	}
	holder, err := permission.NewHolder(modules, permission.BuildDefaultMatrix(modules))
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		holder:  holder,
		store:   opts.Store,
		auditor: opts.Auditor,
		metrics: opts.Metrics,
		logger:  logger,
	}, nil
}

// Modules returns the module set the matrix covers.
func (s *Service) Modules() []permission.Module {
	return s.holder.Modules()
}

// Snapshot returns the committed snapshot.
func (s *Service) Snapshot() *permission.Snapshot {
	return s.holder.Current()
}

// Can reports whether role may perform action on module.
func (s *Service) Can(role permission.Role, module permission.Module, action permission.Action) bool {
	allowed := s.holder.Can(role, module, action)
	s.metrics.ObserveDecision(string(module), string(action), allowed)
	return allowed
}

// Authorize parses raw identifiers and answers the query. Anything that does not
// parse is denied.
func (s *Service) Authorize(role, module, action string) bool {
	r, okRole := permission.ParseRole(role)
	m, okModule := permission.ParseModule(module)
	a, okAction := permission.ParseAction(action)
	if !okRole || !okModule || !okAction {
		s.metrics.ObserveDecision("unknown", "unknown", false)
		return false
	}
	return s.Can(r, m, a)
}

// Capabilities returns role's row of the committed matrix.
func (s *Service) Capabilities(role permission.Role) map[permission.Module]permission.Capability {
	return s.holder.Matrix().Capabilities(role)
}

// loaded pairs a stored snapshot with the snapshot that was current when the read
// started.
type loaded struct {
	snap *permission.Snapshot
	base *permission.Snapshot
}

// Load installs the persisted matrix. When nothing is stored the current matrix is
// kept. On failure the current matrix also stays in place and a PersistenceError
// is returned. Concurrent calls share one store read. A read that overlaps a local
// commit is discarded; the commit already reached the store.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ch := s.loads.DoChan("load", func() (interface{}, error) {
		base := s.holder.Current()
		snap, err := s.store.Load(ctx)
		return loaded{snap: snap, base: base}, err
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}
	if errors.Is(res.Err, store.ErrNotFound) {
		s.logger.Info("no persisted permission matrix, using default policy")
		return nil
	}
	if res.Err != nil {
		s.logger.Warn("load permission matrix", slog.Any("error", res.Err))
		return &PersistenceError{Op: "load", Err: res.Err}
	}
	got := res.Val.(loaded)
	if got.snap == nil {
		s.logger.Info("no persisted permission matrix, using default policy")
		return nil
	}

	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()
	current := s.holder.Current()
	if got.snap.Revision == current.Revision {
		return nil
	}
	if current != got.base {
		s.logger.Info("discarding stored matrix read during a commit",
			slog.String("stored", got.snap.Revision.String()),
			slog.String("current", current.Revision.String()))
		return nil
	}
	if err := s.holder.Restore(got.snap); err != nil {
		s.logger.Warn("stored permission matrix rejected", slog.String("revision", got.snap.Revision.String()), slog.Any("error", err))
		return &PersistenceError{Op: "load", Err: err}
	}
	s.logger.Info("permission matrix loaded", slog.String("revision", got.snap.Revision.String()), slog.String("fingerprint", got.snap.Fingerprint))
	return nil
}

// Watch reloads the matrix whenever another instance commits a new revision.
func (s *Service) Watch(ctx context.Context) error {
	sub, ok := s.store.(Subscriber)
	if !ok {
		return nil
	}
	return sub.Subscribe(ctx, func(revision uuid.UUID) {
		if revision == s.holder.Current().Revision {
			return
		}
		if err := s.Load(ctx); err != nil {
			s.logger.Warn("reload permission matrix", slog.String("revision", revision.String()), slog.Any("error", err))
		}
	})
}

// ReplaceRequest carries a proposed matrix from the edit workflow.
type ReplaceRequest struct {
	Expected uuid.UUID
	Matrix   *permission.Matrix
	Actor    string
}

// ReplaceResult describes a committed replace.
type ReplaceResult struct {
	Snapshot *permission.Snapshot
	Previous uuid.UUID
	Changes  []permission.Change
	// PersistErr is set when the matrix was committed for this process but could
	// not be saved.
	PersistErr error
}

// Replace validates and commits req.Matrix. Validation and stale-revision errors
// leave the current matrix untouched. A store failure does not undo the commit;
// it is reported through ReplaceResult.PersistErr.
func (s *Service) Replace(ctx context.Context, req ReplaceRequest) (*ReplaceResult, error) {
	return s.replace(ctx, req, audit.ActionMatrixReplaced)
}

// Reset replaces the matrix with the default policy.
func (s *Service) Reset(ctx context.Context, expected uuid.UUID, actor string) (*ReplaceResult, error) {
	return s.replace(ctx, ReplaceRequest{
		Expected: expected,
		Matrix:   permission.BuildDefaultMatrix(s.holder.Modules()),
		Actor:    actor,
	}, audit.ActionMatrixReset)
}

func (s *Service) replace(ctx context.Context, req ReplaceRequest, action string) (*ReplaceResult, error) {
	s.replaceMu.Lock()
	defer s.replaceMu.Unlock()

	previous := s.holder.Current()
	snap, err := s.holder.Replace(req.Expected, req.Matrix, req.Actor)
	if err != nil {
		switch {
		case errors.Is(err, permission.ErrStaleRevision):
			s.metrics.ObserveReplace("stale")
		default:
			s.metrics.ObserveReplace("rejected")
		}
		s.logger.Info("permission matrix rejected", slog.String("actor", req.Actor), slog.Any("error", err))
		return nil, err
	}

	result := &ReplaceResult{
		Snapshot: snap,
		Previous: previous.Revision,
		Changes:  permission.Diff(previous.Matrix, snap.Matrix),
	}
	outcome := "committed"
	if s.store != nil {
		if err := s.store.Save(ctx, snap); err != nil {
			result.PersistErr = &PersistenceError{Op: "save", Err: err}
			outcome = "unpersisted"
			s.logger.Warn("permission matrix not persisted", slog.String("revision", snap.Revision.String()), slog.Any("error", err))
		}
	}
	s.metrics.ObserveReplace(outcome)

	if s.auditor != nil {
		entry := audit.MatrixChange(action, snap, previous.Revision.String(), result.Changes)
		if err := s.auditor.Record(ctx, entry); err != nil {
			s.logger.Warn("audit permission change", slog.Any("error", err))
		}
	}
	s.logger.Info("permission matrix committed",
		slog.String("actor", req.Actor),
		slog.String("revision", snap.Revision.String()),
		slog.Int("changes", len(result.Changes)),
	)
	return result, nil
}

// Revisions lists recent persisted revisions, or nothing when the store keeps no history.
func (s *Service) Revisions(ctx context.Context, limit int) ([]store.RevisionInfo, error) {
	lister, ok := s.store.(RevisionLister)
	if !ok {
		return []store.RevisionInfo{}, nil
	}
	revs, err := lister.ListRevisions(ctx, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return revs, nil
}
