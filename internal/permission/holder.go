package permission

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a committed matrix together with its revision metadata.
type Snapshot struct {
	Matrix      *Matrix
	Revision    uuid.UUID
	Fingerprint string
	CommittedAt time.Time
	CommittedBy string
}

// NewSnapshot stamps m with a fresh revision.
func NewSnapshot(m *Matrix, actor string, at time.Time) *Snapshot {
	return &Snapshot{
		Matrix:      m,
		Revision:    uuid.New(),
		Fingerprint: Fingerprint(m),
		CommittedAt: at.UTC(),
		CommittedBy: actor,
	}
}

// Holder owns the current matrix of a session. Reads load a single pointer, so a
// reader sees either the previous snapshot or the next one, never a mix.
type Holder struct {
	modules []Module
	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex
	now     func() time.Time
}

// NewHolder validates initial against modules and installs it as the current policy.
func NewHolder(modules []Module, initial *Matrix) (*Holder, error) {
	if err := Validate(initial, modules); err != nil {
		return nil, err
	}
	h := &Holder{modules: normalizeModules(modules), now: time.Now}
	h.current.Store(NewSnapshot(initial, "system", h.now()))
	return h, nil
}

// Modules returns the module set every committed matrix must cover.
func (h *Holder) Modules() []Module {
	out := make([]Module, len(h.modules))
	copy(out, h.modules)
	return out
}

// Current returns the committed snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Matrix returns the committed matrix.
func (h *Holder) Matrix() *Matrix {
	return h.current.Load().Matrix
}

// Can answers an authorization query against the committed matrix.
func (h *Holder) Can(role Role, module Module, action Action) bool {
	if h == nil {
		return false
	}
	return CanPerform(h.Matrix(), role, module, action)
}

// Replace validates proposed and swaps it in. When expected is not uuid.Nil it must
// match the current revision, otherwise ErrStaleRevision is returned. On any error
// the current snapshot is left untouched.
func (h *Holder) Replace(expected uuid.UUID, proposed *Matrix, actor string) (*Snapshot, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	cur := h.current.Load()
	if expected != uuid.Nil && expected != cur.Revision {
		return cur, ErrStaleRevision
	}
	if err := Validate(proposed, h.modules); err != nil {
		return cur, err
	}
	next := NewSnapshot(proposed, actor, h.now())
	h.current.Store(next)
	return next, nil
}

// Restore installs a snapshot loaded from storage, keeping its revision.
func (h *Holder) Restore(snap *Snapshot) error {
	if snap == nil {
		return &ValidationError{Problems: []string{"snapshot is missing"}}
	}
	if err := Validate(snap.Matrix, h.modules); err != nil {
		return err
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	restored := *snap
	if restored.Fingerprint == "" {
		restored.Fingerprint = Fingerprint(restored.Matrix)
	}
	h.current.Store(&restored)
	return nil
}
