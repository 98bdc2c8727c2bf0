// Package reconcile merges the first-party session, the backing-store session
// and the persisted snapshot into one active user, and keeps it fresh.
package reconcile

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"seomax/api/internal/backingstore"
	"seomax/api/internal/firstparty"
	"seomax/api/internal/identity"
	"seomax/api/internal/snapshot"
)

// Source produces a session candidate. An error means the source could not be
// consulted; the candidate is skipped and the next-priority source is used.
type Source interface {
	Session(ctx context.Context) (identity.Record, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (identity.Record, error)

func (f SourceFunc) Session(ctx context.Context) (identity.Record, error) {
	return f(ctx)
}

// SnapshotStore is the persisted storage adapter for the winning record.
type SnapshotStore interface {
	Save(ctx context.Context, user identity.Record, isAdmin bool) error
	Load(ctx context.Context) (snapshot.Snapshot, error)
	Clear(ctx context.Context) error
}

// Verifier checks the reconciled session against the server and asks it to
// guarantee project records exist.
type Verifier interface {
	VerifySession(ctx context.Context) (bool, error)
	SyncProject(ctx context.Context, projectID string) (bool, error)
}

// Reconciler holds the reconciled auth state for one dashboard session.
// The original flow ran on a single-threaded event loop; here shared state is
// guarded by a mutex, with the same two ordering safeguards: a debounce on
// RefreshAuth and an in-flight guard on SynchronizeSession. Writers remain
// last-write-wins.
type Reconciler struct {
	firstParty Source
	backing    Source
	snapshots  SnapshotStore
	verifier   Verifier
	orgDomain  string

	debounce time.Duration
	now      func() time.Time

	mu           sync.Mutex
	state        AuthState
	lastRefresh  time.Time
	loading      bool
	synchronized bool

	syncInFlight atomic.Bool
}

// New wires a reconciler over its sources. Any source may be nil (that source
// simply never produces a candidate); snapshots and verifier must be set.
func New(firstParty, backing Source, snapshots SnapshotStore, verifier Verifier, orgDomain string) *Reconciler {
	return &Reconciler{
		firstParty: firstParty,
		backing:    backing,
		snapshots:  snapshots,
		verifier:   verifier,
		orgDomain:  orgDomain,
		debounce:   time.Second,
		now:        time.Now,
		loading:    true,
	}
}

// ActiveUser returns the best currently-known valid user, or nil. Pure read of
// cached state, no network.
func (r *Reconciler) ActiveUser() *identity.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseResolved {
		return nil
	}
	user := r.state.User
	return &user
}

// IsAdmin reports whether the active user is on the organizational domain.
func (r *Reconciler) IsAdmin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Phase == PhaseResolved && r.state.IsAdmin
}

// Loading is true until the first reconciliation pass completes.
func (r *Reconciler) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// State returns the current reconciled state.
func (r *Reconciler) State() AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RefreshAuth re-checks every source and recomputes the active user. Calls
// within the debounce window of the previous refresh return the last known
// state without re-querying.
func (r *Reconciler) RefreshAuth(ctx context.Context) AuthState {
	r.mu.Lock()
	if !r.lastRefresh.IsZero() && r.now().Sub(r.lastRefresh) < r.debounce {
		state := r.state
		r.mu.Unlock()
		return state
	}
	r.lastRefresh = r.now()
	r.mu.Unlock()

	candidates := make([]identity.Record, 0, 3)
	candidates = append(candidates, r.collect(ctx, r.firstParty, "first-party"))
	candidates = append(candidates, r.collect(ctx, r.backing, "backing-store"))
	candidates = append(candidates, r.collectStored(ctx))

	next := reduce(r.orgDomain, candidates)
	r.persist(ctx, next)

	r.mu.Lock()
	r.state = next
	r.loading = false
	r.mu.Unlock()
	return next
}

// SynchronizeSession unifies state from the highest-priority available source
// and validates it against the server. Reentrancy-guarded: an overlapping call
// is a no-op that returns the current state.
func (r *Reconciler) SynchronizeSession(ctx context.Context) AuthState {
	if !r.syncInFlight.CompareAndSwap(false, true) {
		return r.State()
	}
	defer r.syncInFlight.Store(false)

	next := AuthState{Phase: PhaseUnauthenticated}
	if rec := r.collect(ctx, r.firstParty, "first-party"); rec.Valid() {
		next = reduce(r.orgDomain, []identity.Record{rec})
	} else if current := r.State(); current.Phase == PhaseResolved {
		next = current
	} else if stored := r.collectStored(ctx); stored.Valid() {
		next = reduce(r.orgDomain, []identity.Record{stored})
	}
	r.persist(ctx, next)

	r.mu.Lock()
	r.state = next
	r.loading = false
	r.synchronized = true
	r.mu.Unlock()

	if r.verifier != nil {
		ok, err := r.verifier.VerifySession(ctx)
		if err != nil {
			log.Printf("reconcile: verify session: %v", err)
		} else if !ok {
			next = r.RefreshAuth(ctx)
		}
	}
	return next
}

// CheckProjectAccess makes sure a synchronization pass has run, then asks the
// server to guarantee the project record. On an explicit "not authenticated"
// answer it refreshes once and retries exactly once. Never propagates errors.
func (r *Reconciler) CheckProjectAccess(ctx context.Context, projectID string) bool {
	if r.verifier == nil {
		return false
	}

	r.mu.Lock()
	synchronized := r.synchronized
	r.mu.Unlock()
	if !synchronized {
		r.SynchronizeSession(ctx)
	}

	// Bounded retry, not recursion: at most one refresh-and-retry.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.verifier.SyncProject(ctx, projectID)
		if err == nil {
			return ok
		}
		if errors.Is(err, ErrNotAuthenticated) && attempt == 0 {
			r.RefreshAuth(ctx)
			continue
		}
		log.Printf("reconcile: project access %s: %v", projectID, err)
		return false
	}
	return false
}

// SignOut clears the reconciled state and the persisted snapshot.
func (r *Reconciler) SignOut(ctx context.Context) {
	if err := r.snapshots.Clear(ctx); err != nil {
		log.Printf("reconcile: clear snapshot: %v", err)
	}
	r.mu.Lock()
	r.state = AuthState{Phase: PhaseUnauthenticated}
	r.mu.Unlock()
}

func (r *Reconciler) collect(ctx context.Context, source Source, name string) identity.Record {
	if source == nil {
		return identity.Record{}
	}
	rec, err := source.Session(ctx)
	if err != nil {
		if !errors.Is(err, firstparty.ErrNoSession) && !errors.Is(err, backingstore.ErrNoSession) {
			log.Printf("reconcile: %s session: %v", name, err)
		}
		return identity.Record{}
	}
	if !rec.Valid() {
		log.Printf("reconcile: %s session returned invalid user id, rejecting", name)
		return identity.Record{}
	}
	return rec
}

func (r *Reconciler) collectStored(ctx context.Context) identity.Record {
	snap, err := r.snapshots.Load(ctx)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			log.Printf("reconcile: load snapshot: %v", err)
		}
		return identity.Record{}
	}
	if !snap.User.Valid() {
		log.Printf("reconcile: stored snapshot has invalid user id, rejecting")
		return identity.Record{}
	}
	return snap.User
}

// persist writes the winner to storage, or clears storage when nothing won.
func (r *Reconciler) persist(ctx context.Context, state AuthState) {
	if state.Phase == PhaseResolved {
		if err := r.snapshots.Save(ctx, state.User, state.IsAdmin); err != nil {
			log.Printf("reconcile: save snapshot: %v", err)
		}
		return
	}
	if err := r.snapshots.Clear(ctx); err != nil {
		log.Printf("reconcile: clear snapshot: %v", err)
	}
}
