package reconcile

import "seomax/api/internal/identity"

// Phase is the lifecycle position of the reconciled auth state.
type Phase int

const (
	// PhaseUnresolved means no reconciliation pass has completed yet.
	PhaseUnresolved Phase = iota
	// PhaseResolved means a valid active user is known.
	PhaseResolved
	// PhaseUnauthenticated means every source was checked and none produced a
	// valid user. This is a normal terminal state; callers redirect to login.
	PhaseUnauthenticated
)

// AuthState is the single reconciled view over all identity sources.
type AuthState struct {
	Phase   Phase
	User    identity.Record
	IsAdmin bool
}

// reduce picks the winning candidate from the prioritized inputs
// (first-party, backing-store, stored snapshot, in that order). Invalid
// candidates are skipped. A candidate on the organizational domain outranks
// earlier non-admin candidates.
func reduce(orgDomain string, candidates []identity.Record) AuthState {
	var winner identity.Record
	found := false

	for _, candidate := range candidates {
		if !candidate.Valid() {
			continue
		}
		if identity.IsAdminEmail(candidate.Email, orgDomain) {
			return AuthState{Phase: PhaseResolved, User: candidate, IsAdmin: true}
		}
		if !found {
			winner = candidate
			found = true
		}
	}

	if !found {
		return AuthState{Phase: PhaseUnauthenticated}
	}
	return AuthState{Phase: PhaseResolved, User: winner}
}
