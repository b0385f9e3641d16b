package domain

import "time"

type AccountStateKind int

const (
	AccountActive AccountStateKind = iota
	AccountSoftDeleted
)

func (k AccountStateKind) String() string {
	switch k {
	case AccountActive:
		return "active"
	case AccountSoftDeleted:
		return "soft_deleted"
	default:
		return "unknown"
	}
}

// AccountState is Active or SoftDeleted{Since}. Since is only meaningful
// for AccountSoftDeleted.
type AccountState struct {
	Kind  AccountStateKind
	Since time.Time
}

func ActiveState() AccountState { return AccountState{Kind: AccountActive} }

func SoftDeletedState(since time.Time) AccountState {
	return AccountState{Kind: AccountSoftDeleted, Since: since}
}

// WithinGrace reports whether a soft-deleted account may still be restored at now.
func (s AccountState) WithinGrace(now time.Time, grace time.Duration) bool {
	if s.Kind != AccountSoftDeleted {
		return false
	}
	return now.Sub(s.Since) < grace
}
