// Package store defines the persisted shape of a conversation session for
// import/export between process restarts. It performs no network I/O and
// no disk I/O of its own; callers own durability.
package store

import (
	"github.com/xmtp-go/core/identity"
	"github.com/xmtp-go/core/invitation"
)

// Record is a persisted conversation session. Invitation's presence
// distinguishes a v2 session from a v1 one: v1 sessions have no invitation,
// since their topic and keys are re-derivable from the peer's bundle alone.
type Record struct {
	PeerAddress identity.Address
	CreatedNs   uint64
	Invitation  *invitation.InvitationV1
}

// IsV2 reports whether r describes a v2 (invitation-based) session.
func (r Record) IsV2() bool {
	return r.Invitation != nil
}
