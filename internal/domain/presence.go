package domain

// PresenceEntry is the write-side record in the shared store:
// room -> identity -> {joinedAt, lastSeen}. Best-effort only; the roster
// never trusts it for membership.
type PresenceEntry struct {
	Identity Identity `json:"identity"`
	JoinedAt int64    `json:"joined_at"`
	LastSeen int64    `json:"last_seen"`
}
