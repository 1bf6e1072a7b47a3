package store

import "context"

// KV is the persistence collaborator. Trackers treat it as an opaque
// key-value blob store; failures are logged by callers and never abort a
// loop. In-memory state stays authoritative until the next successful save.
type KV interface {
	// Load returns the blob for key, or found=false when nothing is stored.
	Load(ctx context.Context, key string) (blob []byte, found bool, err error)
	// Save stores the blob under key, replacing any previous value.
	Save(ctx context.Context, key string, blob []byte) error
}

// Keys used by the trackers.
const (
	KeyPrefixMembers   = "members:"
	KeyPrefixWar       = "war:"
	KeyDonationHistory = "donation_snapshots"
)
