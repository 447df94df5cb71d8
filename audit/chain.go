package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const genesisHash = "0000000000000000000000000000000000000000000000000000000000000"

// computeHash derives an event's integrity hash from its immutable
// fields and the previous event's hash, per the documented chain:
// H(event_id || timestamp || type || action || outcome || user_id? || previous_h).
func computeHash(e *Event, prevHash string) string {
	var sb strings.Builder
	sb.WriteString(e.ID)
	sb.WriteString("|")
	sb.WriteString(e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"))
	sb.WriteString("|")
	sb.WriteString(e.Type)
	sb.WriteString("|")
	sb.WriteString(e.Action)
	sb.WriteString("|")
	sb.WriteString(string(e.Outcome))
	sb.WriteString("|")
	if e.Actor != nil {
		sb.WriteString(e.Actor.UserID)
	}
	sb.WriteString("|")
	sb.WriteString(prevHash)

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// VerifyChain walks events in order and recomputes each hash against
// its predecessor. Returns the index of the first event where the
// chain is unverified, or -1 if every event up to the end is intact.
func VerifyChain(events []Event) int {
	prev := genesisHash
	for i, e := range events {
		want := computeHash(&e, prev)
		if want != e.Hash {
			return i
		}
		prev = e.Hash
	}
	return -1
}
