package domain

import "time"

// Event types
const (
	EventTypeClearingFinalized = "clearing.finalized"
)

// MirrorOutboxEvent is a narrative record queued for publication to the
// mirror store. Rows are written in the same transaction as the terminal
// clearing record and drained by the mirror worker, so a crash between
// finalization and publication loses nothing.
type MirrorOutboxEvent struct {
	ID          string
	IntentID    string
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
	PublishedAt *time.Time
	Published   bool
}
