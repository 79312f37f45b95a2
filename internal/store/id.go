package store

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// NewSessionID generates a session identifier of the form
// <YYYYMMDD-HHMMSS>-<4-hex>, per §3.
func NewSessionID(now time.Time) string {
	stamp := now.UTC().Format("20060102-150405")
	id := uuid.New()
	suffix := hex.EncodeToString(id[:2])
	return stamp + "-" + suffix
}
