package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"waiver-wire/internal/domain"
)

// ComputeRunID computes a deterministic run_id using SHA256.
// Formula: SHA256(league_id|trigger|season|week|started_at_ms)
// Returns the base58-encoded hash.
func ComputeRunID(
	leagueID string,
	trigger domain.RunTrigger,
	season int,
	week int,
	startedAtMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d",
		leagueID,
		string(trigger),
		season,
		week,
		startedAtMs,
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
