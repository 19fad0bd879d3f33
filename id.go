package meetsync

import (
	"strings"

	"github.com/google/uuid"
)

// UpdatedByTag is the private marker embedded in a provider's extended or
// custom properties on events created by this system. Its presence lets a
// mapper recover the internal meeting id instead of trusting the
// provider-native id.
const UpdatedByTag = "meetsync"

// NewID returns a fresh hyphenated UUID, used for meeting, slot and series
// identifiers.
func NewID() string {
	return uuid.NewString()
}

// RecoverInternalID turns a marker id back into the internal meeting id.
// Ids produced from synthetic concatenated identifiers look like
// "<uuid-no-hyphens>_<recurrence-suffix>"; for those the first 32 hex
// characters are re-hyphenated as 8-4-4-4-12 and everything after the
// first underscore is discarded. Anything else is returned verbatim.
func RecoverInternalID(raw string) string {
	base, _, _ := strings.Cut(raw, "_")
	if len(base) == 32 {
		hyphenated := base[0:8] + "-" + base[8:12] + "-" + base[12:16] + "-" + base[16:20] + "-" + base[20:32]
		if _, err := uuid.Parse(hyphenated); err == nil {
			return hyphenated
		}
	}
	return base
}
