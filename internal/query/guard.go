package query

import (
	"regexp"

	"github.com/agentic-research/astgraph/api"
)

// writePattern is a single case-insensitive, whole-word match over the
// write-classified Cypher verbs. Order does not matter; the alternation
// is what matters.
var writePattern = regexp.MustCompile(`(?i)\b(CREATE|SET|DELETE|DETACH|MERGE|REMOVE|DROP|ALTER)\b`)

// GuardReadOnly rejects any query whose token stream contains a write-
// classified keyword as a whole word, case-insensitively, anywhere in the
// string — not just at the start. Untrusted callers (HTTP, CLI `query
// cypher`) must route free-form queries through this before RunReadQuery.
func GuardReadOnly(rawQuery string) error {
	if writePattern.MatchString(rawQuery) {
		return api.Invalid("write operations are not allowed; this endpoint is read-only")
	}
	return nil
}
