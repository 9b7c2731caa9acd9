package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentic-research/astgraph/api"
)

func TestGuardReadOnly_AllowsPlainReads(t *testing.T) {
	assert.NoError(t, GuardReadOnly("MATCH (n) RETURN n LIMIT 1"))
	assert.NoError(t, GuardReadOnly("MATCH (n) RETURN n"))
}

func TestGuardReadOnly_RejectsEveryWriteKeyword(t *testing.T) {
	for _, kw := range []string{"CREATE", "SET", "DELETE", "DETACH", "MERGE", "REMOVE", "DROP", "ALTER"} {
		q := "MATCH (n) " + kw + " n RETURN n"
		err := GuardReadOnly(q)
		assert.Errorf(t, err, "expected rejection for keyword %s", kw)
		assert.ErrorIs(t, err, api.ErrInvalidInput)
	}
}

func TestGuardReadOnly_CaseInsensitive(t *testing.T) {
	assert.Error(t, GuardReadOnly("match (n) delete n"))
	assert.Error(t, GuardReadOnly("Match (n) DeTaCh DeLeTe n"))
}

func TestGuardReadOnly_WholeWordOnly(t *testing.T) {
	// "created_at" contains "create" as a substring but not as a whole word.
	assert.NoError(t, GuardReadOnly("MATCH (n) WHERE n.created_at > 0 RETURN n"))
}
