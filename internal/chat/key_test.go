// ABOUTME: Tests for conversation-group key derivation
// ABOUTME: Covers commutativity and pair uniqueness

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupKey_Commutative(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"zoe", "adam"},
		{"a", "b"},
		{"same-prefix", "same-prefix2"},
	}

	for _, pair := range pairs {
		assert.Equal(t, GroupKey(pair[0], pair[1]), GroupKey(pair[1], pair[0]),
			"GroupKey(%q, %q) must be order-independent", pair[0], pair[1])
	}
}

func TestGroupKey_DistinctPairs(t *testing.T) {
	assert.NotEqual(t, GroupKey("alice", "bob"), GroupKey("alice", "carol"))
	assert.NotEqual(t, GroupKey("alice", "bob"), GroupKey("bob", "carol"))
}

func TestGroupKey_Ordering(t *testing.T) {
	assert.Equal(t, "alice-bob", GroupKey("bob", "alice"))
	assert.Equal(t, "alice-bob", GroupKey("alice", "bob"))
}
