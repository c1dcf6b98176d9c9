// ABOUTME: Deterministic conversation-group naming for two-party chats
// ABOUTME: Both parties derive the same key regardless of who initiates

package chat

// GroupKey returns the canonical conversation-group name for a pair of users.
// The usernames are ordered lexicographically and joined with a fixed
// separator, so GroupKey(a, b) == GroupKey(b, a). Pure function, no lookup.
func GroupKey(a, b string) string {
	if a < b {
		return a + "-" + b
	}
	return b + "-" + a
}
