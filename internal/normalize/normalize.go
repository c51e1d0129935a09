package normalize

import "strings"

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// ChatPairKey returns the canonical key for the unordered pair of user
// ids taking part in a dyadic chat. The ids are sorted so that
// (a, b) and (b, a) map to the same key; the unique index on this key is
// what guarantees at most one chat per pair.
func ChatPairKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
