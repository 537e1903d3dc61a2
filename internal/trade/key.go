package trade

import (
	"encoding/json"
	"sort"
)

// MatchKey canonically identifies one pairwise match instance.
type MatchKey string

// NewMatchKey builds the key for a match between a and b.
//
// The lexicographically smaller member always comes first, carrying its own
// item set, and both item sets are sorted, so swapping the member roles yields
// the same key.
func NewMatchKey(memberA, memberB string, aGets, bGets []string) MatchKey {
	if memberB < memberA {
		memberA, memberB = memberB, memberA
		aGets, bGets = bGets, aGets
	}

	encoded, err := json.Marshal([]any{memberA, memberB, sortedCopy(aGets), sortedCopy(bGets)})
	if err != nil {
		panic(err)
	}

	return MatchKey(encoded)
}

func sortedCopy(values []string) []string {
	sorted := append(make([]string, 0, len(values)), values...)
	sort.Strings(sorted)

	return sorted
}
