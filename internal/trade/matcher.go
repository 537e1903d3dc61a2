package trade

import (
	"sort"
)

// Candidate is a two-sided exchange between two members.
//
// AGets holds items MemberA wants and MemberB has. BGets holds items MemberB
// wants and MemberA has. Both are sorted and non-empty.
type Candidate struct {
	MemberA string
	MemberB string
	AGets   []string
	BGets   []string
}

// Key returns the canonical ledger key of the candidate.
func (c Candidate) Key() MatchKey {
	return NewMatchKey(c.MemberA, c.MemberB, c.AGets, c.BGets)
}

// FindMatches scans every unordered member pair of the snapshot.
//
// Members are visited in ascending ID order so MemberA < MemberB for every
// candidate and the output only depends on snapshot contents.
func FindMatches(snapshot Snapshot) []Candidate {
	ids := snapshot.MemberIDs()
	candidates := make([]Candidate, 0)
	for i := 0; i < len(ids); i++ {
		a := snapshot[ids[i]]
		if len(a.Wants) == 0 || len(a.Haves) == 0 {
			continue
		}
		for j := i + 1; j < len(ids); j++ {
			b := snapshot[ids[j]]
			aGets := a.Wants.Intersect(b.Haves)
			if len(aGets) == 0 {
				continue
			}
			bGets := b.Wants.Intersect(a.Haves)
			if len(bGets) == 0 {
				continue
			}
			candidates = append(candidates, Candidate{
				MemberA: ids[i],
				MemberB: ids[j],
				AGets:   aGets,
				BGets:   bGets,
			})
		}
	}

	return candidates
}

// FindMatchesIndexed returns the same candidates as FindMatches using an
// item index, visiting only pairs that share at least one wanted item.
func FindMatchesIndexed(snapshot Snapshot) []Candidate {
	holders := make(map[string][]string)
	for _, id := range snapshot.MemberIDs() {
		for item := range snapshot[id].Haves {
			holders[item] = append(holders[item], id)
		}
	}

	type pair struct{ a, b string }
	seen := make(map[pair]struct{})
	pairs := make([]pair, 0)
	for _, id := range snapshot.MemberIDs() {
		for item := range snapshot[id].Wants {
			for _, holder := range holders[item] {
				if holder == id {
					continue
				}
				p := pair{a: id, b: holder}
				if p.b < p.a {
					p.a, p.b = p.b, p.a
				}
				if _, ok := seen[p]; ok {
					continue
				}
				seen[p] = struct{}{}
				pairs = append(pairs, p)
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a == pairs[j].a {
			return pairs[i].b < pairs[j].b
		}
		return pairs[i].a < pairs[j].a
	})

	candidates := make([]Candidate, 0)
	for _, p := range pairs {
		a, b := snapshot[p.a], snapshot[p.b]
		aGets := a.Wants.Intersect(b.Haves)
		bGets := b.Wants.Intersect(a.Haves)
		if len(aGets) == 0 || len(bGets) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{MemberA: p.a, MemberB: p.b, AGets: aGets, BGets: bGets})
	}

	return candidates
}
