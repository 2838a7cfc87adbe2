package registry

import "strings"

// Suggest returns the known resource type closest to name by edit
// distance, when the distance is small enough to be a plausible typo.
func (r *Registry) Suggest(name string) (string, bool) {
	best := ""
	bestDist := maxSuggestDistance + 1
	lower := strings.ToLower(name)
	for _, t := range r.KnownTypes() {
		d := editDistance(lower, strings.ToLower(t))
		if d < bestDist {
			best, bestDist = t, d
		}
	}
	if best == "" || bestDist > maxSuggestDistance {
		return "", false
	}
	return best, true
}

// maxSuggestDistance bounds how different a suggestion may be.
const maxSuggestDistance = 3

// editDistance is Levenshtein with a rolling row.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
