package match

import "github.com/agnivade/levenshtein"

// Threshold is the maximum edit distance at which a noisy plate reading is
// still considered the same vehicle. Two errors cover the usual recognizer
// faults (confused glyphs, a dropped or extra character) while keeping the
// odds of releasing the wrong vehicle low.
const Threshold = 2

// Result describes the winning candidate of a fuzzy plate lookup.
type Result struct {
	Plate    string
	Distance int
}

// Best returns the candidate closest to query by edit distance, or false if
// no candidate is within Threshold. Candidates are scanned in the given order
// and a later candidate wins only on a strictly smaller distance, so on ties
// the earliest candidate is kept.
func Best(query string, candidates []string) (Result, bool) {
	best := Result{Distance: Threshold + 1}
	found := false
	for _, candidate := range candidates {
		d := levenshtein.ComputeDistance(query, candidate)
		if d <= Threshold && d < best.Distance {
			best = Result{Plate: candidate, Distance: d}
			found = true
		}
	}
	if !found {
		return Result{}, false
	}
	return best, true
}
