package delta

import (
	"sort"

	"github.com/embedware/sizedeltas/internal/reports"
)

// Classification describes how an entry's pair of sizes compared.
type Classification int

const (
	// Changed means both sides were measured and differ.
	Changed Classification = iota
	// Unchanged means both sides were measured and are equal.
	Unchanged
	// New means no previous size was reported (newly-added sketch or board).
	New
	// Removed means no current size was reported.
	Removed
	// NotAvailable means at least one side was reported as not measurable.
	NotAvailable
)

// Result is the computed delta for one (sketch, board, region) entry.
// Absolute and Relative are only meaningful when the matching Has flag is
// set; a previous size of zero leaves Relative undefined rather than
// fabricating a percentage.
type Result struct {
	Entry       reports.SizeEntry
	Class       Classification
	Absolute    int64
	HasAbsolute bool
	Relative    float64 // percent
	HasRelative bool
}

// BoardTotal aggregates absolute deltas for one (board, region) pair across
// all sketches. Min and Max drive the summary emoji; Sum feeds the summary
// line. Entries without a computable absolute delta are excluded.
type BoardTotal struct {
	Board   string
	Region  string
	Sum     int64
	Min     int64
	Max     int64
	Counted int
}

// regionOrder pins flash before RAM; other regions follow lexicographically.
var regionOrder = map[string]int{
	"flash": 0,
	"RAM":   1,
}

func regionRank(region string) int {
	if r, ok := regionOrder[region]; ok {
		return r
	}
	return len(regionOrder)
}

// Compute derives the ordered delta results for one report group.
func Compute(g reports.Group) []Result {
	results := make([]Result, 0, len(g.Entries))
	for _, e := range g.Entries {
		results = append(results, classify(e))
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Entry, results[j].Entry
		if a.Sketch != b.Sketch {
			return a.Sketch < b.Sketch
		}
		if a.Board != b.Board {
			return a.Board < b.Board
		}
		ra, rb := regionRank(a.Region), regionRank(b.Region)
		if ra != rb {
			return ra < rb
		}
		return a.Region < b.Region
	})
	return results
}

func classify(e reports.SizeEntry) Result {
	r := Result{Entry: e}
	switch {
	case !e.Previous.Present && !e.Current.Present:
		r.Class = NotAvailable
	case !e.Previous.Present:
		r.Class = New
	case !e.Current.Present:
		r.Class = Removed
	case !e.Previous.Available || !e.Current.Available:
		r.Class = NotAvailable
	default:
		r.Absolute = e.Current.Bytes - e.Previous.Bytes
		r.HasAbsolute = true
		if e.Previous.Bytes != 0 {
			r.Relative = float64(r.Absolute) / float64(e.Previous.Bytes) * 100
			r.HasRelative = true
		}
		if r.Absolute == 0 {
			r.Class = Unchanged
		} else {
			r.Class = Changed
		}
	}
	return r
}

// Totals aggregates the computed results per (board, region), preserving
// the result ordering: boards in first-seen order within the sorted result
// set, regions in the fixed region order within each board.
func Totals(results []Result) []BoardTotal {
	index := make(map[string]int)
	var totals []BoardTotal
	for _, r := range results {
		if !r.HasAbsolute {
			continue
		}
		key := r.Entry.Board + "\x00" + r.Entry.Region
		i, ok := index[key]
		if !ok {
			i = len(totals)
			index[key] = i
			totals = append(totals, BoardTotal{
				Board:  r.Entry.Board,
				Region: r.Entry.Region,
				Min:    r.Absolute,
				Max:    r.Absolute,
			})
		}
		t := &totals[i]
		t.Sum += r.Absolute
		t.Counted++
		if r.Absolute < t.Min {
			t.Min = r.Absolute
		}
		if r.Absolute > t.Max {
			t.Max = r.Absolute
		}
	}
	sort.SliceStable(totals, func(i, j int) bool {
		if totals[i].Board != totals[j].Board {
			return totals[i].Board < totals[j].Board
		}
		ra, rb := regionRank(totals[i].Region), regionRank(totals[j].Region)
		if ra != rb {
			return ra < rb
		}
		return totals[i].Region < totals[j].Region
	})
	return totals
}

// Boards returns the distinct boards present in the results, sorted.
func Boards(results []Result) []string {
	seen := make(map[string]bool)
	var boards []string
	for _, r := range results {
		if !seen[r.Entry.Board] {
			seen[r.Entry.Board] = true
			boards = append(boards, r.Entry.Board)
		}
	}
	sort.Strings(boards)
	return boards
}
