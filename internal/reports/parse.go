package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrOldFormat marks a sketches report produced by a pre-deltas toolchain
// version. Old reports are skipped with a notice, not treated as malformed.
var ErrOldFormat = errors.New("old format sketches report")

// MalformedReportError reports a payload that could not be canonicalized:
// invalid JSON, missing required fields, or an unrecognized schema shape.
type MalformedReportError struct {
	Origin string
	Reason string
	Err    error
}

func (e *MalformedReportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed report %s: %s: %v", e.Origin, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed report %s: %s", e.Origin, e.Reason)
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

// sizeValue accepts the number-or-"N/A" cells the compile toolchain emits.
type sizeValue struct {
	Bytes     int64
	Available bool
	Present   bool
}

func (v *sizeValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		// Any string value means the region is not measurable on this target.
		*v = sizeValue{Present: true}
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("size value %s is neither a number nor a string", data)
	}
	*v = sizeValue{Bytes: int64(math.Round(n)), Available: true, Present: true}
	return nil
}

func (v sizeValue) size() Size {
	return Size{Bytes: v.Bytes, Available: v.Available, Present: v.Present}
}

// Wire schema shared by both shapes. Unknown fields are ignored for forward
// compatibility; only the fields below are required.
type reportFile struct {
	CommitHash string        `json:"commit_hash"`
	CommitURL  string        `json:"commit_url"`
	Boards     []reportBoard `json:"boards"`
}

type reportBoard struct {
	Board    string         `json:"board"`
	Sizes    []reportSize   `json:"sizes"`
	Sketches []reportSketch `json:"sketches"`
}

type reportSketch struct {
	Name               string       `json:"name"`
	CompilationSuccess *bool        `json:"compilation_success"`
	Sizes              []reportSize `json:"sizes"`
}

type reportSize struct {
	Name     string           `json:"name"`
	Maximum  *sizeValue       `json:"maximum"`
	Current  *reportSizeSide  `json:"current"`
	Previous *reportSizeSide  `json:"previous"`
	Delta    *json.RawMessage `json:"delta"`
}

type reportSizeSide struct {
	Absolute sizeValue `json:"absolute"`
}

// Shape identifies which schema variant a report file uses.
type Shape int

const (
	// ShapeDeltas embeds current and previous sizes per sketch inline.
	ShapeDeltas Shape = iota
	// ShapeSnapshot carries current sizes only; the baseline comes from a
	// separately-uploaded snapshot of another commit.
	ShapeSnapshot
)

// Parsed is the canonical result of parsing one raw report file.
type Parsed struct {
	Origin    string
	Commit    string
	CommitURL string
	RunID     int64
	Shape     Shape
	Entries   []SizeEntry
}

// Parse canonicalizes one raw report payload. It returns ErrOldFormat for
// pre-deltas reports and *MalformedReportError for anything unreadable.
// Parse is pure: it never touches the network or filesystem.
func Parse(raw RawReport) (Parsed, error) {
	var file reportFile
	if err := json.Unmarshal(raw.Data, &file); err != nil {
		return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "invalid JSON", Err: err}
	}
	if len(file.Boards) == 0 {
		return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "no boards field"}
	}

	// Pre-deltas toolchains wrote board-level sizes without a maximum.
	first := file.Boards[0]
	if len(first.Sizes) == 0 && len(first.Sketches) == 0 {
		return Parsed{}, ErrOldFormat
	}
	if len(first.Sizes) > 0 && first.Sizes[0].Maximum == nil && len(first.Sketches) == 0 {
		return Parsed{}, ErrOldFormat
	}

	commit := raw.Commit
	if file.CommitHash != "" {
		commit = file.CommitHash
	}

	p := Parsed{
		Origin:    raw.Origin,
		Commit:    commit,
		CommitURL: file.CommitURL,
		RunID:     raw.RunID,
		Shape:     ShapeSnapshot,
	}

	for _, board := range file.Boards {
		if board.Board == "" {
			return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "board entry missing board name"}
		}
		for _, sketch := range board.Sketches {
			if sketch.Name == "" {
				return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "sketch entry missing name"}
			}
			compiled := sketch.CompilationSuccess == nil || *sketch.CompilationSuccess
			for _, size := range sketch.Sizes {
				if size.Name == "" {
					return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "size entry missing region name"}
				}
				entry := SizeEntry{
					Sketch: sketch.Name,
					Board:  board.Board,
					Region: size.Name,
				}
				if size.Maximum != nil && size.Maximum.Available {
					entry.Maximum = size.Maximum.Bytes
				}
				if size.Current != nil && compiled {
					entry.Current = size.Current.Absolute.size()
				} else if size.Current != nil {
					// Compilation failed: the current size is not measurable.
					entry.Current = SizeNA()
				}
				if size.Previous != nil {
					entry.Previous = size.Previous.Absolute.size()
					p.Shape = ShapeDeltas
				}
				if size.Delta != nil {
					p.Shape = ShapeDeltas
				}
				p.Entries = append(p.Entries, entry)
			}
		}
	}

	if len(p.Entries) == 0 {
		return Parsed{}, &MalformedReportError{Origin: raw.Origin, Reason: "no sketch size data"}
	}
	return p, nil
}

// Assemble groups parsed reports by originating commit and resolves the
// snapshot shape by diffing head snapshots against baseline snapshots.
//
// headHint, when non-empty, names the commit considered the head of the
// comparison (the PR head SHA, or the ambient event's head). Snapshot
// groups for other commits are folded into the head group as baselines
// rather than emitted on their own. Without a hint, exactly two snapshot
// commits are paired by upload order: the later-parsed snapshot is the head.
//
// Deltas-shape files pass through untouched. Within a group, duplicate
// (sketch, board, region) keys are last-wins in input order; callers feed
// files in sorted path order so the outcome is deterministic.
func Assemble(parsed []Parsed, headHint string) []Group {
	byCommit := make(map[string]*Group)
	var order []string
	group := func(commit string) *Group {
		g, ok := byCommit[commit]
		if !ok {
			g = &Group{Commit: commit}
			byCommit[commit] = g
			order = append(order, commit)
		}
		return g
	}

	var snapshots []Parsed
	for _, p := range parsed {
		if p.Shape == ShapeSnapshot {
			snapshots = append(snapshots, p)
			continue
		}
		g := group(p.Commit)
		if g.CommitURL == "" {
			g.CommitURL = p.CommitURL
		}
		if g.RunID == 0 {
			g.RunID = p.RunID
		}
		for _, e := range p.Entries {
			g.Upsert(e)
		}
	}

	if len(snapshots) > 0 {
		head, base := splitSnapshots(snapshots, headHint)
		baseline := make(map[Key]Size)
		for _, p := range base {
			for _, e := range p.Entries {
				baseline[e.Key()] = e.Current
			}
		}
		for _, p := range head {
			g := group(p.Commit)
			if g.CommitURL == "" {
				g.CommitURL = p.CommitURL
			}
			if g.RunID == 0 {
				g.RunID = p.RunID
			}
			for _, e := range p.Entries {
				if prev, ok := baseline[e.Key()]; ok {
					e.Previous = prev
				}
				g.Upsert(e)
			}
		}
		// Baseline keys missing from the head snapshot are removed sketches.
		for _, p := range base {
			for _, e := range p.Entries {
				removed := SizeEntry{
					Sketch:   e.Sketch,
					Board:    e.Board,
					Region:   e.Region,
					Maximum:  e.Maximum,
					Previous: e.Current,
				}
				for _, hp := range head {
					g := group(hp.Commit)
					if !groupHasKey(g, removed.Key()) {
						g.Upsert(removed)
					}
				}
			}
		}
	}

	groups := make([]Group, 0, len(order))
	for _, commit := range order {
		g := byCommit[commit]
		sort.SliceStable(g.Entries, func(i, j int) bool {
			a, b := g.Entries[i], g.Entries[j]
			if a.Sketch != b.Sketch {
				return a.Sketch < b.Sketch
			}
			if a.Board != b.Board {
				return a.Board < b.Board
			}
			return a.Region < b.Region
		})
		groups = append(groups, *g)
	}
	return groups
}

func groupHasKey(g *Group, k Key) bool {
	for i := range g.Entries {
		if g.Entries[i].Key() == k {
			return true
		}
	}
	return false
}

// splitSnapshots separates head snapshots from baseline snapshots. A hint
// wins; otherwise the last distinct commit in input order is the head.
func splitSnapshots(snapshots []Parsed, headHint string) (head, base []Parsed) {
	if headHint != "" {
		for _, p := range snapshots {
			if p.Commit == headHint {
				head = append(head, p)
			} else {
				base = append(base, p)
			}
		}
		if len(head) > 0 {
			return head, base
		}
		// Hint matched nothing: treat every snapshot as head with no baseline.
		return snapshots, nil
	}

	var commits []string
	seen := make(map[string]bool)
	for _, p := range snapshots {
		if !seen[p.Commit] {
			seen[p.Commit] = true
			commits = append(commits, p.Commit)
		}
	}
	if len(commits) < 2 {
		return snapshots, nil
	}
	headCommit := commits[len(commits)-1]
	for _, p := range snapshots {
		if p.Commit == headCommit {
			head = append(head, p)
		} else {
			base = append(base, p)
		}
	}
	return head, base
}
