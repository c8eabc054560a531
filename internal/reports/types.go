package reports

// Size is an optionally-present, optionally-measurable byte count. Present
// is false when no value was reported at all (a sketch or board absent from
// one side of the comparison). Available is false when the toolchain
// reported the region as not measurable ("N/A"), which is distinct from a
// measured zero bytes.
type Size struct {
	Bytes     int64
	Available bool
	Present   bool
}

// SizeOf returns a present, measured Size.
func SizeOf(bytes int64) Size {
	return Size{Bytes: bytes, Available: true, Present: true}
}

// SizeNA returns a present but unmeasurable Size.
func SizeNA() Size {
	return Size{Present: true}
}

// SizeAbsent returns a Size for which no value was reported.
func SizeAbsent() Size {
	return Size{}
}

// SizeEntry is one canonical row: the measured size of one memory region
// for one sketch compiled against one board.
type SizeEntry struct {
	Sketch   string
	Board    string
	Region   string
	Maximum  int64 // region capacity in bytes, 0 if unknown
	Current  Size
	Previous Size
}

// Key identifies an entry within a group. (Sketch, Board, Region) is unique
// within one Group.
type Key struct {
	Sketch string
	Board  string
	Region string
}

// Key returns the entry's identity within its group.
func (e SizeEntry) Key() Key {
	return Key{Sketch: e.Sketch, Board: e.Board, Region: e.Region}
}

// Group is the set of canonical entries sharing one originating commit.
// It is the unit correlated to a pull request and rendered as one comment.
type Group struct {
	Commit    string // head commit SHA; empty when undiscoverable (local mode)
	CommitURL string
	RunID     int64
	Entries   []SizeEntry
}

// Upsert adds an entry, replacing any existing entry with the same key.
// Duplicate keys are resolved last-wins; files are fed to the group in
// sorted path order so the policy is deterministic.
func (g *Group) Upsert(e SizeEntry) {
	for i := range g.Entries {
		if g.Entries[i].Key() == e.Key() {
			g.Entries[i] = e
			return
		}
	}
	g.Entries = append(g.Entries, e)
}

// RawReport is an opaque report payload plus its origin metadata. The
// commit and run id are best-effort: populated from the parent workflow run
// in sweep mode, recovered from the payload itself in local mode.
type RawReport struct {
	Origin string // artifact name or file path
	Commit string
	RunID  int64
	Data   []byte
}
