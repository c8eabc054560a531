// Package reports resolves and canonicalizes compiled-sketch size reports.
//
// A report source is either a regular expression matched against workflow
// artifact names (sweep mode) or a filesystem directory (local mode). The
// resolver turns a source into raw report payloads tagged with their
// originating commit; the parser normalizes the two schema shapes observed
// in the wild (reports embedding current/previous sizes inline, and plain
// snapshots that must be diffed against a separately-uploaded baseline)
// into one canonical [SizeEntry] model grouped by commit.
package reports
