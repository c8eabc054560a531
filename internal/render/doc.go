// Package render formats computed size deltas as deterministic markdown
// comment bodies.
//
// Each body carries an invisible HTML-comment marker identifying the report
// kind and page index, which the publisher uses to find and update earlier
// comments instead of creating duplicates. Bodies exceeding the platform
// comment-length ceiling are split along sketch boundaries, never mid-row,
// with continuation pages prefixed by a page indicator. Rendering the same
// input twice yields byte-identical output.
package render
