// Package pipeline orchestrates the report pipeline end to end: resolve
// raw reports, canonicalize, correlate to pull requests, compute deltas,
// render, and publish.
//
// Each report group is processed independently; a group that fails parsing,
// correlation, or publishing is recorded in the run summary and never
// aborts its siblings. Only configuration errors abort a run, and those
// surface before any network I/O.
package pipeline
