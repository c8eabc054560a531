// Package delta computes per-sketch, per-board, per-region memory-usage
// deltas from a canonical report group.
//
// Results are ordered deterministically (sketch, board, fixed region order)
// so repeated runs over unchanged input render byte-identical comment
// bodies, which the publisher's idempotent-update check depends on. The
// engine always returns the full result set including zero deltas; the
// changes-only presentation rule belongs to the renderer.
package delta
