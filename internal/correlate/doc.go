// Package correlate maps a report group to the pull request it belongs to.
//
// Ambient pull-request context from the triggering workflow event, when
// supplied, wins unconditionally and no lookup happens. Otherwise the
// group's originating commit is matched against open pull request heads; a
// commit that is not (or no longer) a PR head yields ErrNoPullRequest and
// the caller skips the group rather than failing the run.
package correlate
