// Package github provides a minimal GitHub REST API client for the
// sizedeltas pipeline: listing open pull requests, workflow artifacts and
// run metadata, downloading artifact archives, and managing issue comments.
//
// All calls take a context, paginate via the Link response header, pace
// themselves with a client-side rate limiter, and retry transient failures
// (secondary rate limits, gateway errors) with exponential backoff. The
// token is passed in by the caller; the client never reads the environment
// beyond the optional GITHUB_API_URL override.
package github
