// Package eventctx recovers ambient pull-request context from the workflow
// event that triggered the invocation.
//
// Under GitHub Actions the triggering event is serialized to the file named
// by GITHUB_EVENT_PATH. For pull_request events that payload carries the PR
// number and the head and base commits, which lets the correlator skip the
// open-PR lookup entirely. The context is modeled as an explicit value
// passed to callers, never as process-wide state, so tests exercise the
// pipeline without environment simulation.
package eventctx
