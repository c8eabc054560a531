// Package publish reconciles rendered comment bodies against the report
// comments already present on a pull request.
//
// Existing comments are matched by the render marker and ordered by page
// index, then diffed positionally against the desired bodies: matching
// positions are updated (or left alone when the body is already identical),
// missing positions are created, and surplus pages from a previously longer
// report are deleted. Exactly the desired number of live marked comments
// survives a successful publish.
//
// Two overlapping runs racing on the same pull request are not coordinated
// here; deterministic rendering makes the last-writer-wins outcome on the
// comment body harmless.
package publish
