package publish

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/render"
)

// Error wraps an API failure that exhausted its retries while publishing to
// one pull request. It fails that group only, not the whole run.
type Error struct {
	PRNumber int
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publishing to PR #%d: %s: %v", e.PRNumber, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// CommentStore is the slice of the API client the publisher needs.
type CommentStore interface {
	ListIssueComments(ctx context.Context, prNumber int) ([]github.Comment, error)
	CreateComment(ctx context.Context, prNumber int, body string) (github.Comment, error)
	UpdateComment(ctx context.Context, commentID int64, body string) error
	DeleteComment(ctx context.Context, commentID int64) error
}

// Result tallies what a publish changed.
type Result struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int
}

// action is one step of the computed reconciliation plan.
type action struct {
	op        string // "create", "update", "delete", "keep"
	commentID int64
	body      string
}

// Publish makes the pull request's live marked comments match bodies
// exactly, editing in place wherever possible so comment identity and
// notification threads survive.
func Publish(ctx context.Context, store CommentStore, prNumber int, kind string, bodies []string) (Result, error) {
	existing, err := store.ListIssueComments(ctx, prNumber)
	if err != nil {
		return Result{}, &Error{PRNumber: prNumber, Op: "listing comments", Err: err}
	}

	plan := reconcile(markedPages(existing, kind), bodies)

	var res Result
	for _, a := range plan {
		switch a.op {
		case "keep":
			res.Unchanged++
		case "update":
			if err := store.UpdateComment(ctx, a.commentID, a.body); err != nil {
				return res, &Error{PRNumber: prNumber, Op: fmt.Sprintf("updating comment %d", a.commentID), Err: err}
			}
			res.Updated++
		case "create":
			if _, err := store.CreateComment(ctx, prNumber, a.body); err != nil {
				return res, &Error{PRNumber: prNumber, Op: "creating comment", Err: err}
			}
			res.Created++
		case "delete":
			if err := store.DeleteComment(ctx, a.commentID); err != nil {
				return res, &Error{PRNumber: prNumber, Op: fmt.Sprintf("deleting comment %d", a.commentID), Err: err}
			}
			res.Deleted++
		}
	}
	return res, nil
}

// Reported reports whether any live marked comment of this kind contains
// needle. Sweep callers pass the rendered heading for a head commit to skip
// artifact downloads for already-reported commits.
func Reported(existing []github.Comment, kind, needle string) bool {
	for _, c := range markedPages(existing, kind) {
		if strings.Contains(c.Body, needle) {
			return true
		}
	}
	return false
}

// markedPages filters to this kind's report comments, ordered by page
// index. Comments with duplicate page indexes (a crashed earlier run) sort
// stably by comment id so reconciliation deletes the surplus.
func markedPages(comments []github.Comment, kind string) []github.Comment {
	type page struct {
		comment github.Comment
		index   int
	}
	var pages []page
	for _, c := range comments {
		if idx, ok := render.PageOf(c.Body, kind); ok {
			pages = append(pages, page{comment: c, index: idx})
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].index != pages[j].index {
			return pages[i].index < pages[j].index
		}
		return pages[i].comment.ID < pages[j].comment.ID
	})
	out := make([]github.Comment, len(pages))
	for i, p := range pages {
		out[i] = p.comment
	}
	return out
}

// reconcile computes the positional update/create/delete plan. It is pure
// so the policy is testable against any existing-comment count without
// network calls.
func reconcile(existing []github.Comment, bodies []string) []action {
	var plan []action
	for i, body := range bodies {
		if i < len(existing) {
			if existing[i].Body == body {
				plan = append(plan, action{op: "keep", commentID: existing[i].ID})
			} else {
				plan = append(plan, action{op: "update", commentID: existing[i].ID, body: body})
			}
			continue
		}
		plan = append(plan, action{op: "create", body: body})
	}
	for _, c := range existing[min(len(bodies), len(existing)):] {
		plan = append(plan, action{op: "delete", commentID: c.ID})
	}
	return plan
}
