package correlate

import (
	"context"
	"errors"
	"fmt"

	"github.com/embedware/sizedeltas/internal/github"
	"github.com/embedware/sizedeltas/internal/reports"
)

// ErrNoPullRequest marks a group whose commit matches no open pull request
// head and for which no ambient context was supplied.
var ErrNoPullRequest = errors.New("no open pull request for commit")

// ErrPullRequestLocked marks a group whose pull request is locked. The
// workflow token generally lacks collaborator status, so commenting on a
// locked PR would fail anyway.
var ErrPullRequestLocked = errors.New("pull request is locked")

// Ref identifies the pull request a report group belongs to.
type Ref struct {
	Number  int
	HeadSHA string
}

// PullLister is the slice of the API client the correlator needs.
type PullLister interface {
	ListOpenPullRequests(ctx context.Context) ([]github.PullRequest, error)
}

// Resolve maps a group to its pull request. The ambient ref, when non-nil,
// is used unconditionally.
func Resolve(ctx context.Context, pulls PullLister, g reports.Group, ambient *Ref) (Ref, error) {
	if ambient != nil {
		return *ambient, nil
	}
	if g.Commit == "" {
		return Ref{}, fmt.Errorf("group has no originating commit: %w", ErrNoPullRequest)
	}

	open, err := pulls.ListOpenPullRequests(ctx)
	if err != nil {
		return Ref{}, fmt.Errorf("listing open pull requests: %w", err)
	}
	for _, pr := range open {
		if pr.HeadSHA != g.Commit {
			continue
		}
		if pr.Locked {
			return Ref{}, fmt.Errorf("pull request #%d: %w", pr.Number, ErrPullRequestLocked)
		}
		return Ref{Number: pr.Number, HeadSHA: pr.HeadSHA}, nil
	}
	return Ref{}, fmt.Errorf("commit %s: %w", g.Commit, ErrNoPullRequest)
}
